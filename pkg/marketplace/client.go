package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lokrise/checkout/pkg/config"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/metrics"
)

const (
	defaultTimeout = 15 * time.Second
	breakerName    = "marketplace-read"
)

var errServerStatus = errors.New("marketplace server error")

// Options carries the optional collaborators of the client.
type Options struct {
	Logger    *logger.Logger
	Metrics   *metrics.MarketplaceMetrics
	Transport http.RoundTripper
}

// Client talks to the Lokrise marketplace backend.
// Reads retry with exponential backoff behind a circuit breaker; writes are sent once.
type Client struct {
	read         *resty.Client
	write        *resty.Client
	breaker      *gobreaker.CircuitBreaker[*resty.Response]
	timeout      time.Duration
	serviceToken string
	logg         *logger.Logger
	metrics      *metrics.MarketplaceMetrics
}

// New builds a marketplace client from configuration.
func New(cfg config.MarketplaceConfig, opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("marketplace base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid marketplace base url: %w", err)
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	httpClient := &http.Client{Transport: otelhttp.NewTransport(transport)}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	read := resty.NewWithClient(httpClient).
		SetBaseURL(base).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		AddRetryCondition(shouldRetryRead)

	write := resty.NewWithClient(httpClient).
		SetBaseURL(base).
		SetHeader("Accept", "application/json")

	c := &Client{
		read:         read,
		write:        write,
		timeout:      timeout,
		serviceToken: cfg.ServiceToken,
		logg:         opts.Logger,
		metrics:      opts.Metrics,
	}

	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	c.breaker = gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: c.onBreakerStateChange,
	})

	return c, nil
}

func shouldRetryRead(resp *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	if resp == nil {
		return false
	}
	status := resp.StatusCode()
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func (c *Client) onBreakerStateChange(name string, from, to gobreaker.State) {
	c.metrics.SetBreakerState(name, int(to))
	if c.logg == nil {
		return
	}
	ctx := c.logg.WithFields(context.Background(), map[string]any{
		"breaker": name,
		"from":    from.String(),
		"to":      to.String(),
	})
	c.logg.Warn(ctx, "marketplace.breaker.state_changed")
}

func (c *Client) token(ctx context.Context) string {
	if token := BearerFromContext(ctx); token != "" {
		return token
	}
	return c.serviceToken
}

// get issues a retried, breaker-guarded GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, op, path string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*resty.Response, error) {
		req := c.read.R().SetContext(ctx).SetAuthToken(c.token(ctx))
		if len(query) > 0 {
			req.SetQueryParamsFromValues(query)
		}
		resp, err := req.Get(path)
		if err != nil {
			return resp, err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return resp, errServerStatus
		}
		return resp, nil
	})
	c.observe(op, resp, start)
	return c.decode(op, resp, err, out)
}

// send issues a single, never retried request with a JSON body.
func (c *Client) send(ctx context.Context, op, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	req := c.write.R().SetContext(ctx).SetAuthToken(c.token(ctx))
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	c.observe(op, resp, start)
	return c.decode(op, resp, err, out)
}

func (c *Client) observe(op string, resp *resty.Response, start time.Time) {
	status := 0
	if resp != nil && resp.RawResponse != nil {
		status = resp.StatusCode()
	}
	c.metrics.ObserveRequest(op, status, time.Since(start))
}

func (c *Client) decode(op string, resp *resty.Response, err error, out any) error {
	if err != nil && !errors.Is(err, errServerStatus) {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marketplace temporarily unavailable")
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("marketplace %s timed out", op))
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("marketplace %s failed", op))
	}

	status := resp.StatusCode()
	if status >= http.StatusMultipleChoices {
		apiErr := &APIError{Operation: op, Status: status, Message: errorMessage(resp.Body())}
		return pkgerrors.Wrap(codeForStatus(status), apiErr, apiErr.publicMessage())
	}

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode marketplace %s response", op))
	}
	return nil
}

func errorMessage(body []byte) string {
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return strings.TrimSpace(string(body))
}
