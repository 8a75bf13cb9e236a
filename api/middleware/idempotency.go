package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lokrise/checkout/api/responses"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/logger"
	pkgredis "github.com/lokrise/checkout/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
)

const (
	checkoutSessions = "/api/v1/checkout/sessions"
	sellerOrders     = "/api/v1/seller/orders/"
)

type idempotentRoute struct {
	method string
	prefix string
	suffix string
	ttl    time.Duration
}

func (r idempotentRoute) matches(method, pattern string) bool {
	return r.method == method && strings.HasPrefix(pattern, r.prefix) && strings.HasSuffix(pattern, r.suffix)
}

// First match wins, so the money-moving steps are listed before the generic session routes.
var idempotentRoutes = []idempotentRoute{
	{method: http.MethodPost, prefix: checkoutSessions + "/", suffix: "/orders", ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, prefix: checkoutSessions + "/", suffix: "/card", ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, prefix: checkoutSessions + "/", suffix: "/cod", ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, prefix: checkoutSessions + "/", suffix: "/upi/verify", ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, prefix: checkoutSessions + "/", suffix: "/barter/submit", ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, prefix: sellerOrders, ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, prefix: checkoutSessions, ttl: defaultIdempotencyTTL},
	{method: http.MethodPut, prefix: checkoutSessions + "/", ttl: defaultIdempotencyTTL},
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	if pattern == "" {
		return 0, false
	}
	for _, route := range idempotentRoutes {
		if route.matches(method, pattern) {
			return route.ttl, true
		}
	}
	return 0, false
}

// storedResponse is the Redis value under an idempotency key. A pending value
// marks a request that is still executing.
type storedResponse struct {
	Status      int    `json:"status"`
	Body        string `json:"body"`
	ContentType string `json:"content_type,omitempty"`
	RequestHash string `json:"request_hash"`
	Pending     bool   `json:"pending,omitempty"`
}

type idempotencyGuard struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
}

// Idempotency requires an Idempotency-Key on the configured routes and replays the
// stored response for a repeated key. The key is reserved before the handler runs,
// so a concurrent duplicate gets 409. Server errors release the key for a retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	guard := &idempotencyGuard{store: store, logg: logg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			if err := guard.serve(w, r, next, ttl); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
			}
		})
	}
}

func (g *idempotencyGuard) serve(w http.ResponseWriter, r *http.Request, next http.Handler, ttl time.Duration) error {
	clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if clientKey == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	hash := hashBody(body)
	key := g.store.IdempotencyKey(scopeOf(r), clientKey)

	prior, err := g.lookup(r.Context(), key)
	if err != nil {
		return err
	}
	if prior != nil {
		return replay(w, prior, hash)
	}
	if err := g.reserve(r.Context(), key, hash, ttl); err != nil {
		return err
	}

	capture := &responseCapture{ResponseWriter: w}
	next.ServeHTTP(capture, r)

	// The response is already on the wire; bookkeeping must survive a client disconnect.
	g.finish(context.WithoutCancel(r.Context()), key, hash, ttl, capture)
	return nil
}

func (g *idempotencyGuard) lookup(ctx context.Context, key string) (*storedResponse, error) {
	raw, err := g.store.Get(ctx, key)
	if errors.Is(err, pkgredis.ErrNil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return &stored, nil
}

func (g *idempotencyGuard) reserve(ctx context.Context, key, hash string, ttl time.Duration) error {
	marker, _ := json.Marshal(storedResponse{RequestHash: hash, Pending: true})
	reserved, err := g.store.SetNX(ctx, key, string(marker), ttl)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key")
	}
	if !reserved {
		return inProgress()
	}
	return nil
}

func (g *idempotencyGuard) finish(ctx context.Context, key, hash string, ttl time.Duration, capture *responseCapture) {
	status := capture.statusOrOK()
	if status >= http.StatusInternalServerError {
		g.logFailure(ctx, "release idempotency key", g.store.Del(ctx, key))
		return
	}
	payload, err := json.Marshal(storedResponse{
		Status:      status,
		Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
		ContentType: capture.Header().Get("Content-Type"),
		RequestHash: hash,
	})
	if err != nil {
		g.logFailure(ctx, "marshal idempotency record", err)
		return
	}
	g.logFailure(ctx, "persist idempotency record", g.store.Set(ctx, key, string(payload), ttl))
}

func (g *idempotencyGuard) logFailure(ctx context.Context, msg string, err error) {
	if g.logg != nil && err != nil {
		g.logg.Error(ctx, msg, err)
	}
}

func replay(w http.ResponseWriter, stored *storedResponse, hash string) error {
	switch {
	case stored.RequestHash != hash:
		return pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body")
	case stored.Pending:
		return inProgress()
	}
	body, err := base64.StdEncoding.DecodeString(stored.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode stored response")
	}
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(body)
	return nil
}

func inProgress() error {
	return pkgerrors.New(pkgerrors.CodeConflict, "a request with this Idempotency-Key is still in progress").WithRetryable(true)
}

// scopeOf keeps keys of different callers and endpoints apart.
func scopeOf(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		// Inside a mounted sub-router the pattern is still partial ("/x/*") when
		// middleware runs, which would hide the route suffix.
		if pattern := rc.RoutePattern(); pattern != "" && !strings.Contains(pattern, "*") {
			return pattern
		}
	}
	return r.URL.Path
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusOrOK() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
