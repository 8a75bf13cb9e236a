package marketplace

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	pkgerrors "github.com/lokrise/checkout/pkg/errors"
)

// InitiateUPI requests a QR code and transaction reference for one order.
func (c *Client) InitiateUPI(ctx context.Context, req UPIInitiateRequest) (*UPIInitiateResponse, error) {
	var resp UPIInitiateResponse
	if err := c.send(ctx, "upi_initiate", http.MethodPost, "/payment/upi/initiate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyUPI asks the backend to confirm a manual UPI transfer.
func (c *Client) VerifyUPI(ctx context.Context, req UPIVerifyRequest) (*PaymentResult, error) {
	var resp PaymentResult
	if err := c.send(ctx, "upi_verify", http.MethodPost, "/payment/upi/verify", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProcessCard charges a card for one order.
func (c *Client) ProcessCard(ctx context.Context, req CardPaymentRequest) (*PaymentResult, error) {
	var resp PaymentResult
	if err := c.send(ctx, "card_process", http.MethodPost, "/payment/card/process", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProcessCOD confirms cash on delivery for one order.
func (c *Client) ProcessCOD(ctx context.Context, req CODRequest) (*PaymentResult, error) {
	var resp PaymentResult
	if err := c.send(ctx, "cod_process", http.MethodPost, "/payment/cod/process", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitBarter sends the barter proposal and its photos as one multipart request.
func (c *Client) SubmitBarter(ctx context.Context, sub BarterSubmission) (*BarterResult, error) {
	if sub.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	fields := map[string]string{
		"orderId":        sub.OrderID,
		"title":          sub.Title,
		"category":       sub.Category.String(),
		"description":    sub.Description,
		"estimatedValue": sub.EstimatedValue.StringFixed(2),
		"topUpAmount":    sub.TopUpAmount.StringFixed(2),
	}
	if sub.ExchangeMethod != "" {
		fields["exchangeMethod"] = sub.ExchangeMethod
	}
	if sub.ProposedDate != "" {
		fields["proposedDate"] = sub.ProposedDate
	}

	req := c.write.R().
		SetContext(ctx).
		SetAuthToken(c.token(ctx)).
		SetMultipartFormData(fields)
	for _, photo := range sub.Photos {
		req.SetMultipartFields(&resty.MultipartField{
			Param:       "photos",
			FileName:    photo.FileName,
			ContentType: photo.ContentType,
			Reader:      bytes.NewReader(photo.Data),
		})
	}

	start := time.Now()
	resp, err := req.Execute(http.MethodPost, "/payment/barter")
	c.observe("barter_submit", resp, start)

	var result BarterResult
	if err := c.decode("barter_submit", resp, err, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
