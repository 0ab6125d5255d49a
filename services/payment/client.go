package payment

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/enrollment"
)

// ProviderError is a non 2xx answer of the payment provider.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (err *ProviderError) Error() string {
	return fmt.Sprintf("payment provider answered %d: %s", err.StatusCode, err.Message)
}

type envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

type checkoutRequest struct {
	TxRef          string              `json:"tx_ref"`
	Amount         string              `json:"amount"`
	Currency       string              `json:"currency"`
	RedirectURL    string              `json:"redirect_url"`
	Customer       enrollment.Customer `json:"customer"`
	Customizations map[string]string   `json:"customizations,omitempty"`
	Meta           map[string]string   `json:"meta,omitempty"`
}

type transaction struct {
	ID          int64   `json:"id"`
	TxRef       string  `json:"tx_ref"`
	Status      string  `json:"status"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	PaymentType string  `json:"payment_type"`
}

// Client is an enrollment.PaymentGateway over the provider's hosted checkout HTTP API.
type Client struct {
	http *resty.Client
}

var _ enrollment.PaymentGateway = (*Client)(nil)

func NewClient(conf core.PaymentConfig) *Client {
	client := resty.New().
		SetBaseURL(conf.BaseURL).
		SetAuthToken(conf.SecretKey).
		SetHeader("Accept", "application/json").
		SetTimeout(conf.Timeout)
	return &Client{http: client}
}

// CreateCheckout opens a hosted checkout for intent and returns its link.
func (c *Client) CreateCheckout(ctx context.Context, intent enrollment.Intent) (enrollment.Checkout, error) {
	meta := map[string]string{"cancel_url": intent.CancelURL}
	for k, v := range intent.Meta {
		meta[k] = v
	}
	body := checkoutRequest{
		TxRef:       intent.Reference,
		Amount:      strconv.FormatFloat(intent.Amount, 'f', 2, 64),
		Currency:    intent.Currency,
		RedirectURL: intent.ReturnURL,
		Customer:    intent.Customer,
		Meta:        meta,
	}
	if intent.Title != "" {
		body.Customizations = map[string]string{"title": intent.Title}
	}

	var data struct {
		Link string `json:"link"`
	}
	if err := c.do(ctx, resty.MethodPost, "/payments", body, &data); err != nil {
		return enrollment.Checkout{}, err
	}
	if data.Link == "" {
		return enrollment.Checkout{}, errors.New("payment provider returned no checkout link")
	}
	return enrollment.Checkout{Link: data.Link}, nil
}

// VerifyTransaction fetches the provider's record of transactionID.
func (c *Client) VerifyTransaction(ctx context.Context, transactionID string) (enrollment.Verification, error) {
	var data transaction
	path := "/transactions/" + url.PathEscape(transactionID) + "/verify"
	if err := c.do(ctx, resty.MethodGet, path, nil, &data); err != nil {
		return enrollment.Verification{}, err
	}
	return enrollment.Verification{
		TransactionID: strconv.FormatInt(data.ID, 10),
		Reference:     data.TxRef,
		Status:        data.Status,
		Amount:        data.Amount,
		Currency:      data.Currency,
		PaymentMethod: data.PaymentType,
		Raw: enrollment.JSONMap{
			"id":           data.ID,
			"tx_ref":       data.TxRef,
			"status":       data.Status,
			"payment_type": data.PaymentType,
		},
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, data interface{}) error {
	res := &envelope{Data: data}
	failure := new(envelope)
	req := c.http.R().
		SetContext(ctx).
		SetResult(res).
		SetError(failure)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	if resp.IsError() {
		msg := failure.Message
		if msg == "" {
			msg = resp.Status()
		}
		return &ProviderError{StatusCode: resp.StatusCode(), Message: msg}
	}
	if res.Status != "success" {
		return &ProviderError{StatusCode: resp.StatusCode(), Message: res.Message}
	}
	return nil
}
