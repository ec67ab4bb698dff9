// Package tradeapi is a client for the trading API products and order
// confirmations are relayed to.
package tradeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"supplierbot/internal/components/assert"
	"supplierbot/internal/components/telemetry"
	"supplierbot/internal/supplier"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_client_authenticate    = "client.authenticate"
	report_client_submit_products = "client.submit-products"
	report_client_create_order    = "client.create-order"
	report_client_patch_order     = "client.patch-order"
	report_client_signup          = "client.signup"
)

const DefaultBaseURL = "https://desafio.cotefacil.net"

type Options struct {
	BaseURL string
	// ControlTimeout applies to authentication and order calls, defaults to
	// 30 seconds.
	ControlTimeout time.Duration
	// SubmitTimeout applies to product submission, defaults to 60 seconds.
	SubmitTimeout time.Duration
}

// StatusError is a response outside of 2xx.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, body)
}

type Client struct {
	http *resty.Client
	opts Options
	tel  telemetry.API
}

func New(opts Options, tel telemetry.API) *Client {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("tradeapi", tel)

	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.ControlTimeout <= 0 {
		opts.ControlTimeout = 30 * time.Second
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 60 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetHeader("accept", "application/json")
	telemetry.InstrumentResty(client, tel)

	return &Client{http: client, opts: opts, tel: tel}
}

func (c *Client) BaseURL() string {
	return c.opts.BaseURL
}

func (c *Client) do(ctx context.Context, timeout time.Duration, req func(r *resty.Request) (*resty.Response, error)) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := req(c.http.R().SetContext(ctx))
	if err != nil {
		return nil, err
	}
	if !res.IsSuccess() {
		return nil, &StatusError{
			Method: res.Request.Method,
			URL:    res.Request.URL,
			Status: res.StatusCode(),
			Body:   string(res.Body()),
		}
	}
	return res.Body(), nil
}

func rawOrNull(body []byte) json.RawMessage {
	if len(strings.TrimSpace(string(body))) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(body)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Token       string `json:"token"`
}

// Authenticate exchanges the api user's credentials for a bearer token with
// the password grant.
func (c *Client) Authenticate(ctx context.Context, username, password string) (string, error) {
	body, err := c.do(ctx, c.opts.ControlTimeout, func(r *resty.Request) (*resty.Response, error) {
		return r.SetFormData(map[string]string{
			"grant_type": "password",
			"username":   username,
			"password":   password,
		}).Post("/oauth/token")
	})
	if err != nil {
		c.tel.ReportWarning(report_client_authenticate, err, username)
		return "", err
	}

	var parsed tokenResponse
	err = json.Unmarshal(body, &parsed)
	if err != nil {
		c.tel.ReportBroken(report_client_authenticate, fmt.Errorf("json unmarshal: %w", err))
		return "", err
	}
	token := parsed.AccessToken
	if token == "" {
		token = parsed.Token
	}
	if token == "" {
		err = fmt.Errorf("token response carries no access_token")
		c.tel.ReportBroken(report_client_authenticate, err, string(body))
		return "", err
	}
	return token, nil
}

// SubmitProducts posts every product in a single request.
func (c *Client) SubmitProducts(ctx context.Context, token string, products []supplier.ProductRecord) (json.RawMessage, error) {
	if products == nil {
		products = []supplier.ProductRecord{}
	}
	body, err := c.do(ctx, c.opts.SubmitTimeout, func(r *resty.Request) (*resty.Response, error) {
		return r.SetAuthToken(token).
			SetHeader("content-type", "application/json").
			SetBody(products).
			Post("/produto")
	})
	if err != nil {
		c.tel.ReportWarning(report_client_submit_products, err, len(products))
		return nil, err
	}
	c.tel.ReportDebug(report_client_submit_products, len(products))
	return rawOrNull(body), nil
}

// CreatedOrder is an order generated by the trading API for the worker to
// place with the supplier.
type CreatedOrder struct {
	ID           json.Number          `json:"id"`
	SupplierCode *string              `json:"codigo_fornecedor"`
	Status       *string              `json:"status"`
	Items        []supplier.OrderItem `json:"itens"`
}

// CreateOrder asks the trading API for a new random order.
func (c *Client) CreateOrder(ctx context.Context, token string) (CreatedOrder, json.RawMessage, error) {
	body, err := c.do(ctx, c.opts.ControlTimeout, func(r *resty.Request) (*resty.Response, error) {
		return r.SetAuthToken(token).
			SetHeader("content-type", "application/json").
			Post("/pedido")
	})
	if err != nil {
		c.tel.ReportWarning(report_client_create_order, err)
		return CreatedOrder{}, nil, err
	}

	var order CreatedOrder
	err = json.Unmarshal(body, &order)
	if err != nil {
		c.tel.ReportBroken(report_client_create_order, fmt.Errorf("json unmarshal: %w", err), string(body))
		return CreatedOrder{}, nil, err
	}
	return order, rawOrNull(body), nil
}

type patchOrderRequest struct {
	ConfirmationCode string               `json:"codigo_confirmacao"`
	Status           supplier.OrderStatus `json:"status"`
}

// PatchOrder reports the supplier's confirmation code for an order.
func (c *Client) PatchOrder(ctx context.Context, token, orderId, confirmationCode string, status supplier.OrderStatus) (json.RawMessage, error) {
	body, err := c.do(ctx, c.opts.ControlTimeout, func(r *resty.Request) (*resty.Response, error) {
		return r.SetAuthToken(token).
			SetHeader("content-type", "application/json").
			SetPathParam("id", orderId).
			SetBody(patchOrderRequest{
				ConfirmationCode: confirmationCode,
				Status:           status,
			}).
			Patch("/pedido/{id}")
	})
	if err != nil {
		c.tel.ReportWarning(report_client_patch_order, err, orderId, confirmationCode)
		return nil, err
	}
	return rawOrNull(body), nil
}

type signupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Signup creates an api user, it only needs to be done once per environment.
func (c *Client) Signup(ctx context.Context, username, password string) (json.RawMessage, error) {
	body, err := c.do(ctx, c.opts.ControlTimeout, func(r *resty.Request) (*resty.Response, error) {
		return r.SetHeader("content-type", "application/json").
			SetBody(signupRequest{Username: username, Password: password}).
			Post("/oauth/signup")
	})
	if err != nil {
		c.tel.ReportWarning(report_client_signup, err, username)
		return nil, err
	}
	return rawOrNull(body), nil
}

func (c *Client) Healthcheck(ctx context.Context) error {
	_, err := c.do(ctx, c.opts.ControlTimeout, func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/healthcheck")
	})
	return err
}

// IsStatus reports whether err is a StatusError with the given status.
func IsStatus(err error, status int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Status == status
}
