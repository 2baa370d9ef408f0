package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/shopspring/decimal"
	"net/http"
	"strings"
	"time"
)

// Gateway status codes. 101 means the payment was already verified.
const (
	StatusOK              = 100
	StatusAlreadyVerified = 101
)

var ErrRejected = errors.New("payment gateway rejected the request")

type Config struct {
	BaseURL    string
	MerchantID string
	// CallbackURL is where the gateway redirects the buyer after paying.
	CallbackURL string
	// StartURL is prefixed to the authority to build the buyer redirect.
	StartURL string
	// CurrencyExponent is the number of minor units digits in order prices.
	// The gateway is sent amounts in major units.
	CurrencyExponent int32
	Timeout          time.Duration
}

// Client talks to a Zarinpal style web gate over JSON.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

type requestBody struct {
	MerchantID  string      `json:"MerchantID"`
	Amount      json.Number `json:"Amount"`
	CallbackURL string      `json:"CallbackURL,omitempty"`
	Description string      `json:"Description,omitempty"`
	Authority   string      `json:"Authority,omitempty"`
}

type responseBody struct {
	Status    int    `json:"Status"`
	Authority string `json:"Authority"`
	RefID     int64  `json:"RefID"`
}

// Amount converts a price in minor units to the decimal amount the gateway expects.
func (c *Client) Amount(minor int64) decimal.Decimal {
	return decimal.New(minor, -c.cfg.CurrencyExponent)
}

// Request opens a payment and returns the authority token identifying it.
func (c *Client) Request(ctx context.Context, amount int64, description string) (string, error) {
	var resp responseBody
	err := c.post(ctx, "/PaymentRequest.json", requestBody{
		MerchantID:  c.cfg.MerchantID,
		Amount:      json.Number(c.Amount(amount).String()),
		CallbackURL: c.cfg.CallbackURL,
		Description: description,
	}, &resp)
	if err != nil {
		return "", err
	}

	if resp.Status != StatusOK || resp.Authority == "" {
		return "", fmt.Errorf("%w: status %d", ErrRejected, resp.Status)
	}
	return resp.Authority, nil
}

// Verify asks the gateway whether the payment behind authority settled.
func (c *Client) Verify(ctx context.Context, authority string, amount int64) (bool, error) {
	var resp responseBody
	err := c.post(ctx, "/PaymentVerification.json", requestBody{
		MerchantID: c.cfg.MerchantID,
		Amount:     json.Number(c.Amount(amount).String()),
		Authority:  authority,
	}, &resp)
	if err != nil {
		return false, err
	}
	return resp.Status == StatusOK || resp.Status == StatusAlreadyVerified, nil
}

func (c *Client) StartURL(authority string) string {
	return c.cfg.StartURL + authority
}

func (c *Client) post(ctx context.Context, path string, body requestBody, out *responseBody) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("payment gateway %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
