package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-ticket-payments/internal/domain"
	"github.com/sirupsen/logrus"
)

const maxAttempts = 3

// Client talks to the Paystack HTTP API. Every mutating call carries a
// locally generated reference, which Paystack treats as an idempotency key:
// a retried call cannot create a second gateway-side transaction.
type Client struct {
	baseURL   string
	secretKey string
	hc        *http.Client
	logger    *logrus.Logger
}

func NewClient(baseURL, secretKey string, hc *http.Client, logger *logrus.Logger) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: baseURL, secretKey: secretKey, hc: hc, logger: logger}
}

type InitializeTransactionRequest struct {
	Reference   string            `json:"reference"`
	Amount      int64             `json:"amount"` // minor units
	Currency    string            `json:"currency"`
	Email       string            `json:"email"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type InitializeTransactionResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// InitializeTransaction opens a hosted checkout session. The order id rides
// in the metadata so the eventual webhook can be routed back to the order.
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeTransactionRequest) (InitializeTransactionResponse, error) {
	var resp InitializeTransactionResponse
	err := c.post(ctx, "/transaction/initialize", req, &resp)
	return resp, err
}

type TransferRequest struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"` // minor units
	Currency  string `json:"currency"`
	Recipient string `json:"recipient"`
	Reason    string `json:"reason,omitempty"`
}

type TransferResponse struct {
	TransferCode string `json:"transfer_code"`
	Reference    string `json:"reference"`
	Status       string `json:"status"`
}

// InitiateTransfer moves an approved payout to the organizer's settlement
// account.
func (c *Client) InitiateTransfer(ctx context.Context, req TransferRequest) (TransferResponse, error) {
	var resp TransferResponse
	err := c.post(ctx, "/transfer", req, &resp)
	return resp, err
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// post retries transient failures (network errors, 5xx) with exponential
// backoff. 4xx responses are the gateway refusing the call and are not
// retried.
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	reqBuf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = c.doPost(ctx, path, reqBuf, out)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, domain.ErrGatewayUnavailable) {
			return lastErr
		}
		c.logger.WithError(lastErr).WithField("path", path).Warn("paystack call failed, retrying")
	}
	return lastErr
}

func (c *Client) doPost(ctx context.Context, path string, body []byte, out interface{}) error {
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("Authorization", "Bearer "+c.secretKey)

	hresp, err := c.hc.Do(hr)
	if err != nil {
		return errors.Mark(err, domain.ErrGatewayUnavailable)
	}
	defer hresp.Body.Close()

	respBody, err := io.ReadAll(hresp.Body)
	if err != nil {
		return errors.Mark(err, domain.ErrGatewayUnavailable)
	}

	if hresp.StatusCode >= 500 {
		return errors.Mark(fmt.Errorf("paystack %s: status %d", path, hresp.StatusCode), domain.ErrGatewayUnavailable)
	}
	if hresp.StatusCode < 200 || hresp.StatusCode > 299 {
		return fmt.Errorf("paystack %s: status %d: %s", path, hresp.StatusCode, respBody)
	}

	var env apiEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return err
	}
	if !env.Status {
		return fmt.Errorf("paystack %s: %s", path, env.Message)
	}
	return json.Unmarshal(env.Data, out)
}
