package paystack

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-ticket-payments/internal/domain"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestClientInitializeTransaction(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/initialize" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Write([]byte(`{"status":true,"message":"ok","data":{"authorization_url":"https://pay.example/x","access_code":"ac_1","reference":"order-1"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_secret", srv.Client(), testLogger())
	resp, err := c.InitializeTransaction(context.Background(), InitializeTransactionRequest{
		Reference: "order-1",
		Amount:    500000,
		Currency:  "NGN",
		Email:     "buyer@example.com",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.AuthorizationURL != "https://pay.example/x" {
		t.Errorf("unexpected authorization url %q", resp.AuthorizationURL)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"status":true,"data":{"transfer_code":"trf_1","reference":"payout-1","status":"pending"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_secret", srv.Client(), testLogger())
	resp, err := c.InitiateTransfer(context.Background(), TransferRequest{
		Reference: "payout-1",
		Amount:    300000,
		Currency:  "NGN",
		Recipient: "RCP_x",
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
	if resp.TransferCode != "trf_1" {
		t.Errorf("unexpected transfer code %q", resp.TransferCode)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":false,"message":"invalid amount"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_secret", srv.Client(), testLogger())
	_, err := c.InitiateTransfer(context.Background(), TransferRequest{
		Reference: "payout-1",
		Amount:    -1,
		Currency:  "NGN",
		Recipient: "RCP_x",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Error("4xx must not be marked as gateway unavailability")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", calls.Load())
	}
}

func TestClientExhaustedRetriesMarkedUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_secret", srv.Client(), testLogger())
	_, err := c.InitializeTransaction(context.Background(), InitializeTransactionRequest{
		Reference: "order-1",
		Amount:    100,
		Currency:  "NGN",
		Email:     "buyer@example.com",
	})
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestClientRejectedEnvelope(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":false,"message":"transfer not permitted"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_secret", srv.Client(), testLogger())
	_, err := c.InitiateTransfer(context.Background(), TransferRequest{
		Reference: "payout-1",
		Amount:    100,
		Currency:  "NGN",
		Recipient: "RCP_x",
	})
	if err == nil || errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected terminal envelope error, got %v", err)
	}
}
