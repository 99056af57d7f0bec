package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-payments/internal/checkout"
	"github.com/robertarktes/event-ticket-payments/internal/domain"
	"github.com/robertarktes/event-ticket-payments/internal/idempotency"
	"github.com/robertarktes/event-ticket-payments/internal/observability"
	"github.com/robertarktes/event-ticket-payments/internal/paystack"
	"github.com/robertarktes/event-ticket-payments/internal/payout"
)

// WebhookDeduper is the optional Redis fast path for replayed gateway
// events. A miss is fine; the store-level idempotency is what guarantees
// exactly-once effects.
type WebhookDeduper interface {
	MarkWebhookSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	ForgetWebhook(ctx context.Context, eventID string) error
}

// ResponseCache replays stored responses for repeated Idempotency-Key
// values on mutating endpoints.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*idempotency.Response, error)
	Set(ctx context.Context, key string, resp idempotency.Response) error
}

type Handlers struct {
	checkout *checkout.Service
	payouts  *payout.Service
	verifier *paystack.Verifier
	idemp    ResponseCache
	deduper  WebhookDeduper
	logger   observability.Logger
}

func NewHandlers(checkoutSvc *checkout.Service, payoutSvc *payout.Service, verifier *paystack.Verifier, idemp ResponseCache, deduper WebhookDeduper, logger observability.Logger) *Handlers {
	return &Handlers{
		checkout: checkoutSvc,
		payouts:  payoutSvc,
		verifier: verifier,
		idemp:    idemp,
		deduper:  deduper,
		logger:   logger,
	}
}

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if existing, err := h.idemp.Get(r.Context(), key); err == nil && existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		EventID      uuid.UUID `json:"event_id"`
		TicketTypeID uuid.UUID `json:"ticket_type_id"`
		Quantity     int       `json:"quantity"`
		BuyerEmail   string    `json:"buyer_email"`
		BuyerName    string    `json:"buyer_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.checkout.Checkout(r.Context(), checkout.CheckoutInput{
		EventID:      req.EventID,
		TicketTypeID: req.TicketTypeID,
		Quantity:     req.Quantity,
		BuyerEmail:   req.BuyerEmail,
		BuyerName:    req.BuyerName,
	})
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		http.Error(w, "invalid quantity or buyer details", http.StatusBadRequest)
		return
	case errors.Is(err, domain.ErrInsufficientInventory):
		http.Error(w, "sold out", http.StatusBadRequest)
		return
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "ticket type not found", http.StatusNotFound)
		return
	case err != nil:
		h.logger.WithError(err).Error("checkout failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	data, _ := json.Marshal(map[string]interface{}{
		"order_id":     result.Order.ID,
		"redirect_url": result.RedirectURL,
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(data)

	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

// Webhook handles gateway deliveries. The body is read raw and the
// signature checked over the exact bytes before anything is parsed.
// Every authentic delivery is acknowledged with 200, including duplicates
// and event types this service ignores; anything else invites endless
// gateway retries.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if err := h.verifier.Verify(rawBody, r.Header.Get(paystack.SignatureHeader)); err != nil {
		observability.WebhookRejected.Inc()
		h.logger.WithField("remote", r.RemoteAddr).Warn("webhook signature rejected")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := paystack.ParseEvent(rawBody)
	if err != nil {
		// Authentic but undecodable. Acknowledge it; retrying the same
		// bytes can never succeed.
		h.logger.WithError(err).Warn("undecodable webhook payload")
		w.WriteHeader(http.StatusOK)
		return
	}

	switch event.Type {
	case paystack.EventChargeSuccess:
		if event.ID != "" {
			if fresh, err := h.deduper.MarkWebhookSeen(r.Context(), event.ID, 24*time.Hour); err == nil && !fresh {
				w.WriteHeader(http.StatusOK)
				return
			}
		}
		if err := h.checkout.ProcessChargeSuccess(r.Context(), *event.Charge); err != nil {
			if errors.Is(err, domain.ErrFulfillmentFailed) {
				// Recorded for manual reconciliation; the delivery itself
				// succeeded from the gateway's point of view.
				w.WriteHeader(http.StatusOK)
				return
			}
			// Release the dedupe claim so the gateway's redelivery is
			// processed instead of skipped.
			if event.ID != "" {
				if forgetErr := h.deduper.ForgetWebhook(r.Context(), event.ID); forgetErr != nil {
					h.logger.WithError(forgetErr).WithField("event_id", event.ID).Warn("failed to release webhook dedupe claim")
				}
			}
			h.logger.WithError(err).WithField("order_id", event.Charge.OrderID.String()).Error("failed to process payment webhook")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	default:
		// Acknowledge without side effects.
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	order, tickets, err := h.checkout.GetOrder(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to load order")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ticketViews := make([]map[string]interface{}, 0, len(tickets))
	for _, t := range tickets {
		ticketViews = append(ticketViews, map[string]interface{}{
			"id":                t.ID,
			"seat_index":        t.SeatIndex,
			"code":              t.Code,
			"validation_status": t.ValidationStatus,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"order_id":     order.ID,
		"status":       order.Status,
		"quantity":     order.Quantity,
		"total_amount": order.TotalAmount,
		"currency":     order.Currency,
		"tickets":      ticketViews,
	})
}

func (h *Handlers) CreatePayout(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if existing, err := h.idemp.Get(r.Context(), key); err == nil && existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		OwnerID  uuid.UUID `json:"owner_id"`
		Amount   int64     `json:"amount"`
		Currency string    `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	payoutReq, err := h.payouts.Request(r.Context(), req.OwnerID, req.Amount, req.Currency)
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	case errors.Is(err, domain.ErrInsufficientBalance):
		http.Error(w, "insufficient balance", http.StatusBadRequest)
		return
	case errors.Is(err, domain.ErrCurrencyMismatch):
		http.Error(w, "currency does not match owner revenue pool", http.StatusBadRequest)
		return
	case err != nil:
		h.logger.WithError(err).Error("payout request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	data, _ := json.Marshal(map[string]interface{}{
		"payout_id": payoutReq.ID,
		"status":    payoutReq.Status,
		"reference": payoutReq.TransferRef(),
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(data)

	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) ResolvePayout(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req struct {
		Decision string `json:"decision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var resolved domain.PayoutRequest
	switch req.Decision {
	case "approve":
		resolved, err = h.payouts.Approve(r.Context(), id)
	case "reject":
		resolved, err = h.payouts.Reject(r.Context(), id)
	default:
		http.Error(w, "decision must be approve or reject", http.StatusBadRequest)
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "payout not found", http.StatusNotFound)
		return
	case errors.Is(err, domain.ErrPayoutAlreadyResolved):
		http.Error(w, "payout already resolved", http.StatusConflict)
		return
	case errors.Is(err, domain.ErrGatewayUnavailable):
		http.Error(w, "transfer initiation failed", http.StatusBadGateway)
		return
	case err != nil:
		h.logger.WithError(err).Error("payout resolution failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"payout_id": resolved.ID,
		"status":    resolved.Status,
		"reference": resolved.TransferReference,
	})
}

func (h *Handlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	ownerID, err := uuid.Parse(chi.URLParam(r, "ownerID"))
	if err != nil {
		http.Error(w, "invalid owner id", http.StatusBadRequest)
		return
	}
	currency := r.URL.Query().Get("currency")
	if currency == "" {
		currency = "NGN"
	}

	available, err := h.payouts.AvailableBalance(r.Context(), ownerID, currency)
	if err != nil {
		h.logger.WithError(err).Error("failed to compute balance")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"owner_id":  ownerID,
		"currency":  currency,
		"available": available,
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
