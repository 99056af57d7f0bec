package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/event-ticket-payments/internal/adapters/postgres"
	"github.com/robertarktes/event-ticket-payments/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/event-ticket-payments/internal/adapters/redis"
	"github.com/robertarktes/event-ticket-payments/internal/checkout"
	"github.com/robertarktes/event-ticket-payments/internal/domain"
	etphttp "github.com/robertarktes/event-ticket-payments/internal/http"
	"github.com/robertarktes/event-ticket-payments/internal/idempotency"
	"github.com/robertarktes/event-ticket-payments/internal/notify"
	"github.com/robertarktes/event-ticket-payments/internal/observability"
	"github.com/robertarktes/event-ticket-payments/internal/outbox"
	"github.com/robertarktes/event-ticket-payments/internal/payout"
	"github.com/robertarktes/event-ticket-payments/internal/paystack"
	"github.com/robertarktes/event-ticket-payments/internal/ratelimit"
	"github.com/robertarktes/event-ticket-payments/migrations"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const webhookSecret = "sk_test_integration"

// fakePaystack stands in for the hosted gateway: initialize and transfer
// always succeed, and the test signs its own webhook deliveries.
func fakePaystack(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/transaction/initialize", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Reference string `json:"reference"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		fmt.Fprintf(w, `{"status":true,"data":{"authorization_url":"https://pay.example/%s","access_code":"ac","reference":"%s"}}`, req.Reference, req.Reference)
	})
	mux.HandleFunc("/transfer", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Reference string `json:"reference"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		fmt.Fprintf(w, `{"status":true,"data":{"transfer_code":"trf_it","reference":"%s","status":"pending"}}`, req.Reference)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestIntegration_CheckoutToPayout(t *testing.T) {
	if testing.Short() {
		t.Skip("containers")
	}
	ctx := context.Background()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "etp",
				"POSTGRES_PASSWORD": "etp",
				"POSTGRES_DB":       "etp",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer pgContainer.Terminate(ctx)

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer redisContainer.Terminate(ctx)

	rabbitContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-management",
			ExposedPorts: []string{"5672/tcp", "15672/tcp"},
			WaitingFor:   wait.ForHTTP("/api/health").WithPort("15672"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitContainer.Terminate(ctx)

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")
	pool, err := pgxpool.New(ctx, fmt.Sprintf("postgres://etp:etp@%s:%s/etp?sslmode=disable", pgHost, pgPort.Port()))
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	if err := migrations.Apply(ctx, pool); err != nil {
		t.Fatal(err)
	}

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")
	rdb := redisclient.NewClient(&redisclient.Options{Addr: redisHost + ":" + redisPort.Port()})
	defer rdb.Close()

	rabbitHost, _ := rabbitContainer.Host(ctx)
	rabbitPort, _ := rabbitContainer.MappedPort(ctx, "5672")
	conn, err := amqp.Dial(fmt.Sprintf("amqp://guest:guest@%s:%s/", rabbitHost, rabbitPort.Port()))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	gateway := fakePaystack(t)

	logger := observability.NewLogger()
	repo := postgres.NewRepository(pool)
	cache := redisadapter.NewCache(rdb)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(rdb), time.Hour)
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		t.Fatal(err)
	}
	dispatcher := notify.NewDispatcher(rabbitPub, logger)

	paystackClient := paystack.NewClient(gateway.URL, webhookSecret, http.DefaultClient, observability.Logrus())
	verifier := paystack.NewVerifier(webhookSecret)

	checkoutSvc := checkout.NewService(repo, paystackClient, "https://shop.example/return", logger)
	payoutSvc := payout.NewService(repo, paystackClient, dispatcher, logger)
	handlers := etphttp.NewHandlers(checkoutSvc, payoutSvc, verifier, idemp, cache, logger)
	router := etphttp.SetupRouter(handlers, logger, ratelimit.NewRateLimiter(cache))

	api := httptest.NewServer(router)
	defer api.Close()

	// The relay drains the outbox into the broker while the test runs.
	consumer, err := rabbit.NewConsumer(conn, "it.notifications", []string{"order.#", "payout.#"})
	if err != nil {
		t.Fatal(err)
	}
	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	relayCtx, cancelRelay := context.WithCancel(ctx)
	defer cancelRelay()
	go outbox.NewPublisher(repo, rabbitPub, logger).Run(relayCtx)

	// Seed catalog.
	event := domain.Event{ID: uuid.New(), OwnerID: uuid.New(), Name: "lagos tech summit", Currency: "NGN"}
	if err := repo.CreateEvent(ctx, event); err != nil {
		t.Fatal(err)
	}
	tt := domain.TicketType{ID: uuid.New(), EventID: event.ID, Name: "regular", UnitPrice: 500000, Currency: "NGN", Quantity: 50}
	if err := repo.CreateTicketType(ctx, tt); err != nil {
		t.Fatal(err)
	}

	// Checkout.
	checkoutBody, _ := json.Marshal(map[string]interface{}{
		"event_id":       event.ID,
		"ticket_type_id": tt.ID,
		"quantity":       2,
		"buyer_email":    "buyer@example.com",
		"buyer_name":     "Ada",
	})
	req, _ := http.NewRequest(http.MethodPost, api.URL+"/v1/checkout", bytes.NewReader(checkoutBody))
	req.Header.Set("Idempotency-Key", "it-checkout-0000000001")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkout: expected 201, got %d", resp.StatusCode)
	}
	var created struct {
		OrderID     uuid.UUID `json:"order_id"`
		RedirectURL string    `json:"redirect_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if created.RedirectURL == "" {
		t.Fatal("expected redirect url")
	}

	// Signed charge.success webhook, delivered twice.
	webhookBody, _ := json.Marshal(map[string]interface{}{
		"event": "charge.success",
		"id":    "evt_it_1",
		"data": map[string]interface{}{
			"reference": "order-" + created.OrderID.String(),
			"amount":    1000000,
			"currency":  "NGN",
			"metadata":  map[string]string{"order_id": created.OrderID.String()},
		},
	})
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodPost, api.URL+"/v1/payments/webhook", bytes.NewReader(webhookBody))
		req.Header.Set(paystack.SignatureHeader, verifier.Sign(webhookBody))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("webhook delivery %d: expected 200, got %d", i, resp.StatusCode)
		}
	}

	// Order is paid with exactly one ticket per seat.
	resp, err = http.Get(api.URL + "/v1/orders/" + created.OrderID.String())
	if err != nil {
		t.Fatal(err)
	}
	var orderView struct {
		Status  string `json:"status"`
		Tickets []struct {
			Code      string `json:"code"`
			SeatIndex int    `json:"seat_index"`
		} `json:"tickets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&orderView); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if orderView.Status != "PAID" {
		t.Fatalf("expected PAID, got %s", orderView.Status)
	}
	if len(orderView.Tickets) != 2 {
		t.Fatalf("expected 2 tickets, got %d", len(orderView.Tickets))
	}

	// Revenue backs a payout request; overdraw is refused.
	payoutBody, _ := json.Marshal(map[string]interface{}{
		"owner_id": event.OwnerID,
		"amount":   800000,
		"currency": "NGN",
	})
	req, _ = http.NewRequest(http.MethodPost, api.URL+"/v1/payouts", bytes.NewReader(payoutBody))
	req.Header.Set("Idempotency-Key", "it-payout-000000000001")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("payout: expected 201, got %d", resp.StatusCode)
	}
	var payoutCreated struct {
		PayoutID uuid.UUID `json:"payout_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payoutCreated); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	overdraw, _ := json.Marshal(map[string]interface{}{
		"owner_id": event.OwnerID,
		"amount":   300000,
		"currency": "NGN",
	})
	req, _ = http.NewRequest(http.MethodPost, api.URL+"/v1/payouts", bytes.NewReader(overdraw))
	req.Header.Set("Idempotency-Key", "it-payout-000000000002")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("overdraw: expected 400, got %d", resp.StatusCode)
	}

	// Approve moves money through the gateway.
	resp, err = http.Post(api.URL+"/v1/payouts/"+payoutCreated.PayoutID.String()+"/resolve", "application/json",
		bytes.NewReader([]byte(`{"decision":"approve"}`)))
	if err != nil {
		t.Fatal(err)
	}
	var resolved struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&resolved); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resolved.Status != "APPROVED" {
		t.Fatalf("expected APPROVED, got %s", resolved.Status)
	}

	// The outbox relay and dispatcher deliver the pipeline's events.
	want := map[string]bool{
		"order.paid":           false,
		"order.tickets_issued": false,
		"payout.requested":     false,
		"payout.approved":      false,
	}
	deadline := time.After(30 * time.Second)
	for remaining := len(want); remaining > 0; {
		select {
		case d := <-deliveries:
			if seen, ok := want[d.RoutingKey]; ok && !seen {
				want[d.RoutingKey] = true
				remaining--
			}
			d.Ack(false)
		case <-deadline:
			t.Fatalf("timed out waiting for events, still missing: %v", want)
		}
	}
}
