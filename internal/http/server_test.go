package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/feed"
	"github.com/fjod/storefront/internal/functions"
	"github.com/fjod/storefront/internal/invoice"
	"github.com/fjod/storefront/internal/repository/sqlstore"
	"github.com/fjod/storefront/internal/sequencer"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const (
	testSecret = "test-secret"
	adminID    = "admin-1"
)

// functionsStub plays the remote functions and records what it was sent.
type functionsStub struct {
	mu    sync.Mutex
	calls map[string][][]byte
}

func (f *functionsStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body bytes.Buffer
	_, _ = body.ReadFrom(r.Body)

	f.mu.Lock()
	f.calls[r.URL.Path] = append(f.calls[r.URL.Path], body.Bytes())
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case functions.PathCreatePaymentOrder:
		receipt := gjson.GetBytes(body.Bytes(), "receipt").String()
		amount := gjson.GetBytes(body.Bytes(), "amount").Float()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":       "order_" + receipt[1:],
			"amount":   int64(amount * 100),
			"currency": "INR",
		})
	case functions.PathGenerateInvoice:
		n := gjson.GetBytes(body.Bytes(), "orderDetails.order_number").String()
		_ = json.NewEncoder(w).Encode(map[string]string{"storagePath": "invoices/" + n[1:] + ".pdf"})
	default:
		_, _ = w.Write([]byte(`{"success":true}`))
	}
}

func (f *functionsStub) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls[path])
}

type testEnv struct {
	handler http.Handler
	store   *sqlstore.Store
	fns     *functionsStub
	orch    *checkout.Orchestrator
}

func newTestEnv(t *testing.T, rps float64, burst int) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := sqlstore.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations("../repository/sqlstore/migrations/sqlite"))
	t.Cleanup(func() { _ = store.Close(ctx) })

	require.NoError(t, store.InsertProduct(ctx, &domain.Product{ID: "p1", Title: "Mug", Price: 100, Ribbon: "new"}))
	require.NoError(t, store.InsertProduct(ctx, &domain.Product{ID: "p2", Title: "Bowl", Price: 40}))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	carts := cart.NewRegistry(cache.NewRedisStore(client, "test"), nil)
	t.Cleanup(func() {
		flushCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		_ = carts.Flush(flushCtx)
		client.Close()
	})

	stub := &functionsStub{calls: make(map[string][][]byte)}
	fnServer := httptest.NewServer(stub)
	t.Cleanup(fnServer.Close)
	fns := functions.New(fnServer.URL)

	invoices := invoice.NewWithConfig(aws.Config{
		Region:      "ap-south-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
	}, "invoices", invoice.WithEndpoint("http://localhost:9000"))

	orch := checkout.New(store, carts, sequencer.New(store), feed.NewRatesCache(store, time.Minute, nil), fns, nil,
		checkout.Config{KeyID: "key_test", KeySecret: testSecret}, nil)

	timeout := 5 * time.Second
	h := NewRouter(Handlers{
		Cart:     NewCartHandler(carts, store, orch, timeout),
		Checkout: NewCheckoutHandler(orch),
		Orders:   NewOrdersHandler(store, orch, invoices, timeout),
		Address:  NewAddressHandler(store, timeout),
		Product:  NewProductHandler(store, timeout),
		Discount: NewDiscountHandler(store, timeout),
		Contact:  NewContactHandler(store, fns, timeout),
	}, RouterConfig{RateLimitRPS: rps, RateLimitBurst: burst, AdminIDs: []string{adminID}})

	return &testEnv{handler: h, store: store, fns: stub, orch: orch}
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

// createAddress stores a complete address for userID and returns its id.
func (e *testEnv) createAddress(t *testing.T, userID string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/addresses", userID, AddressRequestDTO{
		Name: "Asha", Email: "asha@example.com", Address: "1 Main St",
		City: "Pune", State: "MH", PostalCode: "411001", Country: "IN",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.ShippingAddress](t, rec).ID
}

func beginBody(addressID string) checkout.BeginRequest {
	return checkout.BeginRequest{
		Name:          "Asha",
		Email:         "asha@example.com",
		Phone:         "9999999999",
		AddressID:     addressID,
		AcceptedTerms: true,
	}
}
