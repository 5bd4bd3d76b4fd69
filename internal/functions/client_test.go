package functions

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestCreatePaymentOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathCreatePaymentOrder, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, 524.5, gjson.GetBytes(body, "amount").Float())
		assert.Equal(t, "#UA1001", gjson.GetBytes(body, "receipt").String())

		w.Write([]byte(`{"id":"order_abc","amount":52450,"currency":"INR","status":"created"}`))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	order, err := c.CreatePaymentOrder(context.Background(), PaymentOrderRequest{Amount: 524.5, Receipt: "#UA1001"})
	require.NoError(t, err)
	assert.Equal(t, &PaymentOrder{ID: "order_abc", Amount: 52450, Currency: "INR"}, order)
}

func TestCreatePaymentOrder_MissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"amount":100}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).CreatePaymentOrder(context.Background(), PaymentOrderRequest{Amount: 1})
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestGenerateInvoice_ReturnsStoragePath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			OrderDetails domain.Order `json:"orderDetails"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "#UA1001", payload.OrderDetails.OrderNumber)

		w.Write([]byte(`{"storagePath":"invoices/UA1001.pdf"}`))
	}))
	defer srv.Close()

	path, err := New(srv.URL).GenerateInvoice(context.Background(), &domain.Order{OrderNumber: "#UA1001"})
	require.NoError(t, err)
	assert.Equal(t, "invoices/UA1001.pdf", path)
}

func TestSendContactConfirmation_WrapsFormDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathSendContactConfirmation, r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "a@example.com", gjson.GetBytes(body, "formDetails.email").String())
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := New(srv.URL).SendContactConfirmation(context.Background(), &domain.ContactQuery{Email: "a@example.com"})
	assert.NoError(t, err)
}

func TestCall_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New(srv.URL).SendOrderConfirmation(context.Background(), &domain.Order{})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.Status)
	assert.Equal(t, PathSendOrderConfirmation, statusErr.Path)
}

func TestCall_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).GenerateInvoice(context.Background(), &domain.Order{})
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestCall_BreakerOpensAfterFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, WithBreakerSettings(gobreaker.Settings{
		Name:    "test",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	}))

	for i := 0; i < 2; i++ {
		err := c.SendOrderConfirmation(context.Background(), &domain.Order{})
		require.Error(t, err)
	}

	err := c.SendOrderConfirmation(context.Background(), &domain.Order{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestCall_InvoiceOutageLeavesPaymentsAvailable(t *testing.T) {
	var paymentHits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == PathGenerateInvoice {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		atomic.AddInt32(&paymentHits, 1)
		w.Write([]byte(`{"id":"order_abc","amount":100,"currency":"INR"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	for i := 0; i < 5; i++ {
		_, err := c.GenerateInvoice(context.Background(), &domain.Order{OrderNumber: "#UA1001"})
		require.Error(t, err)
	}
	_, err := c.GenerateInvoice(context.Background(), &domain.Order{OrderNumber: "#UA1001"})
	require.ErrorIs(t, err, ErrUnavailable)

	order, err := c.CreatePaymentOrder(context.Background(), PaymentOrderRequest{Amount: 1, Receipt: "#UA1002"})
	require.NoError(t, err)
	assert.Equal(t, "order_abc", order.ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&paymentHits))
}

func TestCall_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(srv.URL).CreatePaymentOrder(ctx, PaymentOrderRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}
