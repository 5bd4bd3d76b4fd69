package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
)

type mockWriter struct {
	mu       sync.Mutex
	messages []kafkaGo.Message
	err      error
	closed   bool
}

func (w *mockWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *mockWriter) Close() error {
	w.closed = true
	return nil
}

func placedOrder() *domain.Order {
	return &domain.Order{
		OrderNumber: "#UA1001",
		UserID:      "u1",
		Status:      domain.OrderStatusProcessing,
		Total:       524,
		Items:       []domain.OrderItem{{ProductID: "p1", Title: "Mug", Price: 100, Quantity: 2}},
		Payment:     domain.PaymentInfo{Status: domain.PaymentStatusSuccess},
	}
}

func TestOrderPlaced(t *testing.T) {
	w := &mockWriter{}
	p := newPublisher(w, nil)
	p.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, p.OrderPlaced(context.Background(), placedOrder()))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "#UA1001", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, TypeOrderPlaced, string(msg.Headers[0].Value))

	var ev OrderEvent
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, TypeOrderPlaced, ev.EventType)
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, domain.OrderStatusProcessing, ev.Status)
	assert.Equal(t, 524.0, ev.Total)
	assert.Empty(t, ev.FailureCode)
	assert.Len(t, ev.Items, 1)
	assert.Equal(t, 2024, ev.OccurredAt.Year())
}

func TestOrderFailed_CarriesFailureCode(t *testing.T) {
	w := &mockWriter{}
	p := newPublisher(w, nil)
	order := placedOrder()
	order.Status = domain.OrderStatusFailed
	order.Payment = domain.PaymentInfo{
		Status: domain.PaymentStatusFailed,
		Error:  &domain.PaymentFailure{Code: "ABANDONED"},
	}

	require.NoError(t, p.OrderFailed(context.Background(), order))

	var ev OrderEvent
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &ev))
	assert.Equal(t, TypeOrderFailed, ev.EventType)
	assert.Equal(t, "ABANDONED", ev.FailureCode)
	assert.Equal(t, domain.PaymentStatusFailed, ev.PaymentStatus)
}

func TestPublish_WriterError(t *testing.T) {
	w := &mockWriter{err: errors.New("broker unreachable")}
	p := newPublisher(w, nil)

	err := p.OrderPlaced(context.Background(), placedOrder())
	assert.ErrorContains(t, err, "broker unreachable")
	assert.Empty(t, w.messages)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func setupKafka(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	})

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func TestPublisher_Kafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka integration test in short mode")
	}
	broker := setupKafka(t)

	p := NewPublisher(nil, broker)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.Eventually(t, func() bool {
		return p.OrderPlaced(ctx, placedOrder()) == nil
	}, 20*time.Second, time.Second)

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{broker},
		Topic:    Topic,
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "#UA1001", string(msg.Key))
}
