// Package events publishes resolved orders to Kafka for downstream
// consumers such as fulfilment and analytics.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	Topic = "storefront-orders"

	TypeOrderPlaced = "OrderPlaced"
	TypeOrderFailed = "OrderFailed"

	writeTimeout = 10 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OrderEvent is the JSON value of every message on the topic.
type OrderEvent struct {
	EventType     string               `json:"event_type"`
	OrderNumber   string               `json:"order_number"`
	UserID        string               `json:"user_id"`
	Status        domain.OrderStatus   `json:"status"`
	Total         float64              `json:"total"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	FailureCode   string               `json:"failure_code,omitempty"`
	Items         []domain.OrderItem   `json:"items"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

type Publisher struct {
	writer messageWriter
	log    *zap.Logger
	now    func() time.Time
}

func NewPublisher(log *zap.Logger, brokers ...string) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           writeTimeout,
	}
	return newPublisher(w, log)
}

func newPublisher(w messageWriter, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{writer: w, log: log, now: time.Now}
}

func (p *Publisher) OrderPlaced(ctx context.Context, order *domain.Order) error {
	return p.publish(ctx, TypeOrderPlaced, order)
}

func (p *Publisher) OrderFailed(ctx context.Context, order *domain.Order) error {
	return p.publish(ctx, TypeOrderFailed, order)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func (p *Publisher) publish(ctx context.Context, eventType string, order *domain.Order) error {
	ev := OrderEvent{
		EventType:     eventType,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Status:        order.Status,
		Total:         order.Total,
		PaymentStatus: order.Payment.Status,
		Items:         order.Items,
		OccurredAt:    p.now().UTC(),
	}
	if order.Payment.Error != nil {
		ev.FailureCode = order.Payment.Error.Code
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	// keyed by order number so every event of one order lands on one partition
	msg := kafka.Message{
		Key:   []byte(order.OrderNumber),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}

	err = p.writer.WriteMessages(ctx, msg)
	metrics.RecordEvent(eventType, err == nil)
	if err != nil {
		p.log.Warn("failed to publish order event",
			zap.String("event_type", eventType),
			zap.String("order_number", order.OrderNumber),
			zap.Error(err))
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	return nil
}
