package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bookstore/services/storefront/internal/db"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	exchangeName = "bookstore.events"
	exchangeType = "topic"

	// Event types
	EventTypeCatalogCreated = "catalog.created"
	EventTypeCatalogUpdated = "catalog.updated"
	EventTypeCatalogDeleted = "catalog.deleted"
	EventTypeOrderCreated   = "order.created"

	eventVersion = "1.0.0"

	// Retry configuration
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
	confirmTimeout = 5 * time.Second
)

// Publisher emits domain events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishBookCreated(ctx context.Context, book *db.Book) error
	PublishBookUpdated(ctx context.Context, book *db.Book) error
	PublishBooksDeleted(ctx context.Context, ids []uint, all bool) error
	PublishOrderCreated(ctx context.Context, order *db.Order) error
	IsHealthy() bool
	Close() error
}

// Event represents a domain event
type Event struct {
	EventID       string                 `json:"event_id"`
	EventType     string                 `json:"event_type"`
	EventVersion  string                 `json:"event_version"`
	Timestamp     string                 `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
}

type correlationKey struct{}

// WithCorrelationID attaches id to ctx so published events carry it.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id attached by WithCorrelationID, if any.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// NewEvent builds an event of eventType stamped with a fresh id and the
// correlation id found in ctx.
func NewEvent(ctx context.Context, eventType string, payload map[string]interface{}) Event {
	return Event{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		CorrelationID: CorrelationID(ctx),
		Payload:       payload,
	}
}

func bookPayload(book *db.Book) map[string]interface{} {
	return map[string]interface{}{
		"id":     book.ID,
		"isbn":   book.ISBN,
		"title":  book.Title,
		"author": book.Author,
		"genre":  book.Genre,
		"price":  book.Price.StringFixed(2),
	}
}

func orderPayload(order *db.Order) map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, map[string]interface{}{
			"book_id":    it.BookID,
			"quantity":   it.Quantity,
			"unit_price": it.UnitPrice.StringFixed(2),
		})
	}
	return map[string]interface{}{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"total":    order.Total.StringFixed(2),
		"items":    items,
	}
}

// AMQPPublisher publishes events to a RabbitMQ topic exchange with
// publisher confirms.
type AMQPPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	log     *zap.Logger
}

// NewAMQPPublisher connects to RabbitMQ and declares the events exchange
func NewAMQPPublisher(url string, log *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		exchangeName,
		exchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	log.Info("Connected to RabbitMQ", zap.String("exchange", exchangeName))

	return &AMQPPublisher{
		conn:    conn,
		channel: channel,
		log:     log,
	}, nil
}

// PublishBookCreated publishes a book created event
func (p *AMQPPublisher) PublishBookCreated(ctx context.Context, book *db.Book) error {
	return p.publishWithRetry(ctx, NewEvent(ctx, EventTypeCatalogCreated, bookPayload(book)))
}

// PublishBookUpdated publishes a book updated event with the stored state
func (p *AMQPPublisher) PublishBookUpdated(ctx context.Context, book *db.Book) error {
	return p.publishWithRetry(ctx, NewEvent(ctx, EventTypeCatalogUpdated, bookPayload(book)))
}

// PublishBooksDeleted publishes a deletion of the listed books, or of the
// whole catalog when all is set.
func (p *AMQPPublisher) PublishBooksDeleted(ctx context.Context, ids []uint, all bool) error {
	return p.publishWithRetry(ctx, NewEvent(ctx, EventTypeCatalogDeleted, map[string]interface{}{
		"ids": ids,
		"all": all,
	}))
}

// PublishOrderCreated publishes a placed order with its lines
func (p *AMQPPublisher) PublishOrderCreated(ctx context.Context, order *db.Order) error {
	return p.publishWithRetry(ctx, NewEvent(ctx, EventTypeOrderCreated, orderPayload(order)))
}

// publishWithRetry publishes an event with exponential backoff retry
func (p *AMQPPublisher) publishWithRetry(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		p.log.Error("Failed to marshal event", zap.Error(err))
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	routingKey := event.EventType
	backoff := initialBackoff
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
		}

		confirmation, err := p.channel.PublishWithDeferredConfirmWithContext(
			ctx,
			exchangeName,
			routingKey,
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:   "application/json",
				DeliveryMode:  amqp.Persistent,
				Timestamp:     time.Now(),
				MessageId:     event.EventID,
				CorrelationId: event.CorrelationID,
				Body:          body,
				Headers: amqp.Table{
					"event_type":    event.EventType,
					"event_version": event.EventVersion,
				},
			},
		)
		if err != nil {
			lastErr = err
			p.log.Warn("Failed to publish event, retrying",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		confirmCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
		acked, err := confirmation.WaitContext(confirmCtx)
		cancel()
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			lastErr = fmt.Errorf("confirmation timeout")
		case acked:
			p.log.Info("Event published successfully",
				zap.String("event_id", event.EventID),
				zap.String("event_type", event.EventType),
				zap.String("routing_key", routingKey),
			)
			return nil
		default:
			lastErr = fmt.Errorf("event not acknowledged")
		}

		p.log.Warn("Event publish not confirmed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	p.log.Error("Failed to publish event after retries",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.Int("attempts", maxRetries),
		zap.Error(lastErr),
	)
	return fmt.Errorf("failed to publish event after %d attempts: %w", maxRetries, lastErr)
}

// IsHealthy checks if the publisher connection is healthy
func (p *AMQPPublisher) IsHealthy() bool {
	return p.conn != nil && !p.conn.IsClosed()
}

// Close closes the publisher connection
func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.log.Error("Failed to close channel", zap.Error(err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.log.Error("Failed to close connection", zap.Error(err))
			return err
		}
	}
	p.log.Info("Publisher closed")
	return nil
}

// NoopPublisher drops every event. It stands in when the broker is
// unreachable at startup.
type NoopPublisher struct{}

func (NoopPublisher) PublishBookCreated(context.Context, *db.Book) error { return nil }
func (NoopPublisher) PublishBookUpdated(context.Context, *db.Book) error { return nil }
func (NoopPublisher) PublishBooksDeleted(context.Context, []uint, bool) error { return nil }
func (NoopPublisher) PublishOrderCreated(context.Context, *db.Order) error { return nil }
func (NoopPublisher) IsHealthy() bool { return true }
func (NoopPublisher) Close() error { return nil }
