// Package event publishes cart domain events for downstream consumers
// (abandoned-cart mailers, analytics).
package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/storefront/internal/cart"
	"github.com/utafrali/storefront/internal/currency"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// Kafka topics for cart events.
var (
	TopicCartUpdated = pkgkafka.Topic("cart", "updated")
	TopicCartCleared = pkgkafka.Topic("cart", "cleared")
)

// SourceStorefront identifies events published by this service.
const SourceStorefront = "storefront"

const publishTimeout = 2 * time.Second

// CartUpdatedData is the payload of storefront.cart.updated.
type CartUpdatedData struct {
	SessionID string         `json:"session_id"`
	Op        string         `json:"op"`
	ProductID string         `json:"product_id,omitempty"`
	Quantity  int            `json:"quantity"`
	Items     []CartItemData `json:"items"`
	ItemCount int            `json:"item_count"`
	Subtotal  string         `json:"subtotal"`
	Currency  string         `json:"currency"`
}

// CartItemData is an item within cart events.
type CartItemData struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Quantity  int    `json:"quantity"`
}

// CartClearedData is the payload of storefront.cart.cleared.
type CartClearedData struct {
	SessionID string `json:"session_id"`
}

// Producer publishes cart events.
type Producer struct {
	pub    pkgkafka.Publisher
	logger *slog.Logger
}

// NewProducer creates a cart event producer.
func NewProducer(pub pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{pub: pub, logger: logger}
}

// PublishCartUpdated publishes storefront.cart.updated for a change.
func (p *Producer) PublishCartUpdated(ctx context.Context, sessionID string, c cart.Change) error {
	items := make([]CartItemData, len(c.Snapshot.Items))
	for i, item := range c.Snapshot.Items {
		items[i] = CartItemData{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price.String(),
			Quantity:  item.Quantity,
		}
	}

	data := CartUpdatedData{
		SessionID: sessionID,
		Op:        c.Op,
		ProductID: c.ProductID,
		Quantity:  c.Quantity,
		Items:     items,
		ItemCount: c.Snapshot.ItemCount(),
		Subtotal:  c.Snapshot.Subtotal().String(),
		Currency:  currency.BaseCurrency,
	}

	event, err := pkgkafka.NewEvent(ctx, TopicCartUpdated, sessionID, SourceStorefront, data)
	if err != nil {
		return err
	}

	if err := p.pub.Publish(ctx, TopicCartUpdated, event); err != nil {
		return fmt.Errorf("publish cart.updated event: %w", err)
	}
	return nil
}

// PublishCartCleared publishes storefront.cart.cleared.
func (p *Producer) PublishCartCleared(ctx context.Context, sessionID string) error {
	event, err := pkgkafka.NewEvent(ctx, TopicCartCleared, sessionID, SourceStorefront, CartClearedData{SessionID: sessionID})
	if err != nil {
		return err
	}

	if err := p.pub.Publish(ctx, TopicCartCleared, event); err != nil {
		return fmt.Errorf("publish cart.cleared event: %w", err)
	}
	return nil
}

// CartListener returns a cart listener that publishes every change for
// sessionID. Publish failures are logged and never reach the caller; the
// publish outlives request cancellation but is bounded by a short timeout.
func (p *Producer) CartListener(sessionID string) cart.Listener {
	return func(ctx context.Context, c cart.Change) {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		var err error
		if c.Op == cart.OpCleared {
			err = p.PublishCartCleared(pubCtx, sessionID)
		} else {
			err = p.PublishCartUpdated(pubCtx, sessionID, c)
		}
		if err != nil {
			logger.WithContext(ctx, p.logger).WarnContext(ctx, "cart event not published",
				slog.String("op", c.Op),
				slog.String("error", err.Error()),
			)
		}
	}
}
