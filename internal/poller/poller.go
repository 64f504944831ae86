// Package poller empties carts once their checkout has completed.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	DefaultTopic   = "checkout-outbox"
	DefaultGroupID = "cart-service-consumer"

	readErrorBackoff = time.Second
)

// CartClearer removes a user's cart together with any cached copy.
type CartClearer interface {
	ClearCart(ctx context.Context, userID string) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

type Poller struct {
	carts  CartClearer
	reader messageReader
	logger *zap.Logger
}

type checkoutEvent struct {
	CheckoutID string `json:"checkout_id"`
	UserID     string `json:"user_id"`
}

func NewPoller(carts CartClearer, cfg Config, logger *zap.Logger) *Poller {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.GroupID == "" {
		cfg.GroupID = DefaultGroupID
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return newPoller(carts, reader, logger)
}

func newPoller(carts CartClearer, reader messageReader, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{carts: carts, reader: reader, logger: logger}
}

// Run consumes until ctx is cancelled. It always returns nil so it can sit in
// an errgroup next to the HTTP server.
func (p *Poller) Run(ctx context.Context) error {
	for {
		m, err := p.reader.ReadMessage(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			p.logger.Warn("error reading checkout message", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readErrorBackoff):
			}
			continue
		}

		if err := p.handle(ctx, m.Value); err != nil {
			p.logger.Warn("checkout message dropped",
				zap.Int64("offset", m.Offset),
				zap.Int("partition", m.Partition),
				zap.Error(err))
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.logger.Warn("error closing reader", zap.Error(err))
	}
}

func (p *Poller) handle(ctx context.Context, value []byte) error {
	var event checkoutEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("error parsing message: %w", err)
	}
	if event.UserID == "" {
		return errors.New("missing or invalid user_id")
	}

	if err := p.carts.ClearCart(ctx, event.UserID); err != nil {
		return fmt.Errorf("failed to clear cart for %s: %w", event.UserID, err)
	}
	p.logger.Info("cart cleared after checkout",
		zap.String("user_id", event.UserID),
		zap.String("checkout_id", event.CheckoutID))
	return nil
}
