// internal/event/nats.go
// Package event provides NATS JetStream implementation for event publishing.
// It streams wish and media events to support real-time board updates.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/wishplanet/wishplanet-go/internal/model"
)

// Publisher interface defines the event publishing operations of the wish
// data service.
type Publisher interface {
	// Wish events
	PublishWishCreated(ctx context.Context, wish model.Wish) error
	PublishWishLiked(ctx context.Context, creator string, txHash string) error
	PublishWishRewarded(ctx context.Context, creator string, txHash string) error

	// Media events
	PublishMediaStored(ctx context.Context, file model.MediaFile) error

	// Close closes the publisher connection
	Close() error
}

// noop is a no-op implementation of Publisher for when NATS is not
// configured. The service functions fully without event streaming.
type noop struct{}

// NewNoopPublisher returns a publisher that drops every event.
func NewNoopPublisher() Publisher { return &noop{} }

func (n *noop) Close() error { return nil }

func (n *noop) PublishWishCreated(ctx context.Context, wish model.Wish) error { return nil }

func (n *noop) PublishWishLiked(ctx context.Context, creator, txHash string) error { return nil }

func (n *noop) PublishWishRewarded(ctx context.Context, creator, txHash string) error { return nil }

func (n *noop) PublishMediaStored(ctx context.Context, file model.MediaFile) error { return nil }

// natsPub is the NATS JetStream implementation of Publisher.
type natsPub struct {
	nc *nats.Conn
	js nats.JetStreamContext

	// Deduplication fields
	wishDedup  map[string]time.Time // Map of wish ids to last publish time
	mediaDedup map[string]time.Time // Map of media file ids to last publish time
	mutex      sync.RWMutex
}

// NewPublisherFromEnv creates a publisher based on environment configuration.
// It reads WISH_NATS_URL; when unset or when the connection fails it returns
// a no-op publisher.
func NewPublisherFromEnv() Publisher {
	url := os.Getenv("WISH_NATS_URL")
	if url == "" {
		return &noop{}
	}

	nc, err := nats.Connect(url)
	if err != nil {
		slog.Warn("NATS connect failed, using noop publisher", "error", err)
		return &noop{}
	}

	js, err := nc.JetStream()
	if err != nil {
		slog.Warn("NATS JetStream context creation failed, using noop publisher", "error", err)
		nc.Close()
		return &noop{}
	}

	if err := initStreams(js); err != nil {
		slog.Warn("NATS stream initialization failed, using noop publisher", "error", err)
		nc.Close()
		return &noop{}
	}

	return &natsPub{
		nc:         nc,
		js:         js,
		wishDedup:  make(map[string]time.Time),
		mediaDedup: make(map[string]time.Time),
	}
}

// initStreams initializes the required NATS streams.
func initStreams(js nats.JetStreamContext) error {
	// WP_WISHES carries wish lifecycle events (created, liked, rewarded).
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      "WP_WISHES",
		Subjects:  []string{"wish.board.*"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Discard:   nats.DiscardOld,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create WP_WISHES stream: %w", err)
	}

	// WP_MEDIA carries attachment storage events.
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      "WP_MEDIA",
		Subjects:  []string{"wish.media.*"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Discard:   nats.DiscardOld,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create WP_MEDIA stream: %w", err)
	}

	return nil
}

// EventEnvelope represents the standard event envelope structure.
// All events published to NATS are wrapped in this envelope for consistency.
type EventEnvelope struct {
	Type          string      `json:"type"`
	Version       string      `json:"version"`
	OccurredAt    time.Time   `json:"occurredAt"`
	CorrelationID string      `json:"correlationId"`
	Payload       interface{} `json:"payload"`
}

// Close closes the NATS connection.
func (p *natsPub) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

// shouldDedup checks whether an event with this key was already published
// inside the 2-minute dedup window.
func (p *natsPub) shouldDedup(key string, dedupMap map[string]time.Time) bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if lastTime, exists := dedupMap[key]; exists {
		return time.Since(lastTime) < 2*time.Minute
	}
	return false
}

// updateDedup records a successful publish and prunes stale entries.
func (p *natsPub) updateDedup(key string, dedupMap map[string]time.Time) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	cutoff := time.Now().Add(-5 * time.Minute)
	for k, t := range dedupMap {
		if t.Before(cutoff) {
			delete(dedupMap, k)
		}
	}
	dedupMap[key] = time.Now()
}

// publish wraps a payload in the standard envelope and sends it.
func (p *natsPub) publish(subject, eventType string, payload interface{}) error {
	envelope := EventEnvelope{
		Type:          eventType,
		Version:       "1.0.0",
		OccurredAt:    time.Now().UTC(),
		CorrelationID: uuid.New().String(),
		Payload:       payload,
	}
	b, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(subject, b)
	return err
}

// PublishWishCreated publishes a wish created event to the WP_WISHES stream.
func (p *natsPub) PublishWishCreated(ctx context.Context, wish model.Wish) error {
	if p.shouldDedup(wish.ID, p.wishDedup) {
		return nil
	}
	if err := p.publish("wish.board.created", "wish.board.created", wish); err != nil {
		return err
	}
	p.updateDedup(wish.ID, p.wishDedup)
	return nil
}

// PublishWishLiked publishes a like event keyed by the liking transaction.
func (p *natsPub) PublishWishLiked(ctx context.Context, creator, txHash string) error {
	if p.shouldDedup(txHash, p.wishDedup) {
		return nil
	}
	payload := map[string]string{"creator": creator, "txHash": txHash}
	if err := p.publish("wish.board.liked", "wish.board.liked", payload); err != nil {
		return err
	}
	p.updateDedup(txHash, p.wishDedup)
	return nil
}

// PublishWishRewarded publishes a reward event keyed by the rewarding
// transaction.
func (p *natsPub) PublishWishRewarded(ctx context.Context, creator, txHash string) error {
	if p.shouldDedup(txHash, p.wishDedup) {
		return nil
	}
	payload := map[string]string{"creator": creator, "txHash": txHash}
	if err := p.publish("wish.board.rewarded", "wish.board.rewarded", payload); err != nil {
		return err
	}
	p.updateDedup(txHash, p.wishDedup)
	return nil
}

// PublishMediaStored publishes a media stored event to the WP_MEDIA stream.
// The payload carries metadata only, never the binary data.
func (p *natsPub) PublishMediaStored(ctx context.Context, file model.MediaFile) error {
	if p.shouldDedup(file.ID, p.mediaDedup) {
		return nil
	}
	file.Data = nil
	if err := p.publish("wish.media.stored", "wish.media.stored", file); err != nil {
		return err
	}
	p.updateDedup(file.ID, p.mediaDedup)
	return nil
}
