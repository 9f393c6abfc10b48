package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/pkg/logger"
)

// SchemaVersion is bumped when an event payload changes incompatibly.
const SchemaVersion = 1

// Event is the envelope of every published message. Key picks the partition;
// session events use the session id so they stay ordered.
type Event struct {
	ID            string            `json:"event_id"`
	Type          string            `json:"event_type"`
	Key           string            `json:"key"`
	Version       int               `json:"version"`
	OccurredAt    time.Time         `json:"timestamp"`
	Source        string            `json:"source"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Option adjusts an event as it is built.
type Option func(*Event)

// WithMetadata attaches a free-form attribute such as the session locale.
func WithMetadata(key, value string) Option {
	return func(e *Event) {
		if value == "" {
			return
		}
		if e.Metadata == nil {
			e.Metadata = map[string]string{}
		}
		e.Metadata[key] = value
	}
}

// NewEvent builds an event around data. The correlation id is taken from ctx.
func NewEvent(ctx context.Context, eventType, key, source string, data any, opts ...Option) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	e := &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Key:           key,
		Version:       SchemaVersion,
		OccurredAt:    time.Now().UTC(),
		Source:        source,
		CorrelationID: logger.CorrelationIDFromContext(ctx),
		Data:          raw,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Decode parses an envelope and its payload.
func Decode[T any](msg []byte) (*Event, T, error) {
	var (
		e    Event
		data T
	)
	if err := json.Unmarshal(msg, &e); err != nil {
		return nil, data, fmt.Errorf("decode event: %w", err)
	}
	if len(e.Data) > 0 {
		if err := json.Unmarshal(e.Data, &data); err != nil {
			return &e, data, fmt.Errorf("decode %s payload: %w", e.Type, err)
		}
	}
	return &e, data, nil
}

// TopicPrefix is the prefix of every storefront topic.
const TopicPrefix = "storefront"

// Topic builds "storefront.<domain>.<action>".
func Topic(domain, action string) string {
	return TopicPrefix + "." + domain + "." + action
}
