// Package calllog keeps a per-call transcript of telephony events in
// Redis for operator inspection. It is audit-only: the call flow works
// unchanged when Redis is not configured.
package calllog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	callEventKeyPrefix = "call_events:"
	callEventTTL       = 7 * 24 * time.Hour
)

// Event is one webhook-driven step in a call's lifecycle.
type Event struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"` // voice, gather, dial-status, status
	CallStatus string    `json:"call_status,omitempty"`
	AnsweredBy string    `json:"answered_by,omitempty"`
	Digits     string    `json:"digits,omitempty"`
	Attempt    int       `json:"attempt,omitempty"`
	Note       string    `json:"note,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store appends call events to a capped, expiring Redis list keyed by
// call SID. A nil store (Redis not configured) silently drops events.
type Store struct {
	redis     *redis.Client
	tracer    trace.Tracer
	maxEvents int64
}

func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		return nil
	}
	return &Store{
		redis:     redisClient,
		tracer:    otel.Tracer("confirmline.internal.calllog"),
		maxEvents: 100,
	}
}

// Append records one event for the call.
func (s *Store) Append(ctx context.Context, callSID string, event Event) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if callSID == "" {
		return errors.New("calllog: call SID required")
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("calllog: marshal event: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "calllog.append")
	defer span.End()

	key := callEventKey(callSID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, callEventTTL)
	if s.maxEvents > 0 {
		pipe.LTrim(ctx, key, -s.maxEvents, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("calllog: append event: %w", err)
	}
	return nil
}

// List returns up to limit most recent events for the call, oldest first.
func (s *Store) List(ctx context.Context, callSID string, limit int64) ([]Event, error) {
	if s == nil || s.redis == nil {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if callSID == "" {
		return nil, errors.New("calllog: call SID required")
	}
	if limit <= 0 || limit > s.maxEvents {
		limit = s.maxEvents
	}

	ctx, span := s.tracer.Start(ctx, "calllog.list")
	defer span.End()

	raw, err := s.redis.LRange(ctx, callEventKey(callSID), -limit, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("calllog: list events: %w", err)
	}

	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var event Event
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			// Skip unreadable entries rather than failing the listing.
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func callEventKey(callSID string) string {
	return callEventKeyPrefix + callSID
}
