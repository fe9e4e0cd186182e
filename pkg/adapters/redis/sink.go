// Package redis publishes run traces to Redis streams.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/ragloop/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Sink implements ports.TraceSink with one Redis stream per run.
type Sink struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	maxLen int64
}

type Option func(*Sink)

// WithTTL sets the expiration of trace streams.
func WithTTL(ttl time.Duration) Option {
	return func(s *Sink) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for trace streams.
func WithPrefix(prefix string) Option {
	return func(s *Sink) {
		s.prefix = prefix
	}
}

// WithMaxLen caps each stream approximately at n entries. Zero disables the cap.
func WithMaxLen(n int64) Option {
	return func(s *Sink) {
		s.maxLen = n
	}
}

// New creates a new Redis sink with options.
func New(address, password string, db int, opts ...Option) *Sink {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis sink from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Sink {
	sink := &Sink{
		client: client,
		prefix: "ragloop:trace:",
	}

	for _, opt := range opts {
		opt(sink)
	}

	return sink
}

func (s *Sink) key(runID string) string {
	return s.prefix + runID
}

func (s *Sink) indexKey() string {
	return s.prefix + "index"
}

// Publish appends the event to the run's stream. The terminal event also registers
// the run in the index.
func (s *Sink) Publish(ctx context.Context, runID string, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := s.client.Pipeline()

	args := &backend.XAddArgs{
		Stream: s.key(runID),
		Values: map[string]any{
			"step":  strconv.Itoa(ev.Step),
			"node":  string(ev.Node),
			"event": data,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	pipe.XAdd(ctx, args)

	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(runID), s.ttl)
	}

	if ev.IsTerminal() {
		// Score = Now + TTL. Without a TTL the run never expires from the index.
		score := float64(time.Now().Add(s.ttl).Unix())
		if s.ttl == 0 {
			score = 4102444800 // 2100-01-01
		}
		pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: runID})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Load reads back every event of a run in order.
func (s *Sink) Load(ctx context.Context, runID string) ([]domain.Event, error) {
	msgs, err := s.client.XRange(ctx, s.key(runID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read from redis: %w", err)
	}
	if len(msgs) == 0 {
		return nil, domain.ErrTraceNotFound
	}

	events := make([]domain.Event, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["event"].(string)
		if !ok {
			return nil, fmt.Errorf("stream entry %s has no event", m.ID)
		}
		var ev domain.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// List returns the ids of finished runs whose traces have not expired.
func (s *Sink) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired runs: %w", err)
	}

	runs, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Delete removes a run trace.
func (s *Sink) Delete(ctx context.Context, runID string) error {
	pipe := s.client.Pipeline()

	pipe.Del(ctx, s.key(runID))
	pipe.ZRem(ctx, s.indexKey(), runID)

	_, err := pipe.Exec(ctx)
	return err
}

// Close closes the redis client.
func (s *Sink) Close() error {
	return s.client.Close()
}
