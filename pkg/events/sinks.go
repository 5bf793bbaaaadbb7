package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Envelope is the serialized form of an event
type Envelope struct {
	Name      string          `json:"name"`
	EmittedAt int64           `json:"emittedAt"`
	Data      json.RawMessage `json:"data"`
}

// NewEnvelope wraps event for transport
func NewEnvelope(event Event, at time.Time) (*Envelope, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return &Envelope{Name: event.Name(), EmittedAt: at.Unix(), Data: data}, nil
}

// LoggingSink writes every event to the structured log
type LoggingSink struct {
	logger *zap.Logger
}

func NewLoggingSink(logger *zap.Logger) *LoggingSink {
	return &LoggingSink{logger: logger}
}

func (s *LoggingSink) Emit(_ context.Context, event Event) {
	s.logger.Sugar().Infow("Vault event", "event", event.Name(), "data", event)
}

// MemorySink records events in order. Intended for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Emit(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of everything emitted so far
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Last returns the most recent event or nil
func (s *MemorySink) Last() Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return nil
	}
	return s.events[len(s.events)-1]
}

// Reset drops recorded events
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// RedisSink publishes event envelopes on a Redis pub/sub channel
type RedisSink struct {
	client  redis.UniversalClient
	channel string
	timeout time.Duration
	logger  *zap.Logger
}

// DefaultRedisEventChannel is used when no channel is configured
const DefaultRedisEventChannel = "reward-vault:events"

func NewRedisSink(client redis.UniversalClient, channel string, logger *zap.Logger) *RedisSink {
	if channel == "" {
		channel = DefaultRedisEventChannel
	}
	return &RedisSink{
		client:  client,
		channel: channel,
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

func (s *RedisSink) Emit(ctx context.Context, event Event) {
	env, err := NewEnvelope(event, time.Now())
	if err != nil {
		s.logger.Sugar().Warnw("Failed to encode event", "event", event.Name(), "error", err)
		return
	}
	payload, err := json.Marshal(env)
	if err != nil {
		s.logger.Sugar().Warnw("Failed to encode event envelope", "event", event.Name(), "error", err)
		return
	}

	// The caller's context may already be done once the operation has committed
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.client.Publish(pubCtx, s.channel, payload).Err(); err != nil {
		s.logger.Sugar().Warnw("Failed to publish event", "event", event.Name(), "channel", s.channel, "error", err)
	}
}

// MultiSink fans an event out to several sinks in order
type MultiSink struct {
	sinks []IEventSink
}

func NewMultiSink(sinks ...IEventSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m.sinks {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}
