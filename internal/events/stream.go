package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/school-treasury/internal/model"
	"github.com/nimasrn/school-treasury/pkg/logger"
	"github.com/nimasrn/school-treasury/pkg/redis"
)

const (
	fieldData = "data"
	fieldKind = "kind"
	fieldID   = "event_id"

	noBlock = -1 * time.Millisecond
)

// Message is one delivery of a ledger event to a consumer.
type Message struct {
	ID       string
	Event    model.LedgerEvent
	Attempts int64
	raw      string
}

// Handler processes a delivered event. Returning nil acks the message;
// an error leaves it pending so it is claimed again after VisibilityTimeout.
type Handler func(ctx context.Context, msg *Message) error

type StreamConfig struct {
	Name              string
	ConsumerGroup     string
	ConsumerName      string
	MaxRetries        int64
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	BatchSize         int64
	MaxLen            int64
	EnableDLQ         bool
}

type Stats struct {
	TotalMessages   int64
	PendingMessages int64
	DeadLetters     int64
}

// Stream publishes ledger events to a Redis stream and consumes them through
// a consumer group.
type Stream struct {
	adapter redis.RedisAdapter
	config  StreamConfig
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

func NewStream(adapter redis.RedisAdapter, config StreamConfig) (*Stream, error) {
	if adapter == nil {
		return nil, fmt.Errorf("redis adapter is required")
	}
	if config.Name == "" {
		return nil, fmt.Errorf("stream name is required")
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = "treasury-processor"
	}
	if config.ConsumerName == "" {
		config.ConsumerName = fmt.Sprintf("consumer-%d", time.Now().UnixNano())
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.VisibilityTimeout == 0 {
		config.VisibilityTimeout = 30 * time.Second
	}
	if config.PollInterval == 0 {
		config.PollInterval = time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{
		adapter: adapter,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

func (s *Stream) Name() string { return s.config.Name }

func (s *Stream) DeadLetterName() string { return s.config.Name + ":dlq" }

// Publish appends events to the stream in order. Events without an id get one.
func (s *Stream) Publish(ctx context.Context, events ...model.LedgerEvent) error {
	for i := range events {
		ev := events[i]
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = time.Now().UTC()
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", ev.Kind, err)
		}
		values := map[string]interface{}{
			fieldData: string(data),
			fieldKind: string(ev.Kind),
			fieldID:   ev.ID,
		}
		if _, err := s.adapter.XAdd(ctx, s.config.Name, s.config.MaxLen, values); err != nil {
			return fmt.Errorf("failed to publish event %s: %w", ev.Kind, err)
		}
	}
	return nil
}

// Consume creates the consumer group if needed and starts the poll loop.
func (s *Stream) Consume(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("event handler is required")
	}
	err := s.adapter.XGroupCreateMkStream(s.ctx, s.config.Name, s.config.ConsumerGroup, "0")
	if err != nil && !redis.IsBusyGroup(err) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	s.handler = handler
	s.wg.Add(1)
	go s.consumeLoop()
	return nil
}

func (s *Stream) consumeLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.processMessages()
			s.claimStuckMessages()
		}
	}
}

func (s *Stream) processMessages() {
	messages, err := s.adapter.XReadGroup(s.ctx,
		s.config.ConsumerGroup,
		s.config.ConsumerName,
		s.config.Name,
		">",
		s.config.BatchSize,
		noBlock,
	)
	if err != nil {
		if !redis.IsNil(err) && s.ctx.Err() == nil {
			logger.Warn("failed to read ledger events", "stream", s.config.Name, "error", err)
		}
		return
	}

	for _, sm := range messages {
		msg := decode(sm)
		msg.Attempts = 1
		s.handle(msg)
	}
}

func (s *Stream) claimStuckMessages() {
	pending, err := s.adapter.XPendingExt(s.ctx, s.config.Name, s.config.ConsumerGroup, 100)
	if err != nil || len(pending) == 0 {
		return
	}

	deliveries := make(map[string]int64, len(pending))
	var ids []string
	for _, p := range pending {
		if p.Idle >= s.config.VisibilityTimeout {
			ids = append(ids, p.ID)
			deliveries[p.ID] = p.RetryCount
		}
	}
	if len(ids) == 0 {
		return
	}

	messages, err := s.adapter.XClaim(s.ctx,
		s.config.Name,
		s.config.ConsumerGroup,
		s.config.ConsumerName,
		s.config.VisibilityTimeout,
		ids...,
	)
	if err != nil {
		logger.Warn("failed to claim stuck ledger events", "stream", s.config.Name, "error", err)
		return
	}

	for _, sm := range messages {
		msg := decode(sm)
		msg.Attempts = deliveries[sm.ID] + 1
		s.handle(msg)
	}
}

func (s *Stream) handle(msg *Message) {
	if msg.Attempts > s.config.MaxRetries {
		logger.Error("ledger event exceeded max retries",
			"stream", s.config.Name, "message_id", msg.ID, "kind", msg.Event.Kind, "attempts", msg.Attempts)
		s.moveToDeadLetter(msg)
		s.ack(msg.ID)
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.config.VisibilityTimeout)
	defer cancel()

	if err := s.handler(ctx, msg); err != nil {
		logger.Warn("ledger event handler failed",
			"stream", s.config.Name, "message_id", msg.ID, "kind", msg.Event.Kind, "attempts", msg.Attempts, "error", err)
		return
	}
	s.ack(msg.ID)
}

func (s *Stream) ack(id string) {
	if err := s.adapter.XAck(s.ctx, s.config.Name, s.config.ConsumerGroup, id); err != nil {
		logger.Warn("failed to ack ledger event", "message_id", id, "error", err)
	}
}

func (s *Stream) moveToDeadLetter(msg *Message) {
	if !s.config.EnableDLQ {
		return
	}
	values := map[string]interface{}{
		fieldData:         msg.raw,
		fieldKind:         string(msg.Event.Kind),
		fieldID:           msg.Event.ID,
		"original_id":     msg.ID,
		"attempts":        msg.Attempts,
		"failed_at":       time.Now().Unix(),
		"original_stream": s.config.Name,
	}
	if _, err := s.adapter.XAdd(s.ctx, s.DeadLetterName(), 0, values); err != nil {
		logger.Error("failed to move ledger event to dead letter stream", "message_id", msg.ID, "error", err)
	}
}

func decode(sm redis.StreamMessage) *Message {
	msg := &Message{ID: sm.ID}
	if data, ok := sm.Values[fieldData].(string); ok {
		msg.raw = data
		if err := json.Unmarshal([]byte(data), &msg.Event); err != nil {
			logger.Warn("undecodable ledger event", "message_id", sm.ID, "error", err)
		}
	}
	if msg.Event.Kind == "" {
		if kind, ok := sm.Values[fieldKind].(string); ok {
			msg.Event.Kind = model.EventKind(kind)
		}
	}
	return msg
}

// Stop cancels the poll loop and waits up to timeout for the in-flight batch.
func (s *Stream) Stop(timeout time.Duration) error {
	s.once.Do(s.cancel)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for event stream to stop")
	}
}

func (s *Stream) Stats(ctx context.Context) (*Stats, error) {
	total, err := s.adapter.XLen(ctx, s.config.Name)
	if err != nil {
		return nil, err
	}
	stats := &Stats{TotalMessages: total}

	if pending, err := s.adapter.XPendingExt(ctx, s.config.Name, s.config.ConsumerGroup, 1000); err == nil {
		stats.PendingMessages = int64(len(pending))
	}
	if dlq, err := s.adapter.XLen(ctx, s.DeadLetterName()); err == nil {
		stats.DeadLetters = dlq
	}
	return stats, nil
}
