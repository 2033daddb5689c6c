// Package events carries session-change notifications between API
// instances over Redis pub/sub, one channel per user.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"autocare/internal/models"
)

const channelPrefix = "auth:events:"

func Channel(userID string) string {
	return channelPrefix + userID
}

type Publisher interface {
	Publish(ctx context.Context, msg models.AuthEventMessage) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, userID string) (Stream, error)
}

// Stream is an open subscription. Messages stops when the stream is closed
// or its context ends.
type Stream interface {
	Messages() <-chan models.AuthEventMessage
	Close() error
}

type Bus struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewBus(rdb *redis.Client, log zerolog.Logger) *Bus {
	return &Bus{rdb: rdb, log: log.With().Str("component", "event_bus").Logger()}
}

func (b *Bus) Publish(ctx context.Context, msg models.AuthEventMessage) error {
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.rdb.Publish(ctx, Channel(msg.UserID), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, userID string) (Stream, error) {
	ps := b.rdb.Subscribe(ctx, Channel(userID))
	// Wait for the confirmation so no event published after Subscribe
	// returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", userID, err)
	}

	s := &stream{
		ps:  ps,
		out: make(chan models.AuthEventMessage, 16),
	}
	go s.pump(ctx, b.log)
	return s, nil
}

type stream struct {
	ps  *redis.PubSub
	out chan models.AuthEventMessage
}

func (s *stream) Messages() <-chan models.AuthEventMessage {
	return s.out
}

func (s *stream) Close() error {
	return s.ps.Close()
}

func (s *stream) pump(ctx context.Context, log zerolog.Logger) {
	defer close(s.out)
	in := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			msg, err := Decode(m.Payload)
			if err != nil {
				log.Warn().Err(err).Str("channel", m.Channel).Msg("dropping malformed event")
				continue
			}
			select {
			case s.out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func Decode(payload string) (models.AuthEventMessage, error) {
	var msg models.AuthEventMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return models.AuthEventMessage{}, fmt.Errorf("decode event: %w", err)
	}
	if msg.Event == "" || msg.UserID == "" {
		return models.AuthEventMessage{}, fmt.Errorf("decode event: missing event or user")
	}
	return msg, nil
}

// Relevant reports whether msg should reach the connection holding
// sessionID. Events about other sessions of the same user are only
// forwarded when they affect every session.
func Relevant(msg models.AuthEventMessage, sessionID string) bool {
	switch msg.Event {
	case models.EventUserUpdated:
		return true
	case models.EventSignedOut:
		return msg.Scope == models.SignOutGlobal || msg.SessionID == sessionID
	default:
		return msg.SessionID == sessionID
	}
}
