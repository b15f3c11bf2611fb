package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unza/counseling-identity/internal/core/domain"
)

const (
	defaultLoginStream    = "identity:logins"
	defaultLoginStreamLen = 100_000
	lastLoginTTL          = 30 * 24 * time.Hour
)

// LoginEventStream appends login events to a capped Redis stream and keeps a
// last-login marker per subject.
// Stream entry fields: subject, source, payload (JSON encoded domain.LoginEvent).
type LoginEventStream struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewLoginEventStream wraps client. Empty stream and non-positive maxLen fall
// back to defaults.
func NewLoginEventStream(client *redis.Client, stream string, maxLen int64) *LoginEventStream {
	if stream == "" {
		stream = defaultLoginStream
	}
	if maxLen <= 0 {
		maxLen = defaultLoginStreamLen
	}
	return &LoginEventStream{client: client, stream: stream, maxLen: maxLen}
}

func (s *LoginEventStream) Notify(ctx context.Context, ev domain.LoginEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode login event: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"subject": ev.Subject,
			"source":  string(ev.Source),
			"payload": payload,
		},
	})
	pipe.Set(ctx, s.lastLoginKey(ev.Subject), ev.At.Unix(), lastLoginTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish login event: %w", err)
	}
	return nil
}

// LastLogin returns when subject last logged in, or the zero time.
func (s *LoginEventStream) LastLogin(ctx context.Context, subject string) (time.Time, error) {
	ts, err := s.client.Get(ctx, s.lastLoginKey(subject)).Int64()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last login: %w", err)
	}
	return time.Unix(ts, 0).UTC(), nil
}

func (s *LoginEventStream) lastLoginKey(subject string) string {
	return fmt.Sprintf("%s:last:%s", s.stream, subject)
}
