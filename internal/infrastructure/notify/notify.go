// Package notify selects where login events go.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/unza/counseling-identity/internal/core/domain"
	"github.com/unza/counseling-identity/internal/core/ports"
)

const (
	KindNoop  = "noop"
	KindLog   = "log"
	KindRedis = "redis"
)

// Noop discards every event.
type Noop struct{}

func (Noop) Notify(context.Context, domain.LoginEvent) error { return nil }

// Log writes events to the structured log.
type Log struct {
	log zerolog.Logger
}

func NewLog(log zerolog.Logger) Log { return Log{log: log} }

func (l Log) Notify(_ context.Context, ev domain.LoginEvent) error {
	l.log.Info().
		Str("subject", ev.Subject).
		Str("source", string(ev.Source)).
		Str("external_system", ev.ExternalSystem).
		Bool("provisioned", ev.Provisioned).
		Bool("degraded", ev.Degraded).
		Time("at", ev.At).
		Msg("login event")
	return nil
}

// New returns the notifier for kind. redisSink is only consulted for
// KindRedis and must be non-nil then.
func New(kind string, redisSink ports.LoginNotifier, log zerolog.Logger) (ports.LoginNotifier, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindNoop:
		return Noop{}, nil
	case KindLog:
		return NewLog(log), nil
	case KindRedis:
		if redisSink == nil {
			return nil, fmt.Errorf("notifier %q requires a redis connection", kind)
		}
		return redisSink, nil
	default:
		return nil, fmt.Errorf("unknown notifier %q", kind)
	}
}
