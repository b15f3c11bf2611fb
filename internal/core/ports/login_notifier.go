package ports

import (
	"context"

	"github.com/unza/counseling-identity/internal/core/domain"
)

// LoginNotifier receives login events after the response is decided.
// Implementations must not block the login path for long.
type LoginNotifier interface {
	Notify(ctx context.Context, event domain.LoginEvent) error
}
