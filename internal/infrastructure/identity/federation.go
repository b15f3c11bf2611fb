package identity

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/unza/counseling-identity/internal/core/domain"
	"github.com/unza/counseling-identity/internal/core/ports"
)

var errFederationMatch = errors.New("identity federation: member accepted")

// Federation combines identity sources under first-success semantics. In
// sequential mode members are tried in order and no member after the first
// success is contacted. In parallel mode all members race, the first success
// cancels the others and declaration order breaks ties.
type Federation struct {
	name     string
	members  []ports.IdentitySource
	parallel bool
	log      zerolog.Logger
}

func NewFederation(name string, members []ports.IdentitySource, parallel bool, log zerolog.Logger) *Federation {
	return &Federation{name: name, members: members, parallel: parallel, log: log}
}

func (f *Federation) Name() string { return f.name }

// Members returns the federated sources in priority order.
func (f *Federation) Members() []ports.IdentitySource {
	return append([]ports.IdentitySource(nil), f.members...)
}

// Authenticate never returns an error: member failures are logged and the
// federation reports a generic negative result when nobody accepts.
func (f *Federation) Authenticate(ctx context.Context, identifier, secret string) (domain.AuthResult, error) {
	if f.parallel {
		return f.authenticateParallel(ctx, identifier, secret), nil
	}

	for _, m := range f.members {
		if ctx.Err() != nil {
			f.log.Warn().Str("identifier", identifier).Msg("federation deadline reached")
			break
		}
		res, err := m.Authenticate(ctx, identifier, secret)
		if err == nil && res.Success {
			return res, nil
		}
		f.logMiss(m, identifier, res, err)
	}
	return domain.Denied(genericDenial), nil
}

func (f *Federation) authenticateParallel(ctx context.Context, identifier, secret string) domain.AuthResult {
	results := make([]domain.AuthResult, len(f.members))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range f.members {
		g.Go(func() error {
			res, err := m.Authenticate(gctx, identifier, secret)
			if err == nil && res.Success {
				results[i] = res
				return errFederationMatch
			}
			if !errors.Is(gctx.Err(), context.Canceled) {
				f.logMiss(m, identifier, res, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		if res.Success {
			return res
		}
	}
	return domain.Denied(genericDenial)
}

func (f *Federation) logMiss(m ports.IdentitySource, identifier string, res domain.AuthResult, err error) {
	if err != nil {
		f.log.Warn().Err(err).Str("member", m.Name()).Str("identifier", identifier).Msg("federation member failed")
		return
	}
	f.log.Debug().Str("member", m.Name()).Str("identifier", identifier).Str("reason", res.Message).Msg("federation member declined")
}

func (f *Federation) ProfileExists(ctx context.Context, identifier string) bool {
	for _, m := range f.members {
		if m.ProfileExists(ctx, identifier) {
			return true
		}
	}
	return false
}

func (f *Federation) FetchProfile(ctx context.Context, identifier string) (*domain.ExternalProfile, error) {
	var errs []error
	for _, m := range f.members {
		p, err := m.FetchProfile(ctx, identifier)
		if err == nil {
			return p, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(append([]error{domain.ErrProfileUnavailable}, errs...)...)
}
