package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/unza/counseling-identity/internal/core/domain"
	"github.com/unza/counseling-identity/internal/core/ports"
	"github.com/unza/counseling-identity/internal/core/service"
	"github.com/unza/counseling-identity/internal/infrastructure/config"
	"github.com/unza/counseling-identity/internal/infrastructure/db/memory"
	mongodb "github.com/unza/counseling-identity/internal/infrastructure/db/mongo"
	redisdb "github.com/unza/counseling-identity/internal/infrastructure/db/redis"
	"github.com/unza/counseling-identity/internal/infrastructure/identity"
	"github.com/unza/counseling-identity/internal/infrastructure/notify"
	"github.com/unza/counseling-identity/internal/infrastructure/queue"
	"github.com/unza/counseling-identity/pkg/logger"
)

// app holds the wired object graph shared by serve and the admin commands.
type app struct {
	users ports.UserRepository
	roles ports.RoleRepository

	mongoDB *mongo.Database
	redis   *goredis.Client

	reconciler *service.Reconciler
	catalog    *service.RoleCatalog
	tokens     *service.TokenService
	auth       *service.AuthService
	admin      *service.AdminService
	dispatcher *queue.Dispatcher

	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{}
	if err := a.openStorage(ctx, cfg, log); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.wireServices(ctx, cfg, log); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	switch strings.ToLower(cfg.StorageDriver) {
	case "memory":
		a.users = memory.NewUserRepository()
		a.roles = memory.NewRoleRepository()
		log.Warn().Msg("using in-memory user store; accounts are lost on restart")
	default:
		client, db, err := mongodb.Connect(ctx, mongodb.Config{
			URI:         cfg.Mongo.URI,
			Database:    cfg.Mongo.Database,
			AppName:     "identityd",
			MaxPoolSize: cfg.Mongo.MaxPoolSize,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		a.closers = append(a.closers, client.Disconnect)
		users := mongodb.NewUserRepository(db)
		roles := mongodb.NewRoleRepository(db)
		if err := mongodb.EnsureIndexes(ctx, users, roles); err != nil {
			return fmt.Errorf("failed to ensure indexes: %w", err)
		}
		a.mongoDB, a.users, a.roles = db, users, roles
		log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongodb")
	}

	if strings.EqualFold(cfg.Notifier, notify.KindRedis) {
		rdb, err := redisdb.Connect(ctx, redisdb.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
		a.redis = rdb
		log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")
	}
	return nil
}

func (a *app) wireServices(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	policy, err := provisioningPolicy(cfg.Provisioning)
	if err != nil {
		return err
	}

	a.tokens, err = service.NewTokenService(service.TokenConfig{
		Secret:     cfg.JWT.Secret,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
		Issuer:     cfg.JWT.Issuer,
		Leeway:     cfg.JWT.Leeway,
	}, logger.Component("tokens"))
	if err != nil {
		return err
	}

	a.reconciler = service.NewReconciler(a.users, a.roles, policy, logger.Component("reconciler"))
	a.catalog = service.NewRoleCatalog(a.roles, cfg.Login.RoleCacheTTL, log)

	internal, err := identity.NewInternal(a.users, log)
	if err != nil {
		return err
	}
	sis := identity.NewFederation("SIS", sisMembers(cfg.SIS, log), cfg.SIS.Parallel, log)
	hr := identity.NewHR(identity.HRConfig{
		BaseURL:      cfg.HR.BaseURL,
		LoginPath:    cfg.HR.LoginPath,
		MetadataPath: cfg.HR.MetadataPath,
		StaffPath:    cfg.HR.StaffPath,
		Timeout:      cfg.HR.CallTimeout,
	}, identity.NewHTTPClient(cfg.HR.CallTimeout), log)

	var redisSink ports.LoginNotifier
	if a.redis != nil {
		redisSink = redisdb.NewLoginEventStream(a.redis, cfg.Redis.LoginStream, cfg.Redis.StreamMaxLen)
	}
	sink, err := notify.New(cfg.Notifier, redisSink, logger.Component("login_events"))
	if err != nil {
		return err
	}
	a.dispatcher = queue.NewDispatcher(cfg.Login.DispatchWorkers, sink, log)

	a.auth = service.NewAuthService(service.AuthDependencies{
		Users:      a.users,
		Internal:   internal,
		SIS:        sis,
		HR:         hr,
		Reconciler: a.reconciler,
		Tokens:     a.tokens,
		Catalog:    a.catalog,
		Notifier:   a.dispatcher,
	}, service.LoginPolicy{
		Timeout:              cfg.Login.Timeout,
		InternalIdentities:   cfg.Login.InternalIdentities,
		StaffEmailDomain:     cfg.Login.StaffEmailDomain,
		ReservedIdentities:   []string{cfg.Admin.Email, cfg.Admin.Username},
		ReservedEmailDomains: []string{cfg.Provisioning.EmailDomain},
	}, logger.Component("auth"))

	a.admin = service.NewAdminService(a.users, a.roles, a.reconciler,
		[]ports.IdentitySource{internal, sis, hr}, logger.Component("admin"))

	log.Info().
		Str("storage", cfg.StorageDriver).
		Str("notifier", cfg.Notifier).
		Int("sis_campuses", len(sis.Members())).
		Bool("sis_parallel", cfg.SIS.Parallel).
		Msg("services wired")
	return nil
}

// Close releases connections in reverse order of opening.
func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i](ctx)
	}
	a.closers = nil
}

// bootstrapAdmin runs the initial admin bootstrap from configuration.
func (a *app) bootstrapAdmin(ctx context.Context, admin config.AdminConfig) (*domain.User, error) {
	if admin.Password == "" {
		return nil, errors.New("ADMIN_PASSWORD is not set")
	}
	return a.admin.Bootstrap(ctx, ports.CreateUserInput{
		Username: admin.Username,
		Email:    admin.Email,
		Password: admin.Password,
	})
}

// sisMembers builds the campus instances in federation order, skipping
// campuses without a configured URL.
func sisMembers(c config.SISConfig, log zerolog.Logger) []ports.IdentitySource {
	urls := map[string]string{
		"undergraduate": c.UndergraduateURL,
		"postgraduate":  c.PostgraduateURL,
		"distance":      c.DistanceURL,
		"gsb":           c.GSBURL,
		"zou":           c.ZOUURL,
		"ecampus":       c.ECampusURL,
	}
	client := identity.NewHTTPClient(c.CallTimeout)
	opts := identity.SISOptions{LoginPath: c.LoginPath, Timeout: c.CallTimeout, CheckProfiles: c.CheckProfiles}

	var members []ports.IdentitySource
	for _, campus := range identity.DefaultSISCampuses() {
		url := strings.TrimSpace(urls[campus.Name])
		if url == "" {
			log.Warn().Str("campus", campus.Name).Msg("sis campus disabled, no url configured")
			continue
		}
		campus.BaseURL = url
		members = append(members, identity.NewSISInstance(campus, opts, client, log))
	}
	return members
}

func provisioningPolicy(c config.ProvisioningConfig) (service.ProvisioningPolicy, error) {
	p := service.ProvisioningPolicy{EmailDomain: c.EmailDomain}
	for _, f := range []struct {
		raw  string
		dest *domain.RoleName
	}{
		{c.StudentRole, &p.StudentRole},
		{c.StaffRole, &p.StaffRole},
		{c.InternalRole, &p.InternalRole},
	} {
		r, err := domain.ParseRoleName(f.raw)
		if err != nil {
			return p, fmt.Errorf("provisioning policy: %w", err)
		}
		*f.dest = r
	}
	return p, nil
}
