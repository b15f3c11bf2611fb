package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT, default=8080"`
	Env      string `env:"ENV, default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	// StorageDriver selects the user store: mongo or memory.
	StorageDriver string `env:"STORAGE_DRIVER, default=mongo"`
	// Notifier selects the login event sink: noop, log or redis.
	Notifier string `env:"NOTIFIER, default=noop"`
	// BootstrapOnStart runs the initial admin bootstrap when serving.
	BootstrapOnStart bool `env:"BOOTSTRAP_ON_START, default=true"`

	JWT          JWTConfig
	Mongo        MongoConfig
	Redis        RedisConfig
	Login        LoginConfig
	SIS          SISConfig
	HR           HRConfig
	Provisioning ProvisioningConfig
	Admin        AdminConfig
}

type JWTConfig struct {
	Secret     string        `env:"JWT_SECRET, required"`
	AccessTTL  time.Duration `env:"JWT_ACCESS_TTL, default=24h"`
	RefreshTTL time.Duration `env:"JWT_REFRESH_TTL, default=168h"`
	Issuer     string        `env:"JWT_ISSUER, default=unza-counseling"`
	Leeway     time.Duration `env:"JWT_LEEWAY, default=0s"`
}

type MongoConfig struct {
	URI         string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database    string `env:"MONGO_DB, default=counseling"`
	MaxPoolSize uint64 `env:"MONGO_MAX_POOL_SIZE, default=50"`
}

type RedisConfig struct {
	Addr         string `env:"REDIS_ADDR, default=localhost:6379"`
	Password     string `env:"REDIS_PASSWORD"`
	DB           int    `env:"REDIS_DB, default=0"`
	LoginStream  string `env:"REDIS_LOGIN_STREAM, default=identity:logins"`
	StreamMaxLen int64  `env:"REDIS_LOGIN_STREAM_MAXLEN, default=100000"`
}

type LoginConfig struct {
	Timeout time.Duration `env:"LOGIN_TIMEOUT, default=20s"`
	// InternalIdentities is a comma separated list of identifiers that only
	// ever authenticate against the local store.
	InternalIdentities []string      `env:"LOGIN_INTERNAL_IDENTITIES, default=admin@unza.zm"`
	StaffEmailDomain   string        `env:"LOGIN_STAFF_EMAIL_DOMAIN, default=unza.zm"`
	DispatchWorkers    int           `env:"LOGIN_EVENT_WORKERS, default=4"`
	RoleCacheTTL       time.Duration `env:"ROLE_CACHE_TTL, default=30s"`
}

type SISConfig struct {
	UndergraduateURL string        `env:"SIS_UNDERGRADUATE_URL, default=https://devoap.unza.zm"`
	PostgraduateURL  string        `env:"SIS_POSTGRADUATE_URL, default=https://pgonline.unza.zm"`
	DistanceURL      string        `env:"SIS_DISTANCE_URL, default=https://online.unza.zm"`
	GSBURL           string        `env:"SIS_GSB_URL, default=https://gsbonline.unza.zm"`
	ZOUURL           string        `env:"SIS_ZOU_URL, default=https://zouonline.unza.zm"`
	ECampusURL       string        `env:"SIS_ECAMPUS_URL, default=https://ecampusonline.unza.zm"`
	LoginPath        string        `env:"SIS_LOGIN_PATH, default=/api/v1/customers/login"`
	CallTimeout      time.Duration `env:"SIS_CALL_TIMEOUT, default=5s"`
	Parallel         bool          `env:"SIS_PARALLEL, default=false"`
	CheckProfiles    bool          `env:"SIS_CHECK_PROFILES, default=false"`
}

type HRConfig struct {
	BaseURL      string        `env:"HR_BASE_URL, default=https://hr.unza.zm"`
	LoginPath    string        `env:"HR_LOGIN_PATH, default=/api/auth-login2"`
	MetadataPath string        `env:"HR_METADATA_PATH, default=/api/get-meta-data-on-user"`
	StaffPath    string        `env:"HR_STAFF_PATH, default=/staff"`
	CallTimeout  time.Duration `env:"HR_CALL_TIMEOUT, default=10s"`
}

type ProvisioningConfig struct {
	EmailDomain  string `env:"PROVISION_EMAIL_DOMAIN, default=unza.zm"`
	StudentRole  string `env:"PROVISION_SIS_DEFAULT_ROLE, default=STUDENT"`
	StaffRole    string `env:"PROVISION_HR_DEFAULT_ROLE, default=COUNSELOR"`
	InternalRole string `env:"PROVISION_INTERNAL_DEFAULT_ROLE, default=CLIENT"`
}

type AdminConfig struct {
	Email    string `env:"ADMIN_EMAIL, default=admin@unza.zm"`
	Username string `env:"ADMIN_USERNAME, default=admin"`
	Password string `env:"ADMIN_PASSWORD"`
}

// IsDevelopment reports whether the service runs in a development setting.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

// Load reads a .env file when one is present, then resolves configuration
// from the environment.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	return Process(ctx, envconfig.OsLookuper())
}

// Process resolves configuration from l. Tests pass an envconfig.MapLookuper.
func Process(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.StorageDriver) {
	case "mongo", "memory":
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.Login.Timeout <= 0 {
		return errors.New("LOGIN_TIMEOUT must be positive")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT token lifetimes must be positive")
	}
	return nil
}
