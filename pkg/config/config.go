package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Catalog       CatalogConfig
	Tasks         TasksConfig
	Tokens        TokensConfig
	Sendgrid      SendgridConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"SHOPFEED_APP_ENV" required:"true"`
	Port         string   `envconfig:"SHOPFEED_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"SHOPFEED_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"SHOPFEED_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"SHOPFEED_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"SHOPFEED_CORS_ALLOWED_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind        string `envconfig:"SHOPFEED_SERVICE_KIND" default:"api"`
	MetricsAddr string `envconfig:"SHOPFEED_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"SHOPFEED_DB_DSN"`
	Driver string `envconfig:"SHOPFEED_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SHOPFEED_DB_HOST"`
	LegacyPort     int    `envconfig:"SHOPFEED_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHOPFEED_DB_USER"`
	LegacyPassword string `envconfig:"SHOPFEED_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHOPFEED_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHOPFEED_DB_SSLMODE" default:"disable"`

	MaxOpenConns       int           `envconfig:"SHOPFEED_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns       int           `envconfig:"SHOPFEED_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime    time.Duration `envconfig:"SHOPFEED_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime    time.Duration `envconfig:"SHOPFEED_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQueryThreshold time.Duration `envconfig:"SHOPFEED_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOPFEED_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SHOPFEED_REDIS_ADDR"`
	Password     string        `envconfig:"SHOPFEED_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPFEED_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOPFEED_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOPFEED_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOPFEED_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPFEED_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPFEED_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SHOPFEED_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SHOPFEED_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SHOPFEED_JWT_EXPIRATION_MINUTES" required:"true"`
}

// TTL returns the access token lifetime; sessions live exactly as long.
func (j JWTConfig) TTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"SHOPFEED_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"SHOPFEED_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"SHOPFEED_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"SHOPFEED_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"SHOPFEED_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"SHOPFEED_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"SHOPFEED_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"SHOPFEED_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"SHOPFEED_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"SHOPFEED_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"SHOPFEED_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SHOPFEED_AUTO_MIGRATE" default:"false"`
}

// CatalogConfig tunes catalog reads and price list ingestion.
type CatalogConfig struct {
	ShopsCacheTTL      time.Duration `envconfig:"SHOPFEED_CATALOG_SHOPS_CACHE_TTL" default:"2h"`
	CategoriesCacheTTL time.Duration `envconfig:"SHOPFEED_CATALOG_CATEGORIES_CACHE_TTL" default:"2h"`
	ListingsCacheTTL   time.Duration `envconfig:"SHOPFEED_CATALOG_LISTINGS_CACHE_TTL" default:"1h"`
	FetchTimeout       time.Duration `envconfig:"SHOPFEED_CATALOG_FETCH_TIMEOUT" default:"30s"`
	MaxDocumentBytes   int64         `envconfig:"SHOPFEED_CATALOG_MAX_DOCUMENT_BYTES" default:"10485760"`
	IngestLeaseTTL     time.Duration `envconfig:"SHOPFEED_CATALOG_INGEST_LEASE_TTL" default:"10m"`
}

// TasksConfig tunes the background task queue and its workers.
type TasksConfig struct {
	Workers       int           `envconfig:"SHOPFEED_TASKS_WORKERS" default:"4"`
	PollInterval  time.Duration `envconfig:"SHOPFEED_TASKS_POLL_INTERVAL" default:"500ms"`
	LeaseDuration time.Duration `envconfig:"SHOPFEED_TASKS_LEASE_DURATION" default:"5m"`
	MaxAttempts   int           `envconfig:"SHOPFEED_TASKS_MAX_ATTEMPTS" default:"5"`
	RetryDelay    time.Duration `envconfig:"SHOPFEED_TASKS_RETRY_DELAY" default:"5s"`
	Retention     time.Duration `envconfig:"SHOPFEED_TASKS_RETENTION" default:"168h"`
}

type TokensConfig struct {
	ConfirmationTTL  time.Duration `envconfig:"SHOPFEED_TOKENS_CONFIRMATION_TTL" default:"72h"`
	PasswordResetTTL time.Duration `envconfig:"SHOPFEED_TOKENS_PASSWORD_RESET_TTL" default:"1h"`
}

type SendgridConfig struct {
	APIKey      string `envconfig:"SHOPFEED_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"SHOPFEED_SENDGRID_FROM_EMAIL" default:"no-reply@shopfeed.local"`
	BaseURL     string `envconfig:"SHOPFEED_SENDGRID_BASE_URL" default:"https://api.sendgrid.com"`
}

// Enabled reports whether outbound email should go through SendGrid.
func (s SendgridConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

// ensureDSN assembles a postgres URL from the discrete SHOPFEED_DB_* parts
// when no DSN was given. sqlite always needs an explicit DSN.
func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if strings.EqualFold(db.Driver, "sqlite") {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
	}

	parts := map[string]string{EnvDBHost: db.LegacyHost, EnvDBUser: db.LegacyUser, EnvDBName: db.LegacyName}
	var missing []string
	for _, env := range legacyDBEnvVars {
		if strings.TrimSpace(parts[env]) == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(db.LegacyUser, db.LegacyPassword),
		Host:   net.JoinHostPort(db.LegacyHost, strconv.Itoa(db.LegacyPort)),
		Path:   "/" + db.LegacyName,
	}
	if db.LegacyPassword == "" {
		dsn.User = url.User(db.LegacyUser)
	}
	if db.LegacySSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}
