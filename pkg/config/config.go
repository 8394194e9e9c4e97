package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Mux          MuxConfig
	Playback     PlaybackConfig
	Reconcile    ReconcileConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"SVR_APP_ENV" required:"true"`
	Port         string `envconfig:"SVR_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SVR_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SVR_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SVR_DB_DSN"`
	Driver string `envconfig:"SVR_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SVR_DB_HOST"`
	LegacyPort     int    `envconfig:"SVR_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SVR_DB_USER"`
	LegacyPassword string `envconfig:"SVR_DB_PASSWORD"`
	LegacyName     string `envconfig:"SVR_DB_NAME"`
	LegacySSLMode  string `envconfig:"SVR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SVR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SVR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SVR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SVR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// MuxConfig carries the credentials for the hosted video provider: the API
// token pair for REST calls, the shared webhook secret, and the signing key
// pair used for playback tokens.
type MuxConfig struct {
	TokenID       string        `envconfig:"SVR_MUX_TOKEN_ID" required:"true"`
	TokenSecret   string        `envconfig:"SVR_MUX_TOKEN_SECRET" required:"true"`
	WebhookSecret string        `envconfig:"SVR_MUX_WEBHOOK_SECRET" required:"true"`
	SigningKeyID  string        `envconfig:"SVR_MUX_SIGNING_KEY_ID" required:"true"`
	SigningKey    string        `envconfig:"SVR_MUX_SIGNING_KEY" required:"true"`
	BaseURL       string        `envconfig:"SVR_MUX_BASE_URL" default:"https://api.mux.com"`
	CallTimeout   time.Duration `envconfig:"SVR_MUX_CALL_TIMEOUT" default:"10s"`
}

type PlaybackConfig struct {
	DefaultTTL time.Duration `envconfig:"SVR_PLAYBACK_DEFAULT_TTL" default:"1h"`
	MaxTTL     time.Duration `envconfig:"SVR_PLAYBACK_MAX_TTL" default:"12h"`
	StreamBase string        `envconfig:"SVR_PLAYBACK_STREAM_BASE" default:"https://stream.mux.com"`
}

type ReconcileConfig struct {
	AdminKey string `envconfig:"SVR_RECONCILE_SECRET" required:"true"`
	PageSize int    `envconfig:"SVR_RECONCILE_PAGE_SIZE" default:"50"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SVR_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
