package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/observability"
	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/providers"
	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/server"
	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/session"
	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/sessionstore"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DotEnvFiles are tried in order; the first one present is loaded
var DotEnvFiles = []string{".env_tacc", ".env"}

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Session cookie and route settings
	Session server.Config `yaml:"session"`

	// SessionStore selects where credential records live
	SessionStore sessionstore.Config `yaml:"session_store"`

	// Cache configures the authorization cache
	Cache CacheConfig `yaml:"cache"`

	// Upstream configures calls to identity providers
	Upstream UpstreamConfig `yaml:"upstream"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`

	// Providers holds per-provider settings
	Providers providers.Config `yaml:"providers"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`

	// AllowedOrigins may call the API with credentials
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// CacheConfig configures the authorization cache
type CacheConfig struct {
	// Backend is "memory" or "redis". The redis backend shares the session store's
	// Redis settings.
	Backend   string        `yaml:"backend"`
	Size      int           `yaml:"size"`
	TTL       time.Duration `yaml:"ttl"`
	Retention time.Duration `yaml:"retention"`
}

// UpstreamConfig configures calls to identity providers
type UpstreamConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Log            observability.LogConfig  `yaml:"log"`
	MetricsEnabled bool                     `yaml:"metrics_enabled"`
	OTel           observability.OTelConfig `yaml:"otel"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "16261",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Session: server.Config{
			CookieName:     server.DefaultCookieName,
			CookieMaxAge:   sessionstore.DefaultMaxAge,
			LogoutRedirect: server.DefaultLogoutRedirect,
		},
		SessionStore: sessionstore.Config{
			Backend:       sessionstore.BackendMemory,
			MaxAge:        sessionstore.DefaultMaxAge,
			SweepSchedule: sessionstore.DefaultSweepSchedule,
		},
		Cache: CacheConfig{
			Backend:   "memory",
			Size:      session.DefaultCacheSize,
			TTL:       session.DefaultCacheTTL,
			Retention: session.DefaultCacheRetention,
		},
		Upstream: UpstreamConfig{
			Timeout: 10 * time.Second,
		},
		Observability: ObservabilityConfig{
			Log:            observability.LogConfig{Level: "info", Format: "json"},
			MetricsEnabled: true,
			OTel: observability.OTelConfig{
				Endpoint:       "localhost:4317",
				ServiceName:    "factindex-auth",
				ServiceVersion: "1.0.0",
				Insecure:       true,
				SampleRatio:    1,
			},
		},
	}
}

// LoadConfig loads .env_tacc or .env, then the optional YAML file named by
// FACTINDEX_CONFIG_FILE, then environment variables
func LoadConfig() (*Config, error) {
	if _, err := LoadDotEnv(DotEnvFiles...); err != nil {
		return nil, err
	}
	return Load(os.Getenv("FACTINDEX_CONFIG_FILE"))
}

// LoadDotEnv loads the first existing file and returns its name. Variables already in the
// environment are not overwritten.
func LoadDotEnv(files ...string) (string, error) {
	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return "", fmt.Errorf("failed to load %s: %w", file, err)
		}
		return file, nil
	}
	return "", nil
}

// Load builds the configuration from defaults, the YAML file at path (if any) and the
// environment, in that order
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyServerEnv()
	cfg.applyStoreEnv()
	cfg.applyObservabilityEnv()
	cfg.applyProviderEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyServerEnv() {
	s := &c.Server
	s.Host = getEnv("FACTINDEX_HOST", s.Host)
	s.Port = getEnv("PORT", s.Port)
	s.ReadTimeout = getEnvDuration("FACTINDEX_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("FACTINDEX_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("FACTINDEX_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("FACTINDEX_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("FACTINDEX_HEALTH_PORT", s.HealthPort)
	s.AllowedOrigins = getEnvList("FACTINDEX_ALLOWED_ORIGINS", s.AllowedOrigins)

	sess := &c.Session
	sess.CookieName = getEnv("FACTINDEX_COOKIE_NAME", sess.CookieName)
	sess.CookieDomain = getEnv("FACTINDEX_COOKIE_DOMAIN", sess.CookieDomain)
	sess.CookieSecure = getEnvBool("FACTINDEX_COOKIE_SECURE", sess.CookieSecure || os.Getenv("NODE_ENV") == "production")
	sess.CookieMaxAge = getEnvDuration("FACTINDEX_SESSION_MAX_AGE", sess.CookieMaxAge)
	sess.LogoutRedirect = getEnv("FACTINDEX_LOGOUT_REDIRECT", sess.LogoutRedirect)

	c.Upstream.Timeout = getEnvDuration("FACTINDEX_UPSTREAM_TIMEOUT", c.Upstream.Timeout)
}

func (c *Config) applyStoreEnv() {
	st := &c.SessionStore
	st.Backend = sessionstore.Backend(getEnv("FACTINDEX_SESSION_STORE", string(st.Backend)))
	st.MaxAge = getEnvDuration("FACTINDEX_SESSION_MAX_AGE", st.MaxAge)
	st.MemorySize = getEnvInt("FACTINDEX_SESSION_MEMORY_SIZE", st.MemorySize)
	st.RedisURL = getEnv("FACTINDEX_REDIS_URL", st.RedisURL)
	st.RedisPassword = getEnv("FACTINDEX_REDIS_PASSWORD", st.RedisPassword)
	st.RedisDB = getEnvInt("FACTINDEX_REDIS_DB", st.RedisDB)
	st.RedisPoolSize = getEnvInt("FACTINDEX_REDIS_POOL_SIZE", st.RedisPoolSize)
	st.RedisMaxRetries = getEnvInt("FACTINDEX_REDIS_MAX_RETRIES", st.RedisMaxRetries)
	st.DatabaseURL = getEnv("FACTINDEX_DATABASE_URL", st.DatabaseURL)
	st.SweepSchedule = getEnv("FACTINDEX_SESSION_SWEEP_SCHEDULE", st.SweepSchedule)

	ch := &c.Cache
	ch.Backend = getEnv("FACTINDEX_CACHE_BACKEND", ch.Backend)
	ch.Size = getEnvInt("FACTINDEX_CACHE_SIZE", ch.Size)
	ch.TTL = getEnvDuration("FACTINDEX_CACHE_TTL", ch.TTL)
	ch.Retention = getEnvDuration("FACTINDEX_CACHE_RETENTION", ch.Retention)
}

func (c *Config) applyObservabilityEnv() {
	o := &c.Observability
	o.Log.Level = getEnv("FACTINDEX_LOG_LEVEL", o.Log.Level)
	o.Log.Format = getEnv("FACTINDEX_LOG_FORMAT", o.Log.Format)
	o.MetricsEnabled = getEnvBool("FACTINDEX_METRICS_ENABLED", o.MetricsEnabled)
	o.OTel.Enabled = getEnvBool("FACTINDEX_OTEL_ENABLED", o.OTel.Enabled)
	o.OTel.Endpoint = getEnv("FACTINDEX_OTEL_ENDPOINT", o.OTel.Endpoint)
	o.OTel.ServiceName = getEnv("FACTINDEX_OTEL_SERVICE_NAME", o.OTel.ServiceName)
	o.OTel.ServiceVersion = getEnv("FACTINDEX_OTEL_SERVICE_VERSION", o.OTel.ServiceVersion)
	o.OTel.Insecure = getEnvBool("FACTINDEX_OTEL_INSECURE", o.OTel.Insecure)
	o.OTel.SampleRatio = getEnvFloat("FACTINDEX_OTEL_SAMPLE_RATIO", o.OTel.SampleRatio)
}

// applyProviderEnv reads the provider variables under the names the web app already uses
func (c *Config) applyProviderEnv() {
	p := &c.Providers

	p.Discord.ClientID = getEnv("DISCORD_CLIENT_ID", p.Discord.ClientID)
	p.Discord.ClientSecret = getEnv("DISCORD_CLIENT_SECRET", p.Discord.ClientSecret)
	p.Discord.CallbackURL = getEnv("DISCORD_CALLBACK_URL", p.Discord.CallbackURL)
	p.Discord.GuildID = getEnv("DISCORD_GUILD_ID", p.Discord.GuildID)
	p.Discord.RoleIDs = getEnvList("DISCORD_ROLE_ID", p.Discord.RoleIDs)

	p.Google.ClientID = getEnv("GOOGLE_CLIENT_ID", p.Google.ClientID)
	p.Google.ClientSecret = getEnv("GOOGLE_CLIENT_SECRET", p.Google.ClientSecret)
	p.Google.CallbackURL = getEnv("GOOGLE_CALLBACK_URL", p.Google.CallbackURL)
	p.Google.AllowedDomains = getEnvList("GOOGLE_ALLOWED_DOMAINS", p.Google.AllowedDomains)

	p.Facebook.AppID = getEnv("FACEBOOK_APP_ID", p.Facebook.AppID)
	p.Facebook.AppSecret = getEnv("FACEBOOK_APP_SECRET", p.Facebook.AppSecret)
	p.Facebook.CallbackURL = getEnv("FACEBOOK_CALLBACK_URL", p.Facebook.CallbackURL)
	p.Facebook.RequiredGroupIDs = getEnvList("FACEBOOK_GROUPS_CHECK", p.Facebook.RequiredGroupIDs)

	p.Bluesky.ClientMetadataURL = getEnv("Bluesky_OAUTH_CLIENT_METADATA_URL", p.Bluesky.ClientMetadataURL)
	p.Bluesky.JWKSURL = getEnv("Bluesky_OAUTH_JWKS_URL", p.Bluesky.JWKSURL)
	p.Bluesky.PrivateKey = getEnv("Bluesky_OAUTH_PRIVATE_KEY", p.Bluesky.PrivateKey)
	p.Bluesky.KeyPairID = getEnv("Bluesky_OAUTH_KEY_PAIR_ID", p.Bluesky.KeyPairID)
	p.Bluesky.CallbackURL = getEnv("Bluesky_OAUTH_CALLBACK_URL", p.Bluesky.CallbackURL)
	p.Bluesky.ServiceURL = getEnv("Bluesky_SERVICE_URL", p.Bluesky.ServiceURL)

	p.Dev.Enabled = getEnvBool("DEV_LOGIN_MODE", p.Dev.Enabled)
	p.Dev.ID = getEnv("DEV_ID", p.Dev.ID)
	p.Dev.Username = getEnv("DEV_USERNAME", p.Dev.Username)
	p.Dev.Avatar = getEnv("DEV_AVATAR", p.Dev.Avatar)
	if p.Dev.GuildID == "" {
		p.Dev.GuildID = p.Discord.GuildID
	}

	p.Admin.Enabled = getEnvBool("ADMIN_ENABLED", p.Admin.Enabled)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if err := c.SessionStore.Validate(); err != nil {
		return err
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.SessionStore.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis cache")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory or redis)", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if c.Cache.Retention < c.Cache.TTL {
		return fmt.Errorf("cache retention must not be shorter than the cache ttl")
	}

	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream timeout must be positive")
	}

	if err := c.Providers.Validate(); err != nil {
		return err
	}

	// Validate OpenTelemetry config
	if c.Observability.OTel.Enabled {
		if c.Observability.OTel.Endpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTel.ServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
