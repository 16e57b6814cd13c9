package app

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	ProviderHTTP   = "http"
	ProviderOAuth2 = "oauth2"
	ProviderOIDC   = "oidc"
	ProviderNone   = "none"

	// PolicyReconnect re-dials an open realtime socket after every token
	// refresh; PolicyKeep leaves it on the old token until it drops.
	PolicyReconnect = "reconnect"
	PolicyKeep      = "keep"

	FormatJSON   = "json"
	FormatPretty = "pretty"
)

// Config is the agent's runtime configuration. Values are layered:
// defaults, then the YAML file, then AFFITTO_* env vars, then flags.
type Config struct {
	APIBaseURL  string `yaml:"api_url"`
	AuthBaseURL string `yaml:"auth_url"`
	RealtimeURL string `yaml:"realtime_url"`

	// Namespace prefixes every persisted record key.
	Namespace   string        `yaml:"namespace"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	AuthProvider string       `yaml:"auth_provider"`
	OAuth2       OAuth2Config `yaml:"oauth2"`

	Realtime RealtimeConfig `yaml:"realtime"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`

	// MetricsAddr enables the /metrics and /healthz listener when set.
	MetricsAddr string `yaml:"metrics_addr"`

	Security SecurityConfig `yaml:"security"`
}

type OAuth2Config struct {
	Issuer       string   `yaml:"issuer"`
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

type RealtimeConfig struct {
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	MaxAttempts       int           `yaml:"max_attempts"`
	TokenPolicy       string        `yaml:"token_policy"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"`

	Dir        string `yaml:"dir"`
	Passphrase string `yaml:"passphrase"`

	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`

	DatabaseURL    string `yaml:"database_url"`
	DatabaseSchema string `yaml:"database_schema"`
	DBMaxConns     int32  `yaml:"db_max_conns"`
	DBMinConns     int32  `yaml:"db_min_conns"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type SecurityConfig struct {
	// RequireSealedStorage refuses a file backend without a passphrase.
	RequireSealedStorage bool `yaml:"require_sealed_storage"`
	// RequireFingerprintKey refuses to start without a keyed token
	// fingerprint secret, so logged fingerprints cannot be brute-forced.
	RequireFingerprintKey bool `yaml:"require_fingerprint_key"`
}

func DefaultConfig() Config {
	return Config{
		Namespace:    "affittochiaro",
		HTTPTimeout:  30 * time.Second,
		AuthProvider: ProviderHTTP,
		Realtime: RealtimeConfig{
			ReconnectInterval: 3 * time.Second,
			MaxAttempts:       5,
			TokenPolicy:       PolicyReconnect,
		},
		Storage: StorageConfig{
			Backend:    BackendFile,
			Dir:        defaultStateDir(),
			DBMaxConns: 4,
		},
		Log: LogConfig{Level: "info", Format: FormatJSON},
	}
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "affittochiaro")
	}
	return ".affittochiaro"
}

// AddFlags registers the global flags. A flag overrides file and env
// values only when given explicitly.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "YAML config file (env AFFITTO_CONFIG)")
	fs.String("api-url", "", "REST API base URL")
	fs.String("auth-url", "", "identity API base URL")
	fs.String("realtime-url", "", "realtime WebSocket URL (ws:// or wss://)")
	fs.String("namespace", "", "key prefix for persisted records")
	fs.String("auth-provider", "", "identity backend: http, oauth2, oidc or none")
	fs.String("storage", "", "storage backend: memory, file, redis or postgres")
	fs.String("storage-dir", "", "directory for the file backend")
	fs.String("token-policy", "", "realtime behaviour on token refresh: reconnect or keep")
	fs.Duration("reconnect-interval", 0, "delay between realtime reconnect attempts")
	fs.Int("max-attempts", 0, "realtime reconnect attempts before giving up")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("log-format", "", "json or pretty")
	fs.String("metrics-addr", "", "listen address for /metrics and /healthz")
}

// LoadConfig builds the Config from every layer and validates it. fs may
// be nil; otherwise it must already be parsed.
func LoadConfig(fs *pflag.FlagSet) (Config, error) {
	cfg := DefaultConfig()

	path := strings.TrimSpace(os.Getenv("AFFITTO_CONFIG"))
	if fs != nil && fs.Changed("config") {
		path, _ = fs.GetString("config")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	env := newEnvReader()
	cfg.applyEnv(env)
	if err := env.Err(); err != nil {
		return Config{}, err
	}

	if fs != nil {
		cfg.applyFlags(fs)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
	}
	return nil
}

func (c *Config) applyEnv(e *envReader) {
	e.String("AFFITTO_API_URL", &c.APIBaseURL)
	e.String("AFFITTO_AUTH_URL", &c.AuthBaseURL)
	e.String("AFFITTO_REALTIME_URL", &c.RealtimeURL)
	e.String("AFFITTO_NAMESPACE", &c.Namespace)
	e.Duration("AFFITTO_HTTP_TIMEOUT", &c.HTTPTimeout)

	e.String("AFFITTO_AUTH_PROVIDER", &c.AuthProvider)
	e.String("AFFITTO_OAUTH2_ISSUER", &c.OAuth2.Issuer)
	e.String("AFFITTO_OAUTH2_TOKEN_URL", &c.OAuth2.TokenURL)
	e.String("AFFITTO_OAUTH2_CLIENT_ID", &c.OAuth2.ClientID)
	e.String("AFFITTO_OAUTH2_CLIENT_SECRET", &c.OAuth2.ClientSecret)
	e.List("AFFITTO_OAUTH2_SCOPES", &c.OAuth2.Scopes)

	e.Duration("AFFITTO_REALTIME_RECONNECT_INTERVAL", &c.Realtime.ReconnectInterval)
	e.Int("AFFITTO_REALTIME_MAX_ATTEMPTS", &c.Realtime.MaxAttempts)
	e.String("AFFITTO_REALTIME_TOKEN_POLICY", &c.Realtime.TokenPolicy)

	e.String("AFFITTO_STORAGE", &c.Storage.Backend)
	e.String("AFFITTO_STORAGE_DIR", &c.Storage.Dir)
	e.String("AFFITTO_STORAGE_PASSPHRASE", &c.Storage.Passphrase)
	e.String("AFFITTO_REDIS_ADDR", &c.Storage.RedisAddr)
	e.String("AFFITTO_REDIS_PASSWORD", &c.Storage.RedisPassword)
	e.Int("AFFITTO_REDIS_DB", &c.Storage.RedisDB)
	e.Duration("AFFITTO_REDIS_TTL", &c.Storage.RedisTTL)
	e.String("AFFITTO_DATABASE_URL", &c.Storage.DatabaseURL)
	e.String("AFFITTO_DATABASE_SCHEMA", &c.Storage.DatabaseSchema)
	e.Int32("AFFITTO_DB_MAX_CONNS", &c.Storage.DBMaxConns)
	e.Int32("AFFITTO_DB_MIN_CONNS", &c.Storage.DBMinConns)

	e.String("AFFITTO_LOG_LEVEL", &c.Log.Level)
	e.String("AFFITTO_LOG_FORMAT", &c.Log.Format)
	e.String("AFFITTO_METRICS_ADDR", &c.MetricsAddr)

	e.Bool("AFFITTO_REQUIRE_SEALED_STORAGE", &c.Security.RequireSealedStorage)
	e.Bool("AFFITTO_REQUIRE_FINGERPRINT_KEY", &c.Security.RequireFingerprintKey)
}

func (c *Config) applyFlags(fs *pflag.FlagSet) {
	strs := map[string]*string{
		"api-url":       &c.APIBaseURL,
		"auth-url":      &c.AuthBaseURL,
		"realtime-url":  &c.RealtimeURL,
		"namespace":     &c.Namespace,
		"auth-provider": &c.AuthProvider,
		"storage":       &c.Storage.Backend,
		"storage-dir":   &c.Storage.Dir,
		"token-policy":  &c.Realtime.TokenPolicy,
		"log-level":     &c.Log.Level,
		"log-format":    &c.Log.Format,
		"metrics-addr":  &c.MetricsAddr,
	}
	for name, dst := range strs {
		if fs.Lookup(name) != nil && fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	if fs.Lookup("reconnect-interval") != nil && fs.Changed("reconnect-interval") {
		c.Realtime.ReconnectInterval, _ = fs.GetDuration("reconnect-interval")
	}
	if fs.Lookup("max-attempts") != nil && fs.Changed("max-attempts") {
		c.Realtime.MaxAttempts, _ = fs.GetInt("max-attempts")
	}
}

// Validate reports every invalid field, each wrapped in ErrConfig.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrConfig}, args...)...))
	}

	if c.Namespace == "" || strings.ContainsAny(c.Namespace, " :/") {
		bad("namespace %q", c.Namespace)
	}
	if c.HTTPTimeout <= 0 {
		bad("http timeout must be positive")
	}
	for name, raw := range map[string]string{"api url": c.APIBaseURL, "auth url": c.AuthBaseURL} {
		if raw != "" && !hasScheme(raw, "http", "https") {
			bad("%s %q", name, raw)
		}
	}
	if c.RealtimeURL != "" && !hasScheme(c.RealtimeURL, "ws", "wss") {
		bad("realtime url %q", c.RealtimeURL)
	}

	switch c.AuthProvider {
	case ProviderHTTP, ProviderNone:
	case ProviderOAuth2:
		if c.OAuth2.TokenURL == "" || c.OAuth2.ClientID == "" {
			bad("oauth2 provider needs token_url and client_id")
		}
	case ProviderOIDC:
		if c.OAuth2.Issuer == "" || c.OAuth2.ClientID == "" {
			bad("oidc provider needs issuer and client_id")
		}
	default:
		bad("auth provider %q", c.AuthProvider)
	}

	if c.Realtime.ReconnectInterval <= 0 {
		bad("reconnect interval must be positive")
	}
	if c.Realtime.MaxAttempts < 1 {
		bad("max attempts must be at least 1")
	}
	if c.Realtime.TokenPolicy != PolicyReconnect && c.Realtime.TokenPolicy != PolicyKeep {
		bad("token policy %q", c.Realtime.TokenPolicy)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Storage.Dir == "" {
			bad("file storage needs a directory")
		}
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			bad("redis storage needs an address")
		}
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			bad("postgres storage needs a database url")
		}
	default:
		bad("storage backend %q", c.Storage.Backend)
	}

	if _, ok := levels[strings.ToLower(c.Log.Level)]; !ok && c.Log.Level != "" {
		bad("log level %q", c.Log.Level)
	}
	if c.Log.Format != FormatJSON && c.Log.Format != FormatPretty {
		bad("log format %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

func hasScheme(raw string, schemes ...string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return true
		}
	}
	return false
}
