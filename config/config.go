package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvTesting     = "testing"
	EnvProduction  = "production"
)

const (
	LogLevelDebug    = "debug"
	LogLevelInfo     = "info"
	LogLevelWarn     = "warn"
	LogLevelWarning  = "warning"
	LogLevelError    = "error"
	LogLevelCritical = "critical"
)

const defaultMaxContentLength = 16 * 1024 * 1024

// ErrMissingEnv is wrapped by every error about an unset required variable.
var ErrMissingEnv = errors.New("required environment variable is missing")

var envAliases = map[string]string{
	"dev":         EnvDevelopment,
	"development": EnvDevelopment,
	"test":        EnvTesting,
	"testing":     EnvTesting,
	"prod":        EnvProduction,
	"production":  EnvProduction,
}

// ServerConfig carries the process-level HTTP server settings.
type ServerConfig struct {
	Bind            string `mapstructure:"bind"`
	Workers         int    `mapstructure:"workers"`
	Threads         int    `mapstructure:"threads"`
	Timeout         string `mapstructure:"timeout"`
	GracefulTimeout string `mapstructure:"graceful_timeout"`
	KeepAlive       string `mapstructure:"keepalive"`
	AccessLog       string `mapstructure:"access_log"`
	ErrorLog        string `mapstructure:"error_log"`
	LogLevel        string `mapstructure:"log_level"`
	ProcName        string `mapstructure:"proc_name"`
}

type ReadinessConfig struct {
	CheckDatabase bool   `mapstructure:"-"`
	CacheTTL      string `mapstructure:"cache_ttl"`
	Timeout       string `mapstructure:"timeout"`
}

type LimiterConfig struct {
	Enabled bool    `mapstructure:"-"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"-"`
}

type Config struct {
	AppName          string          `mapstructure:"app_name"`
	Env              string          `mapstructure:"app_env"`
	Host             string          `mapstructure:"host"`
	Port             int             `mapstructure:"port"`
	Debug            bool            `mapstructure:"-"`
	Testing          bool            `mapstructure:"-"`
	LogLevel         string          `mapstructure:"log_level"`
	SecretKey        string          `mapstructure:"secret_key"`
	DatabaseURL      string          `mapstructure:"database_url"`
	TestDatabaseURL  string          `mapstructure:"test_database_url"`
	MaxContentLength int64           `mapstructure:"max_content_length"`
	JSONSortKeys     bool            `mapstructure:"-"`
	DeployTimestamp  string          `mapstructure:"deploy_timestamp"`
	Server           ServerConfig    `mapstructure:"server"`
	Readiness        ReadinessConfig `mapstructure:"readiness"`
	Limiter          LimiterConfig   `mapstructure:"limiter"`
	Metrics          MetricsConfig   `mapstructure:"metrics"`
}

// Load reads configuration from defaults, an optional config.yaml, an
// optional .env file and the process environment, in increasing order of
// precedence. Search paths default to ./config and the working directory.
func Load(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		paths = []string{"./config", "."}
	}

	if err := loadDotEnv(paths); err != nil {
		slog.Error("failed to load .env file", slog.String("error", err.Error()))
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Debug("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	cfg.Debug = truthy(v.GetString("debug"))
	cfg.JSONSortKeys = truthy(v.GetString("json_sort_keys"))
	cfg.Readiness.CheckDatabase = truthy(v.GetString("readiness.check_database"))
	cfg.Limiter.Enabled = truthy(v.GetString("limiter.enabled"))
	cfg.Metrics.Enabled = truthy(v.GetString("metrics.enabled"))

	if err := cfg.applyProfile(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.requireEnv(); err != nil {
		slog.Error("missing required configuration", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "CV_AI_AGENT")
	v.SetDefault("app_env", EnvDevelopment)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8000)
	v.SetDefault("debug", "false")
	v.SetDefault("log_level", LogLevelInfo)
	v.SetDefault("test_database_url", "sqlite:///:memory:")
	v.SetDefault("max_content_length", defaultMaxContentLength)
	v.SetDefault("json_sort_keys", "false")
	v.SetDefault("deploy_timestamp", "local-dev")

	v.SetDefault("server.bind", "")
	v.SetDefault("server.workers", 2*runtime.NumCPU()+1)
	v.SetDefault("server.threads", 1)
	v.SetDefault("server.timeout", "30s")
	v.SetDefault("server.graceful_timeout", "30s")
	v.SetDefault("server.keepalive", "2s")
	v.SetDefault("server.access_log", "-")
	v.SetDefault("server.error_log", "-")
	v.SetDefault("server.log_level", LogLevelInfo)
	v.SetDefault("server.proc_name", "cv_ai_agent")

	v.SetDefault("readiness.check_database", "false")
	v.SetDefault("readiness.cache_ttl", "5s")
	v.SetDefault("readiness.timeout", "2s")

	v.SetDefault("limiter.enabled", "false")
	v.SetDefault("limiter.rps", 10)
	v.SetDefault("limiter.burst", 20)

	v.SetDefault("metrics.enabled", "true")
}

// bindEnv registers the variables whose names do not follow the key path,
// plus the required ones that have no default.
func bindEnv(v *viper.Viper) error {
	bindings := [][]string{
		{"app_env", "APP_ENV", "FLASK_ENV"},
		{"secret_key", "SECRET_KEY"},
		{"database_url", "DATABASE_URL"},
		{"server.bind", "SERVER_BIND", "GUNICORN_BIND"},
		{"server.workers", "SERVER_WORKERS", "GUNICORN_WORKERS"},
		{"server.threads", "SERVER_THREADS", "GUNICORN_THREADS"},
		{"server.timeout", "SERVER_TIMEOUT", "GUNICORN_TIMEOUT"},
		{"server.graceful_timeout", "SERVER_GRACEFUL_TIMEOUT", "GUNICORN_GRACEFUL_TIMEOUT"},
		{"server.keepalive", "SERVER_KEEPALIVE", "GUNICORN_KEEPALIVE"},
		{"server.access_log", "SERVER_ACCESS_LOG", "GUNICORN_ACCESS_LOG"},
		{"server.error_log", "SERVER_ERROR_LOG", "GUNICORN_ERROR_LOG"},
		{"server.log_level", "SERVER_LOG_LEVEL", "GUNICORN_LOG_LEVEL"},
		{"server.proc_name", "SERVER_PROC_NAME", "GUNICORN_PROC_NAME"},
	}

	for _, b := range bindings {
		if err := v.BindEnv(b...); err != nil {
			return fmt.Errorf("bind env %s: %w", b[0], err)
		}
	}

	return nil
}

func loadDotEnv(paths []string) error {
	for _, p := range paths {
		envPath := filepath.Join(p, ".env")
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		// godotenv.Load never overrides variables that are already set.
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load %s: %w", envPath, err)
		}
		slog.Debug("loaded env file", slog.String("file", envPath))
	}

	return nil
}

func (c *Config) applyProfile() error {
	env, ok := envAliases[strings.ToLower(strings.TrimSpace(c.Env))]
	if !ok {
		return validation.Errors{
			"app_env": validation.NewError("validation_invalid_env",
				fmt.Sprintf("must be one of %s, %s, %s", EnvDevelopment, EnvTesting, EnvProduction)),
		}
	}
	c.Env = env
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.Server.LogLevel = strings.ToLower(c.Server.LogLevel)

	switch c.Env {
	case EnvDevelopment:
		c.Debug = true
		c.LogLevel = LogLevelDebug
	case EnvTesting:
		c.Testing = true
		c.Debug = true
		c.LogLevel = LogLevelDebug
		c.DatabaseURL = c.TestDatabaseURL
	case EnvProduction:
		c.Debug = false
	}

	return nil
}

func (c *Config) requireEnv() error {
	if c.SecretKey == "" {
		return fmt.Errorf("%w: %s", ErrMissingEnv, "SECRET_KEY")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: %s", ErrMissingEnv, "DATABASE_URL")
	}

	return nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.AppName, validation.Required),
		validation.Field(&c.Env,
			validation.Required,
			validation.In(EnvDevelopment, EnvTesting, EnvProduction),
		),
		validation.Field(&c.Host,
			validation.Required,
			is.Host,
		),
		validation.Field(&c.Port,
			validation.Required,
			validation.Min(1),
			validation.Max(65535),
		),
		validation.Field(&c.LogLevel,
			validation.Required,
			validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelWarning, LogLevelError, LogLevelCritical),
		),
		validation.Field(&c.MaxContentLength, validation.Min(int64(0))),
		validation.Field(&c.Server,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Bind, validation.By(validateHostPort)),
					validation.Field(&sc.Workers, validation.Required, validation.Min(1)),
					validation.Field(&sc.Threads, validation.Required, validation.Min(1)),
					validation.Field(&sc.Timeout, validation.Required, validation.By(validateDuration)),
					validation.Field(&sc.GracefulTimeout, validation.Required, validation.By(validateDuration)),
					validation.Field(&sc.KeepAlive, validation.Required, validation.By(validateDuration)),
					validation.Field(&sc.LogLevel,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelWarning, LogLevelError, LogLevelCritical),
					),
					validation.Field(&sc.ProcName, validation.Required),
				)
			}),
		),
		validation.Field(&c.Readiness,
			validation.By(func(value interface{}) error {
				rc, ok := value.(ReadinessConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ReadinessConfig")
				}
				return validation.ValidateStruct(&rc,
					validation.Field(&rc.CacheTTL, validation.Required, validation.By(validateCacheTTL)),
					validation.Field(&rc.Timeout, validation.Required, validation.By(validateDuration)),
				)
			}),
		),
		validation.Field(&c.Limiter,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LimiterConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LimiterConfig")
				}
				if !lc.Enabled {
					return nil
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.RPS, validation.Required, validation.Min(0.0).Exclusive()),
					validation.Field(&lc.Burst, validation.Required, validation.Min(1)),
				)
			}),
		),
	)
}

// Addr returns the listen address: the explicit server bind when present,
// otherwise host and port.
func (c *Config) Addr() string {
	if c.Server.Bind != "" {
		return c.Server.Bind
	}

	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func (c *Config) IsTesting() bool {
	return c.Env == EnvTesting
}

// ParseDuration accepts Go duration strings and bare integers, which are
// read as seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}

	return time.ParseDuration(s)
}

// MustDuration is ParseDuration for values that already passed Validate.
func MustDuration(s string) time.Duration {
	d, err := ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("config: invalid duration %q: %v", s, err))
	}

	return d
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if addr == "" {
		return nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 30, 2s, 5m)")
	}

	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be positive")
	}

	return nil
}

// validateCacheTTL allows zero, which turns readiness caching off.
func validateCacheTTL(value interface{}) error {
	s, _ := value.(string)
	d, err := ParseDuration(s)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 30, 2s, 5m)")
	}

	if d < 0 {
		return validation.NewError("validation_invalid_duration", "must not be negative")
	}

	return nil
}
