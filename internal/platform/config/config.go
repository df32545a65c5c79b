package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Server captures process level configuration.
type Server struct {
	Addr           string          `yaml:"addr"`
	Environment    string          `yaml:"environment"`
	ServiceName    string          `yaml:"service_name"`
	Directory      DirectoryConfig `yaml:"directory"`
	Lockout        LockoutConfig   `yaml:"lockout"`
	Token          TokenConfig     `yaml:"token"`
	Redis          RedisConfig     `yaml:"redis"`
	Postgres       PostgresConfig  `yaml:"postgres"`
	Kafka          KafkaConfig     `yaml:"kafka"`
	Telemetry      TelemetryConfig `yaml:"telemetry"`
	Tracing        TracingConfig   `yaml:"tracing"`
	LoginRateLimit RateLimitConfig `yaml:"login_rate_limit"`
}

// DirectoryConfig describes the Active Directory endpoint.
type DirectoryConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	UseTLS      bool          `yaml:"use_tls"`
	Domain      string        `yaml:"domain"`
	BaseDN      string        `yaml:"base_dn"`
	CACertFile  string        `yaml:"ca_cert_file"`
	BindTimeout time.Duration `yaml:"bind_timeout"`
}

// LockoutConfig holds failed-attempt thresholds.
type LockoutConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	AttemptWindow time.Duration `yaml:"attempt_window"`
	LockDuration  time.Duration `yaml:"lock_duration"`
}

// TokenConfig holds bearer token settings.
type TokenConfig struct {
	SigningKey         string        `yaml:"signing_key"`
	Algorithm          string        `yaml:"algorithm"`
	Issuer             string        `yaml:"issuer"`
	AccessTTL          time.Duration `yaml:"access_ttl"`
	RevocationBackend  string        `yaml:"revocation_backend"`
	RevocationCacheTTL time.Duration `yaml:"revocation_cache_ttl"`
}

// RedisConfig mirrors the go-redis options we override.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig configures the audit database.
type PostgresConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	Migrate      bool   `yaml:"migrate"`
}

// KafkaConfig configures the optional audit stream.
type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	AuditTopic string   `yaml:"audit_topic"`
}

// TelemetryConfig drives the security monitor loop.
type TelemetryConfig struct {
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
}

// TracingConfig points at an OTLP collector; empty endpoint disables export.
type TracingConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// RateLimitConfig throttles login attempts per client IP.
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute"`
	Burst     int `yaml:"burst"`
}

const devSigningKey = "dev-secret-key-change-in-production"

// Default returns the configuration used when nothing is overridden.
func Default() Server {
	return Server{
		Addr:        ":8000",
		Environment: "development",
		ServiceName: "onesite-auth",
		Directory: DirectoryConfig{
			Port:        636,
			UseTLS:      true,
			BindTimeout: 5 * time.Second,
		},
		Lockout: LockoutConfig{
			MaxAttempts:   5,
			AttemptWindow: time.Hour,
			LockDuration:  15 * time.Minute,
		},
		Token: TokenConfig{
			SigningKey:         devSigningKey,
			Algorithm:          "HS256",
			Issuer:             "onesite",
			AccessTTL:          30 * time.Minute,
			RevocationBackend:  "redis",
			RevocationCacheTTL: 5 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Postgres: PostgresConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			Migrate:      true,
		},
		Kafka: KafkaConfig{AuditTopic: "security.login-attempts"},
		Telemetry: TelemetryConfig{
			Interval:      5 * time.Minute,
			RetentionDays: 90,
		},
		LoginRateLimit: RateLimitConfig{PerMinute: 30, Burst: 10},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by CONFIG_FILE, and environment variables, in that order of precedence.
func Load() (Server, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Server{}, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// FromEnv builds a Server config from defaults and environment variables only.
func FromEnv() Server {
	cfg := Default()
	applyEnv(&cfg)
	return cfg
}

// LoadFile overlays the YAML document at path onto cfg.
func LoadFile(path string, cfg *Server) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations the service cannot run with.
func (s Server) Validate() error {
	var errs []error
	if s.Lockout.MaxAttempts <= 0 {
		errs = append(errs, errors.New("lockout.max_attempts must be positive"))
	}
	if s.Lockout.AttemptWindow <= 0 || s.Lockout.LockDuration <= 0 {
		errs = append(errs, errors.New("lockout windows must be positive"))
	}
	if s.Token.AccessTTL <= 0 {
		errs = append(errs, errors.New("token.access_ttl must be positive"))
	}
	if !strings.EqualFold(s.Token.Algorithm, "HS256") {
		errs = append(errs, fmt.Errorf("unsupported token algorithm %q", s.Token.Algorithm))
	}
	if s.IsProduction() && (s.Token.SigningKey == "" || s.Token.SigningKey == devSigningKey) {
		errs = append(errs, errors.New("SECRET_KEY must be set in production"))
	}
	switch s.Token.RevocationBackend {
	case "redis", "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown revocation backend %q", s.Token.RevocationBackend))
	}
	if s.Directory.BindTimeout <= 0 {
		errs = append(errs, errors.New("directory.bind_timeout must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the process runs with production safeguards.
func (s Server) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}

func applyEnv(cfg *Server) {
	setString(&cfg.Addr, "APP_ADDR")
	setString(&cfg.Environment, "APP_ENV")
	setString(&cfg.ServiceName, "SERVICE_NAME")

	setString(&cfg.Directory.Host, "AD_SERVER")
	setBool(&cfg.Directory.UseTLS, "AD_USE_SSL")
	if os.Getenv("AD_PORT") == "" && !cfg.Directory.UseTLS && cfg.Directory.Port == 636 {
		cfg.Directory.Port = 389
	}
	setInt(&cfg.Directory.Port, "AD_PORT")
	setString(&cfg.Directory.Domain, "AD_DOMAIN")
	setString(&cfg.Directory.BaseDN, "AD_BASE_DN")
	setString(&cfg.Directory.CACertFile, "AD_CA_CERT_FILE")
	setDuration(&cfg.Directory.BindTimeout, "AD_BIND_TIMEOUT")

	setInt(&cfg.Lockout.MaxAttempts, "MAX_LOGIN_ATTEMPTS")
	setDuration(&cfg.Lockout.AttemptWindow, "ATTEMPT_WINDOW")
	setDuration(&cfg.Lockout.LockDuration, "LOCKOUT_DURATION")

	setString(&cfg.Token.SigningKey, "SECRET_KEY")
	setString(&cfg.Token.Algorithm, "ALGORITHM")
	setString(&cfg.Token.Issuer, "TOKEN_ISSUER")
	if v := os.Getenv("ACCESS_TOKEN_EXPIRE_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Token.AccessTTL = time.Duration(n) * time.Minute
		}
	}
	setString(&cfg.Token.RevocationBackend, "REVOCATION_BACKEND")

	setString(&cfg.Redis.URL, "REDIS_URL")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")

	setString(&cfg.Postgres.URL, "DATABASE_URL")
	setBool(&cfg.Postgres.Migrate, "DATABASE_MIGRATE")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setString(&cfg.Kafka.AuditTopic, "KAFKA_AUDIT_TOPIC")

	setDuration(&cfg.Telemetry.Interval, "TELEMETRY_INTERVAL")
	setInt(&cfg.Telemetry.RetentionDays, "AUDIT_RETENTION_DAYS")

	setString(&cfg.Tracing.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	setInt(&cfg.LoginRateLimit.PerMinute, "LOGIN_RATE_LIMIT_PER_MINUTE")
	setInt(&cfg.LoginRateLimit.Burst, "LOGIN_RATE_LIMIT_BURST")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
