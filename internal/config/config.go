// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the Redis address for the MFA challenge store (e.g. localhost:6379).
	// Empty falls back to the in-memory store (single instance only).
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the optional Redis AUTH password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// RefreshTTLRaw is the refresh token / session lifetime (e.g. "720h").
	RefreshTTLRaw string `mapstructure:"REFRESH_TTL"`

	// MFAIssuer is the issuer shown in authenticator apps.
	MFAIssuer string `mapstructure:"MFA_ISSUER"`
	// MFASecretKey is the 32-byte key (hex or raw) sealing TOTP secrets at rest.
	MFASecretKey string `mapstructure:"MFA_SECRET_KEY"`

	// Argon2Memory is the argon2id memory cost in KiB; default 65536 (64 MiB).
	Argon2Memory uint32 `mapstructure:"ARGON2_MEMORY_KIB"`
	// Argon2Iterations is the argon2id time cost; default 3.
	Argon2Iterations uint32 `mapstructure:"ARGON2_ITERATIONS"`
	// Argon2Parallelism is the argon2id lane count; default 2.
	Argon2Parallelism uint8 `mapstructure:"ARGON2_PARALLELISM"`

	// LockoutThreshold is the consecutive-failure count that locks an account; default 5.
	LockoutThreshold int `mapstructure:"LOCKOUT_THRESHOLD"`
	// LockoutWindowRaw is the lockout duration (e.g. "30m").
	LockoutWindowRaw string `mapstructure:"LOCKOUT_WINDOW"`

	// SMTPAddr is the SMTP relay ("host:port"). Empty logs mail instead of sending.
	SMTPAddr string `mapstructure:"SMTP_ADDR"`
	// SMTPUsername is the optional SMTP AUTH username.
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	// SMTPPassword is the optional SMTP AUTH password.
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	// EmailFrom is the From address on outbound mail.
	EmailFrom string `mapstructure:"EMAIL_FROM"`
	// PublicBaseURL is the origin the mailed links point at.
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`

	// LoginPolicy is an optional Rego source overriding the built-in login
	// admission policy (path or inline). Empty uses the default.
	LoginPolicy string `mapstructure:"LOGIN_POLICY_REGO"`

	// KafkaBrokers is a comma-separated broker list for the security event
	// stream. Empty disables the stream.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// KafkaSecurityTopic is the topic for high-severity security events.
	KafkaSecurityTopic string `mapstructure:"KAFKA_SECURITY_TOPIC"`

	// OTLPEndpoint is the OTLP gRPC endpoint for traces (e.g. localhost:4317).
	// Empty disables tracing export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("JWT_ISSUER", "smart-stock-auth")
	v.SetDefault("JWT_AUDIENCE", "smart-stock-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("REFRESH_TTL", "720h") // 30d
	v.SetDefault("MFA_ISSUER", "Smart Stock")
	v.SetDefault("ARGON2_MEMORY_KIB", 64*1024)
	v.SetDefault("ARGON2_ITERATIONS", 3)
	v.SetDefault("ARGON2_PARALLELISM", 2)
	v.SetDefault("LOCKOUT_THRESHOLD", 5)
	v.SetDefault("LOCKOUT_WINDOW", "30m")
	v.SetDefault("SMTP_ADDR", "")
	v.SetDefault("EMAIL_FROM", "no-reply@smartstock.local")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:3000")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_SECURITY_TOPIC", "smartstock-security-events")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}
	if cfg.LockoutThreshold <= 0 {
		return nil, errors.New("config: LOCKOUT_THRESHOLD must be positive")
	}
	if cfg.Argon2Memory == 0 || cfg.Argon2Iterations == 0 || cfg.Argon2Parallelism == 0 {
		return nil, errors.New("config: argon2 parameters must be positive")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL parses the refresh token lifetime. Returns 720h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.RefreshTTLRaw)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}

// LockoutWindow parses the lockout duration. Returns 30m if unset or invalid.
func (c *Config) LockoutWindow() time.Duration {
	d, err := time.ParseDuration(c.LockoutWindowRaw)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// KafkaBrokersList returns broker addresses from the comma-separated config.
// A non-empty list enables the security event stream.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
