// Package config loads and validates server configuration from the
// environment, with optional command-line overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Challenge store kinds.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config holds the application configuration
type Config struct {
	// Port is the HTTP listen port.
	Port string `mapstructure:"PORT"`
	// Root is the directory holding one subdirectory per category.
	Root string `mapstructure:"SOUNDSCAPES_ROOT"`
	// ExternalBaseURL, when set, is used as the host for generated file URLs.
	ExternalBaseURL string `mapstructure:"EXTERNAL_BASE_URL"`
	// AllowedExts are the accepted audio extensions.
	AllowedExts []string `mapstructure:"ALLOWED_EXTS"`
	// MaxUploadBytes bounds a single upload request body.
	MaxUploadBytes int64 `mapstructure:"MAX_UPLOAD_BYTES"`

	// AdminPhone is the only phone number allowed to request a code (E.164).
	AdminPhone string `mapstructure:"ADMIN_E164"`
	// AdminPassword is the legacy shared secret. AdminPasswordHash (bcrypt) wins when both are set.
	AdminPassword     string `mapstructure:"ADMIN_PASSWORD"`
	AdminPasswordHash string `mapstructure:"ADMIN_PASSWORD_HASH"`
	// TokenSecret signs admin credentials. Required.
	TokenSecret string        `mapstructure:"ADMIN_TOKEN_SECRET"`
	TokenTTL    time.Duration `mapstructure:"TOKEN_TTL"`
	OTPTTL      time.Duration `mapstructure:"OTP_TTL"`
	// OTPSalt is mixed into stored code hashes; defaults to TokenSecret.
	OTPSalt string `mapstructure:"OTP_SALT"`

	TwilioEnabled bool `mapstructure:"TWILIO_ENABLED"`
	// TwilioStrict disables the legacy password login. On unless explicitly turned off.
	TwilioStrict      bool          `mapstructure:"TWILIO_STRICT"`
	TwilioAccountSID  string        `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string        `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioPhoneNumber string        `mapstructure:"TWILIO_PHONE_NUMBER"`
	TwilioBaseURL     string        `mapstructure:"TWILIO_BASE_URL"`
	SMSTimeout        time.Duration `mapstructure:"SMS_TIMEOUT"`

	// DevShowCode returns generated codes in the login_start response. Must not be set in production.
	DevShowCode bool   `mapstructure:"DEV_SHOW_CODE"`
	Env         string `mapstructure:"APP_ENV"`

	// ChallengeStore selects where pending codes live: memory, postgres or redis.
	ChallengeStore string        `mapstructure:"CHALLENGE_STORE"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	SweepInterval  time.Duration `mapstructure:"SWEEP_INTERVAL"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
	LogLevel    string   `mapstructure:"LOG_LEVEL"`
}

// RegisterFlags adds the command-line overrides understood by Load to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("port", "", "HTTP listen port (overrides PORT)")
	fs.String("root", "", "soundscapes root directory (overrides SOUNDSCAPES_ROOT)")
	fs.String("challenge-store", "", "challenge store: memory, postgres or redis (overrides CHALLENGE_STORE)")
	fs.String("log-level", "", "log level: debug, info, warn or error (overrides LOG_LEVEL)")
}

var flagKeys = map[string]string{
	"port":            "PORT",
	"root":            "SOUNDSCAPES_ROOT",
	"challenge-store": "CHALLENGE_STORE",
	"log-level":       "LOG_LEVEL",
}

// Load builds and validates Config from the environment. Flags in fs that
// were set on the command line take precedence. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8083")
	v.SetDefault("SOUNDSCAPES_ROOT", "static/soundscapes")
	v.SetDefault("EXTERNAL_BASE_URL", "")
	v.SetDefault("ALLOWED_EXTS", ".mp3,.wav")
	v.SetDefault("MAX_UPLOAD_BYTES", 200<<20)
	v.SetDefault("ADMIN_E164", "")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("ADMIN_PASSWORD_HASH", "")
	v.SetDefault("ADMIN_TOKEN_SECRET", "")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("OTP_SALT", "")
	v.SetDefault("TWILIO_ENABLED", false)
	v.SetDefault("TWILIO_STRICT", true)
	v.SetDefault("TWILIO_ACCOUNT_SID", "")
	v.SetDefault("TWILIO_AUTH_TOKEN", "")
	v.SetDefault("TWILIO_PHONE_NUMBER", "")
	v.SetDefault("TWILIO_BASE_URL", "")
	v.SetDefault("SMS_TIMEOUT", "10s")
	v.SetDefault("DEV_SHOW_CODE", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("CHALLENGE_STORE", StoreMemory)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("SWEEP_INTERVAL", "1m")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("LOG_LEVEL", "info")

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.AllowedExts = splitList(cfg.AllowedExts)
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.ChallengeStore = strings.ToLower(strings.TrimSpace(cfg.ChallengeStore))
	cfg.ExternalBaseURL = strings.TrimRight(strings.TrimSpace(cfg.ExternalBaseURL), "/")

	if cfg.TokenSecret == "" {
		return nil, errors.New("config: ADMIN_TOKEN_SECRET must be set")
	}
	if cfg.OTPSalt == "" {
		cfg.OTPSalt = cfg.TokenSecret
	}
	if cfg.DevShowCode && cfg.IsProduction() {
		return nil, errors.New("config: DEV_SHOW_CODE must not be true when APP_ENV=production")
	}
	if cfg.TokenTTL <= 0 {
		return nil, errors.New("config: TOKEN_TTL must be positive")
	}
	if cfg.OTPTTL <= 0 {
		return nil, errors.New("config: OTP_TTL must be positive")
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, errors.New("config: MAX_UPLOAD_BYTES must be positive")
	}

	switch cfg.ChallengeStore {
	case StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL is required when CHALLENGE_STORE=postgres")
		}
	case StoreRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("config: REDIS_URL is required when CHALLENGE_STORE=redis")
		}
	default:
		return nil, fmt.Errorf("config: unknown CHALLENGE_STORE %q", cfg.ChallengeStore)
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV names a production environment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// TwilioConfigured reports whether SMS delivery is enabled and has credentials.
func (c *Config) TwilioConfigured() bool {
	return c.TwilioEnabled && c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioPhoneNumber != ""
}

// splitList trims entries and drops empty ones; it also splits any
// entry still holding commas.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, p := range strings.Split(item, ",") {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
