package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/signalix/accounts/internal/db"
)

// Environments accepted in APP_ENV.
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string `validate:"required,url"`
	AppEnv      string `validate:"required,oneof=development test production"`
	Port        string `validate:"required,numeric"`

	JWTSecret string        `validate:"required"`
	JWTTTL    time.Duration `validate:"gte=0"`

	EmailFrom string `validate:"required,email"`
	EmailName string `validate:"required"`

	SMTPHost     string
	SMTPPort     int `validate:"gte=1,lte=65535"`
	SMTPUser     string
	SMTPPassword string
	SMTPSecure   bool

	RedisURL        string        `validate:"omitempty,url"`
	EmailRetryDelay time.Duration `validate:"gt=0"`

	OTPDigits int           `validate:"oneof=6 8"`
	OTPStep   time.Duration `validate:"gte=1s"`

	RateLimitWindow time.Duration `validate:"gt=0"`
	RateLimitMax    int           `validate:"gte=1"`

	LogLevel  string
	LogFormat string `validate:"oneof=json console"`
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		AppEnv:       os.Getenv("APP_ENV"),
		Port:         getenv("PORT", "8080"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		EmailFrom:    os.Getenv("EMAIL_FROM"),
		EmailName:    os.Getenv("EMAIL_NAME"),
		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		RedisURL:     os.Getenv("REDIS_URL"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		LogFormat:    getenv("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.JWTTTL, err = durationEnv("JWT_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.SMTPPort, err = intEnv("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.SMTPSecure, err = boolEnv("SMTP_SECURE", false); err != nil {
		return nil, err
	}
	if cfg.EmailRetryDelay, err = durationEnv("EMAIL_RETRY_DELAY", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.OTPDigits, err = intEnv("OTP_DIGITS", 6); err != nil {
		return nil, err
	}
	if cfg.OTPStep, err = durationEnv("OTP_STEP", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = durationEnv("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = intEnv("RATE_LIMIT_MAX", 10); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Str("env", cfg.AppEnv).
		Str("dsn", db.RedactDSN(cfg.DatabaseURL)).
		Bool("redis", cfg.RedisURL != "").
		Bool("smtp", cfg.SMTPHost != "").
		Msg("Configuration loaded")

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field and names the environment variable of each
// failing one.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s failed %q", envNames[fe.Field()], fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

var envNames = map[string]string{
	"DatabaseURL":     "DATABASE_URL",
	"AppEnv":          "APP_ENV",
	"Port":            "PORT",
	"JWTSecret":       "JWT_SECRET",
	"JWTTTL":          "JWT_TTL",
	"EmailFrom":       "EMAIL_FROM",
	"EmailName":       "EMAIL_NAME",
	"SMTPPort":        "SMTP_PORT",
	"RedisURL":        "REDIS_URL",
	"EmailRetryDelay": "EMAIL_RETRY_DELAY",
	"OTPDigits":       "OTP_DIGITS",
	"OTPStep":         "OTP_STEP",
	"RateLimitWindow": "RATE_LIMIT_WINDOW",
	"RateLimitMax":    "RATE_LIMIT_MAX",
	"LogFormat":       "LOG_FORMAT",
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration such as 15m: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false: %w", key, err)
	}
	return b, nil
}
