package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every env-sourced setting the server needs.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`
	Env  string `env:"ENV" envDefault:"dev"`

	// BaseURL is the externally reachable address used in verification links.
	BaseURL string `env:"BASE_URL" envDefault:"http://127.0.0.1:8080"`

	DatabaseDSN string `env:"DATABASE_DSN"`

	JWTSecret         string `env:"JWT_SECRET"`
	AccessTokenTTLMin int    `env:"ACCESS_TOKEN_EXPIRES_MIN" envDefault:"60"`
	VerifyTokenTTLMin int    `env:"VERIFICATION_TOKEN_EXPIRE_MIN" envDefault:"30"`

	SMTPHost  string `env:"SMTP_HOST"`
	SMTPPort  int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser  string `env:"SMTP_USER"`
	SMTPPass  string `env:"SMTP_PASS"`
	FromEmail string `env:"FROM_EMAIL"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string `env:"GOOGLE_REDIRECT_URI"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	CookieSecure bool `env:"COOKIE_SECURE" envDefault:"true"`
}

// Load reads .env if present, then parses the environment. Missing required
// values fail here rather than at first use.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("DATABASE_DSN required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET required")
	}
	return &cfg, nil
}
