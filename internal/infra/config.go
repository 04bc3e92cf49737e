package infra

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config represents application configuration loaded from environment
// variables.
type Config struct {
	AppEnv string `env:"APP_ENV, default=development"`
	Port   string `env:"PORT, default=8080"`

	DatabaseURL string `env:"DATABASE_URL"`
	JWTSecret   string `env:"JWT_SECRET, required"`

	// PublicBaseURL is the externally reachable base used when
	// registering provider callbacks.
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`

	// WebhookSecret signs and verifies provider callback URLs. The skew
	// window is generous because the signature is minted at submission
	// time and presented whenever the provider finishes.
	WebhookSecret  string        `env:"WEBHOOK_SECRET, required"`
	WebhookMaxSkew time.Duration `env:"WEBHOOK_MAX_SKEW, default=24h"`

	AdminToken string `env:"ADMIN_TOKEN"`

	KlingBaseURL string `env:"KLING_BASE_URL, default=https://api.klingai.com"`
	KlingAPIKey  string `env:"KLING_API_KEY"`
	ViduBaseURL  string `env:"VIDU_BASE_URL, default=https://api.vidu.com"`
	ViduAPIKey   string `env:"VIDU_API_KEY"`

	SweepInterval    time.Duration `env:"SWEEP_INTERVAL, default=1m"`
	SweepPollAfter   time.Duration `env:"SWEEP_POLL_AFTER, default=2m"`
	SweepGiveUpAfter time.Duration `env:"SWEEP_GIVE_UP_AFTER, default=30m"`

	EventHeartbeat time.Duration `env:"EVENT_HEARTBEAT, default=25s"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS"`

	HTTPReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT, default=15s"`
	HTTPWriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT, default=60s"`
	HTTPIdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT, default=120s"`
	RateLimitPerMin  int           `env:"RATE_LIMIT_PER_MIN, default=120"`
}

// LoadConfig reads configuration from environment variables and applies
// defaults.
func LoadConfig(ctx context.Context) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("config: DATABASE_URL is required")
	}
	return cfg, nil
}
