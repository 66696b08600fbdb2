package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Server struct {
		Port   int    `env:"PORT" envDefault:"8080"`
		Origin string `env:"ORIGIN" envDefault:"http://localhost:3000"`
	}

	Redis struct {
		Host     string `env:"REDIS_HOST" envDefault:"localhost"`
		Port     int    `env:"REDIS_PORT" envDefault:"6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	Identity struct {
		BaseURL string        `env:"IDENTITY_BASE_URL,required"`
		APIKey  string        `env:"IDENTITY_API_KEY" envDefault:""`
		Timeout time.Duration `env:"IDENTITY_TIMEOUT" envDefault:"10s"`
	}

	Backend struct {
		BaseURL string        `env:"BACKEND_BASE_URL,required"`
		Timeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"10s"`
	}

	Auth struct {
		// Cached profile snapshots older than this force a network refresh.
		StaleAfter       time.Duration `env:"PROFILE_STALE_AFTER" envDefault:"1h"`
		SnapshotTTL      time.Duration `env:"PROFILE_SNAPSHOT_TTL" envDefault:"24h"`
		LoginPath        string        `env:"LOGIN_PATH" envDefault:"/auth/login"`
		UnauthorizedPath string        `env:"UNAUTHORIZED_PATH" envDefault:"/unauthorized"`
	}

	RateLimit struct {
		LoginPerMinute float64 `env:"LOGIN_RATE_PER_MINUTE" envDefault:"10"`
		LoginBurst     int     `env:"LOGIN_RATE_BURST" envDefault:"5"`
	}
}

func Load() *Config {
	// Missing .env is fine, variables may be set directly in the environment.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		panic(err)
	}

	return cfg
}
