package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Token           string `env:"TOKEN,required,notEmpty"`
	DBPath          string `env:"DB_PATH"          envDefault:"db.sqlite"`
	PollSpec        string `env:"POLL_CRON"        envDefault:"*/5 * * * *"`
	PollConcurrency int    `env:"POLL_CONCURRENCY" envDefault:"8"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}
