package config

import (
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DiscordToken     string        `env:"DISCORD_TOKEN,required,notEmpty"`
	DataDir          string        `env:"DATA_DIR"          envDefault:"./data"`
	PollInterval     time.Duration `env:"POLL_INTERVAL"     envDefault:"10m"`
	FetchTimeout     time.Duration `env:"FETCH_TIMEOUT"     envDefault:"30s"`
	UserAgent        string        `env:"USER_AGENT"`
	CompressSnapshot bool          `env:"COMPRESS_SNAPSHOT" envDefault:"false"`
	LogLevel         string        `env:"LOG_LEVEL"         envDefault:"info"`
}

// Level maps LOG_LEVEL to a slog level, falling back to info on garbage.
func (c Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}

	return level
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
