package melodex

import (
	"io"

	"melodex/internal/audio"
	"melodex/internal/feature"
	"melodex/internal/match"
	"melodex/internal/store"
)

type Config struct {
	DBPath   string
	Params   feature.Params
	Match    match.Config
	Workers  int
	Progress io.Writer
	Decoder  audio.Decoder
	Logger   Logger
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithParams(p feature.Params) Option {
	return func(c *Config) {
		c.Params = p
	}
}

func WithMatchConfig(mc match.Config) Option {
	return func(c *Config) {
		c.Match = mc
	}
}

func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

func WithProgress(w io.Writer) Option {
	return func(c *Config) {
		c.Progress = w
	}
}

func WithDecoder(dec audio.Decoder) Option {
	return func(c *Config) {
		c.Decoder = dec
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath: store.DefaultDBFile,
		Params: feature.DefaultParams(),
		Match:  match.DefaultConfig(),
	}
}
