// Package config loads skyscope settings from defaults, a YAML or JSON file
// and SKYSCOPE_* environment variables, in that order. Command line flags are
// applied last by the CLI.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/skyscope/internal/logging"
	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/mapstructure"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no config path is given. A missing default file is
// not an error.
const DefaultFile = "skyscope.yaml"

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "SKYSCOPE_"

// Store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

type Backend struct {
	URL     string        `mapstructure:"url" env:"URL"`
	Timeout time.Duration `mapstructure:"timeout" env:"TIMEOUT"`
}

type HTTP struct {
	Port int `mapstructure:"port" env:"PORT"`
}

// Scheduling holds the debounce delays of the two action streams.
type Scheduling struct {
	SearchDelay time.Duration `mapstructure:"search_delay" env:"SEARCH_DELAY"`
	RenderDelay time.Duration `mapstructure:"render_delay" env:"RENDER_DELAY"`
	// ActionTimeout bounds each backend call made by a stream. Zero disables it.
	ActionTimeout time.Duration `mapstructure:"action_timeout" env:"ACTION_TIMEOUT"`
}

type Store struct {
	Kind string `mapstructure:"kind" env:"KIND"`
	Dir  string `mapstructure:"dir" env:"DIR"`
}

type Redis struct {
	Addr     string        `mapstructure:"addr" env:"ADDR"`
	Password string        `mapstructure:"password" env:"PASSWORD"`
	DB       int           `mapstructure:"db" env:"DB"`
	Prefix   string        `mapstructure:"prefix" env:"PREFIX"`
	TTL      time.Duration `mapstructure:"ttl" env:"TTL"`
	LockTTL  time.Duration `mapstructure:"lock_ttl" env:"LOCK_TTL"`
}

type Log struct {
	Level  string `mapstructure:"level" env:"LEVEL"`
	Format string `mapstructure:"format" env:"FORMAT"`
}

type OTel struct {
	// Endpoint is the OTLP/HTTP collector address. Tracing is off when empty.
	Endpoint    string `mapstructure:"endpoint" env:"ENDPOINT"`
	ServiceName string `mapstructure:"service_name" env:"SERVICE_NAME"`
	Insecure    bool   `mapstructure:"insecure" env:"INSECURE"`
}

// UI holds presentation settings shared by every front end.
type UI struct {
	// Locale is a BCP 47 tag used for number formatting, e.g. "de-CH".
	Locale string `mapstructure:"locale" env:"LOCALE"`
}

// Language returns the parsed locale, or English when it does not parse.
func (u UI) Language() language.Tag {
	tag, err := language.Parse(u.Locale)
	if err != nil {
		return language.English
	}
	return tag
}

// Config is the full application configuration.
type Config struct {
	Backend    Backend    `mapstructure:"backend" envPrefix:"BACKEND_"`
	HTTP       HTTP       `mapstructure:"http" envPrefix:"HTTP_"`
	Scheduling Scheduling `mapstructure:"scheduling"`
	Store      Store      `mapstructure:"store" envPrefix:"STORE_"`
	Redis      Redis      `mapstructure:"redis" envPrefix:"REDIS_"`
	Log        Log        `mapstructure:"log" envPrefix:"LOG_"`
	OTel       OTel       `mapstructure:"otel" envPrefix:"OTEL_"`
	UI         UI         `mapstructure:"ui" envPrefix:"UI_"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend: Backend{
			URL:     "http://localhost:8080",
			Timeout: 30 * time.Second,
		},
		HTTP: HTTP{Port: 8090},
		Scheduling: Scheduling{
			SearchDelay: 250 * time.Millisecond,
			RenderDelay: time.Second,
		},
		Store: Store{
			Kind: StoreMemory,
			Dir:  ".skyscope/views",
		},
		Redis: Redis{
			Addr:    "localhost:6379",
			Prefix:  "skyscope:view:",
			LockTTL: 30 * time.Second,
		},
		Log: Log{
			Level:  "info",
			Format: string(logging.FormatText),
		},
		OTel: OTel{ServiceName: "skyscope"},
		UI:   UI{Locale: "en"},
	}
}

// Load builds the configuration. An empty path reads DefaultFile if present.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := applyFile(&cfg, path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			err = nil
		}
		if err != nil {
			return cfg, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	raw := map[string]any{}
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}
	return nil
}

// Validate checks the values that cannot be caught by decoding.
func (c Config) Validate() error {
	var errs []error
	if c.Backend.URL == "" {
		errs = append(errs, errors.New("backend.url is required"))
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.Scheduling.SearchDelay < 0 || c.Scheduling.RenderDelay < 0 || c.Scheduling.ActionTimeout < 0 {
		errs = append(errs, errors.New("scheduling durations must not be negative"))
	}
	switch c.Store.Kind {
	case StoreMemory, StoreFile, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("store.kind %q must be memory, file or redis", c.Store.Kind))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch logging.Format(c.Log.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if _, err := language.Parse(c.UI.Locale); err != nil {
		errs = append(errs, fmt.Errorf("ui.locale %q: %w", c.UI.Locale, err))
	}
	return errors.Join(errs...)
}

// Logger builds the application logger described by the Log section.
func (c Config) Logger() *slog.Logger {
	level, _ := logging.ParseLevel(c.Log.Level)
	return logging.NewWithFormat(os.Stderr, level, logging.Format(c.Log.Format))
}
