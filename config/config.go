// Package config loads runtime settings from defaults, an optional .env
// file and the environment. Command-line flags are applied on top by main.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"library-racks/library"
)

// Environment variable names.
const (
	EnvRackCapacity = "LIBRARY_RACK_CAPACITY"
	EnvBorrowLimit  = "LIBRARY_DEFAULT_BORROW_LIMIT"
	EnvJournal      = "LIBRARY_JOURNAL"
	EnvLogLevel     = "LIBRARY_LOG_LEVEL"
)

type Config struct {
	RackCapacity       int    `validate:"min=1"`
	DefaultBorrowLimit int    `validate:"min=0"`
	JournalPath        string
	LogLevel           string `validate:"oneof=debug info warn error"`
}

func Default() Config {
	return Config{
		RackCapacity:       library.DefaultRackCapacity,
		DefaultBorrowLimit: library.DefaultBorrowLimit,
		LogLevel:           "info",
	}
}

// Load reads envFile (when it exists) into the process environment and
// then overlays environment variables on the defaults. A missing envFile is
// not an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if err := intFromEnv(EnvRackCapacity, &cfg.RackCapacity); err != nil {
		return Config{}, err
	}
	if err := intFromEnv(EnvBorrowLimit, &cfg.DefaultBorrowLimit); err != nil {
		return Config{}, err
	}
	if v, ok := os.LookupEnv(EnvJournal); ok {
		cfg.JournalPath = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks every field and reports the first offending one.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SlogLevel maps LogLevel onto slog levels.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func intFromEnv(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %q is not a number", key, v)
	}
	*dst = n
	return nil
}
