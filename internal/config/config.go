// Package config loads VoxGuard settings from defaults, a YAML file, .env
// files and VOXGUARD_* environment variables, in that order of precedence
// (later wins). Command-line flags are applied by the binaries on top.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/himanishpuri/VoxGuard/pkg/logger"
	"github.com/himanishpuri/VoxGuard/pkg/voxguard"
	"github.com/himanishpuri/VoxGuard/pkg/voxguard/audio"
)

const EnvPrefix = "VOXGUARD_"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Model   ModelConfig   `yaml:"model"`
	Storage StorageConfig `yaml:"storage"`
	History HistoryConfig `yaml:"history"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type ModelConfig struct {
	Path           string   `yaml:"path"`
	RuntimeLibrary string   `yaml:"runtime_library"`
	Threshold      float64  `yaml:"threshold"`
	AllowedFormats []string `yaml:"allowed_formats"`
}

type StorageConfig struct {
	// DBPath enables the prediction ledger; empty disables it.
	DBPath string `yaml:"db_path"`
}

type HistoryConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Color bool   `yaml:"color"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           8000,
			AllowedOrigins: []string{"*"},
			MaxUploadBytes: 32 << 20,
			RequestTimeout: time.Minute,
		},
		Model: ModelConfig{
			Path:           voxguard.DefaultModelPath,
			Threshold:      voxguard.DefaultThreshold,
			AllowedFormats: append([]string(nil), audio.DefaultFormats...),
		},
		Storage: StorageConfig{DBPath: "voxguard.sqlite3"},
		History: HistoryConfig{TTL: 2 * time.Hour, SweepInterval: 5 * time.Minute},
		Log:     LogConfig{Level: "info", Color: true},
	}
}

// Load builds a Config from defaults, the optional YAML file at path and
// the environment. A missing path is not an error when path is empty.
// Values are not range-checked; callers apply their flags and then call
// Validate.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are skipped; variables already set are kept.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with VOXGUARD_* variables.
func ApplyEnv(cfg *Config) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = SplitList(v)
		}
	}
	parse := func(name string, fn func(string) error) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			if err := fn(v); err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			}
		}
	}

	str("MODEL_PATH", &cfg.Model.Path)
	str("ORT_LIB", &cfg.Model.RuntimeLibrary)
	str("DB_PATH", &cfg.Storage.DBPath)
	str("LOG_LEVEL", &cfg.Log.Level)
	list("FORMATS", &cfg.Model.AllowedFormats)
	list("ORIGINS", &cfg.Server.AllowedOrigins)

	parse("PORT", func(v string) (err error) {
		cfg.Server.Port, err = strconv.Atoi(v)
		return err
	})
	parse("THRESHOLD", func(v string) (err error) {
		cfg.Model.Threshold, err = strconv.ParseFloat(v, 64)
		return err
	})
	parse("MAX_UPLOAD", func(v string) error {
		n, err := humanize.ParseBytes(v)
		cfg.Server.MaxUploadBytes = int64(n)
		return err
	})
	parse("REQUEST_TIMEOUT", func(v string) (err error) {
		cfg.Server.RequestTimeout, err = time.ParseDuration(v)
		return err
	})
	parse("HISTORY_TTL", func(v string) (err error) {
		cfg.History.TTL, err = time.ParseDuration(v)
		return err
	})
	parse("LOG_COLOR", func(v string) (err error) {
		cfg.Log.Color, err = strconv.ParseBool(v)
		return err
	})

	return errors.Join(errs...)
}

// SplitList splits a comma-separated value, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must not be negative"))
	}
	if c.Model.Threshold < 0 || c.Model.Threshold > 1 {
		errs = append(errs, fmt.Errorf("model.threshold %v: %w", c.Model.Threshold, voxguard.ErrInvalidThreshold))
	}
	if c.Model.Path == "" {
		errs = append(errs, errors.New("model.path is required"))
	}
	for _, f := range c.Model.AllowedFormats {
		if !audio.Supported(f) {
			errs = append(errs, fmt.Errorf("model.allowed_formats: no decoder for %q", f))
		}
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// LogLevel returns the parsed log level, INFO when unset.
func (c Config) LogLevel() logger.LogLevel {
	lvl, _ := logger.ParseLevel(c.Log.Level)
	return lvl
}

// ServiceOptions translates the config into library options.
func (c Config) ServiceOptions() []voxguard.Option {
	return []voxguard.Option{
		voxguard.WithModelPath(c.Model.Path),
		voxguard.WithRuntimeLibrary(c.Model.RuntimeLibrary),
		voxguard.WithThreshold(c.Model.Threshold),
		voxguard.WithAllowedFormats(c.Model.AllowedFormats...),
		voxguard.WithDBPath(c.Storage.DBPath),
	}
}
