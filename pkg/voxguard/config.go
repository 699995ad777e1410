package voxguard

import (
	"github.com/himanishpuri/VoxGuard/pkg/voxguard/audio"
	"github.com/himanishpuri/VoxGuard/pkg/voxguard/features"
	"github.com/himanishpuri/VoxGuard/pkg/voxguard/model"
)

const (
	DefaultModelPath = "model/cnn_40_optimized.onnx"
	DefaultThreshold = 0.5
)

type Config struct {
	ModelPath      string
	RuntimeLibrary string
	Threshold      float64
	AllowedFormats []string
	DBPath         string
	Features       features.Config
	Logger         Logger
	Ledger         Ledger
	Loader         model.LoaderFunc
}

type Option func(*Config)

func WithModelPath(path string) Option {
	return func(c *Config) {
		c.ModelPath = path
	}
}

// WithRuntimeLibrary points at the onnxruntime shared library.
func WithRuntimeLibrary(path string) Option {
	return func(c *Config) {
		c.RuntimeLibrary = path
	}
}

func WithThreshold(t float64) Option {
	return func(c *Config) {
		c.Threshold = t
	}
}

func WithAllowedFormats(exts ...string) Option {
	return func(c *Config) {
		c.AllowedFormats = exts
	}
}

// WithDBPath enables the SQLite prediction ledger at path.
func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithFeatureConfig(fc features.Config) Option {
	return func(c *Config) {
		c.Features = fc
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithLedger(l Ledger) Option {
	return func(c *Config) {
		c.Ledger = l
	}
}

// WithLoader replaces the ONNX loader, e.g. with an in-process classifier.
func WithLoader(fn model.LoaderFunc) Option {
	return func(c *Config) {
		c.Loader = fn
	}
}

func defaultConfig() *Config {
	return &Config{
		ModelPath:      DefaultModelPath,
		Threshold:      DefaultThreshold,
		AllowedFormats: audio.DefaultFormats,
		Features:       features.DefaultConfig(),
	}
}
