//go:build !js && !wasm
// +build !js,!wasm

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/himanishpuri/VoxGuard/internal/config"
	"github.com/himanishpuri/VoxGuard/pkg/logger"
	"github.com/himanishpuri/VoxGuard/pkg/voxguard"
	"github.com/himanishpuri/VoxGuard/pkg/voxguard/history"
	"github.com/himanishpuri/VoxGuard/pkg/voxguard/model"
)

var (
	configPath     string
	port           int
	modelPath      string
	dbPath         string
	threshold      float64
	allowedOrigins string
	formats        string
	logLevel       string
)

func init() {
	flag.StringVar(&configPath, "config", os.Getenv("VOXGUARD_CONFIG"), "Path to YAML config file")
	flag.IntVar(&port, "port", 0, "HTTP server port")
	flag.StringVar(&modelPath, "model", "", "Path to the ONNX model")
	flag.StringVar(&dbPath, "db", "", "Path to SQLite prediction ledger (\"off\" disables it)")
	flag.Float64Var(&threshold, "threshold", -1, "Decision threshold in [0,1]")
	flag.StringVar(&allowedOrigins, "origins", "", "Comma-separated list of allowed CORS origins (use * for all)")
	flag.StringVar(&formats, "formats", "", "Comma-separated accepted extensions, e.g. .flac,.wav")
	flag.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
}

// applyFlags overrides cfg with flags the user actually set.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = port
		case "model":
			cfg.Model.Path = modelPath
		case "db":
			cfg.Storage.DBPath = dbPath
			if dbPath == "off" {
				cfg.Storage.DBPath = ""
			}
		case "threshold":
			cfg.Model.Threshold = threshold
		case "origins":
			cfg.Server.AllowedOrigins = config.SplitList(allowedOrigins)
		case "formats":
			cfg.Model.AllowedFormats = config.SplitList(formats)
		case "log-level":
			cfg.Log.Level = logLevel
		}
	})
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		logger.GetLogger().Error("Server failed: %v", err)
		os.Exit(1)
	}
}

// run owns every resource so its deferred cleanup happens before main exits.
func run() error {
	log := logger.GetLogger()

	// Load configuration: defaults, YAML, environment, then flags
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.SetLevel(cfg.LogLevel())
	log.SetColorize(cfg.Log.Color)
	log.Infof("Log level: %s", log.Level())

	// Create VoxGuard service
	service, err := voxguard.NewService(append(cfg.ServiceOptions(), voxguard.WithLogger(log))...)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer model.ShutdownRuntime()
	defer service.Close()

	// Create server configuration
	serverCfg := &ServerConfig{
		Port:           cfg.Server.Port,
		DBPath:         cfg.Storage.DBPath,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedFormats: cfg.Model.AllowedFormats,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RequestTimeout: cfg.Server.RequestTimeout,
		SweepInterval:  cfg.History.SweepInterval,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create and start server
	server := NewServer(service, history.NewManager(cfg.History.TTL), serverCfg, log)
	return server.Start(ctx)
}
