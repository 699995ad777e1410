package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/himanishpuri/VoxGuard/internal/config"
	"github.com/himanishpuri/VoxGuard/pkg/logger"
	"github.com/himanishpuri/VoxGuard/pkg/utils"
	"github.com/himanishpuri/VoxGuard/pkg/voxguard"
	"github.com/himanishpuri/VoxGuard/pkg/voxguard/model"
)

var errNoLedger = errors.New("no prediction ledger configured")

type globalFlags struct {
	configPath string
	modelPath  string
	dbPath     string
	threshold  float64
	formats    []string
	logLevel   string
	jsonOut    bool
}

// app carries the flags and any extra service options into subcommands.
type app struct {
	flags globalFlags
	extra []voxguard.Option
}

func newRootCmd(extra ...voxguard.Option) *cobra.Command {
	a := &app{extra: extra}

	root := &cobra.Command{
		Use:           "voxguard",
		Short:         "Detect AI-generated voices in audio recordings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.flags.configPath, "config", "c", "", "Path to YAML config file")
	pf.StringVar(&a.flags.modelPath, "model", "", "Path to the ONNX model")
	pf.StringVar(&a.flags.dbPath, "db", "", "SQLite prediction ledger (\"off\" disables it)")
	pf.Float64Var(&a.flags.threshold, "threshold", voxguard.DefaultThreshold, "Decision threshold in [0,1]")
	pf.StringSliceVar(&a.flags.formats, "formats", nil, "Accepted extensions, e.g. .flac,.wav")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "debug, info, warn or error")
	pf.BoolVar(&a.flags.jsonOut, "json", false, "Print results as JSON")

	root.AddCommand(
		a.classifyCmd(),
		a.featuresCmd(),
		a.predictionsCmd(),
		a.statsCmd(),
		versionCmd(),
	)
	return root
}

// loadConfig merges file, environment and the flags the user set.
func (a *app) loadConfig(cmd *cobra.Command) (config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return cfg, err
	}

	fs := cmd.Flags()
	if fs.Changed("model") {
		cfg.Model.Path = a.flags.modelPath
	}
	if fs.Changed("db") {
		cfg.Storage.DBPath = a.flags.dbPath
		if a.flags.dbPath == "off" {
			cfg.Storage.DBPath = ""
		}
	}
	if fs.Changed("threshold") {
		cfg.Model.Threshold = a.flags.threshold
	}
	if fs.Changed("formats") {
		cfg.Model.AllowedFormats = a.flags.formats
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = a.flags.logLevel
	}
	return cfg, cfg.Validate()
}

func (a *app) newService(cmd *cobra.Command) (voxguard.Service, config.Config, error) {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return nil, cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.GetLogger()
	log.SetLevel(cfg.LogLevel())
	log.SetColorize(cfg.Log.Color)
	log.SetOutput(cmd.ErrOrStderr())

	opts := append(cfg.ServiceOptions(), voxguard.WithLogger(log))
	svc, err := voxguard.NewService(append(opts, a.extra...)...)
	if err != nil {
		return nil, cfg, fmt.Errorf("failed to create service: %w", err)
	}
	return svc, cfg, nil
}

func (a *app) classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <file>...",
		Short: "Classify audio files as real or AI-generated",
		Long: `Classify audio files as real or AI-generated.

Each file is decoded, reduced to its first three seconds and scored by the
model. A file that fails does not stop the others; the command exits with an
error if any file failed.

Examples:
  voxguard classify sample.flac
  voxguard --formats .flac,.wav --json classify a.flac b.wav`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cfg, err := a.newService(cmd)
			if err != nil {
				return err
			}
			defer model.ShutdownRuntime()
			defer svc.Close()

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				pred, err := classifyFile(cmd.Context(), svc, path, cfg.Server.MaxUploadBytes)
				if err != nil {
					failed++
					if a.flags.jsonOut {
						writeJSON(out, map[string]string{"file": path, "error": err.Error(), "kind": voxguard.Kind(err)})
					} else {
						fmt.Fprintf(out, "%s: error: %v\n", path, err)
					}
					continue
				}
				if a.flags.jsonOut {
					writeJSON(out, pred)
				} else {
					fmt.Fprintf(out, "%s: %s (p=%.4f, frames=%d)\n", path, pred.Display, pred.Probability, pred.Frames)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
}

func classifyFile(ctx context.Context, svc voxguard.Service, path string, limit int64) (*voxguard.Prediction, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := utils.ReadFileLimited(path, limit)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	return svc.Classify(ctx, data, filepath.Base(path))
}

func (a *app) featuresCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "features <file>",
		Short: "Print the MFCC feature matrix of a file as JSON",
		Long: `Print the MFCC feature matrix of a file as JSON.

The output has the same shape as the body accepted by
POST /api/predict/features, so it can be replayed against a server.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cfg, err := a.newService(cmd)
			if err != nil {
				return err
			}
			defer model.ShutdownRuntime()
			defer svc.Close()

			data, err := utils.ReadFileLimited(args[0], cfg.Server.MaxUploadBytes)
			if err != nil {
				return err
			}
			m, err := svc.Extract(cmd.Context(), data, filepath.Base(args[0]))
			if err != nil {
				return err
			}

			body := struct {
				Rows     int       `json:"rows"`
				Cols     int       `json:"cols"`
				Computed int       `json:"computed"`
				Filename string    `json:"filename"`
				Data     []float32 `json:"data"`
			}{m.Rows, m.Cols, m.Computed, filepath.Base(args[0]), m.Data}

			if output == "" {
				return writeJSON(cmd.OutOrStdout(), body)
			}
			raw, err := json.Marshal(body)
			if err != nil {
				return err
			}
			if err := utils.WriteFile(output, raw); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %dx%d matrix to %s (%s)\n",
				m.Rows, m.Cols, output, humanize.Bytes(uint64(len(raw))))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write JSON to this file instead of stdout")
	return cmd
}

func (a *app) predictionsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "predictions",
		Short: "List recent predictions from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cfg, err := a.newService(cmd)
			if err != nil {
				return err
			}
			defer model.ShutdownRuntime()
			defer svc.Close()
			if cfg.Storage.DBPath == "" {
				return errNoLedger
			}

			recs, err := svc.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.flags.jsonOut {
				return writeJSON(out, recs)
			}
			if len(recs) == 0 {
				fmt.Fprintln(out, "No predictions recorded")
				return nil
			}
			for i, r := range recs {
				fmt.Fprintf(out, "%d. %s  %-8s p=%.4f  %s (%s)\n", i+1, r.ID, r.Label, r.Probability,
					r.Filename, humanize.Time(r.CreatedAt))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of predictions to show")
	return cmd
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise the prediction ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cfg, err := a.newService(cmd)
			if err != nil {
				return err
			}
			defer model.ShutdownRuntime()
			defer svc.Close()
			if cfg.Storage.DBPath == "" {
				return errNoLedger
			}

			st, err := svc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.flags.jsonOut {
				return writeJSON(out, st)
			}
			fmt.Fprintf(out, "Total:     %s\n", humanize.Comma(st.Total))
			fmt.Fprintf(out, "Real:      %s\n", humanize.Comma(st.Real))
			fmt.Fprintf(out, "DeepFake:  %s\n", humanize.Comma(st.DeepFake))
			fmt.Fprintf(out, "Avg p:     %.4f\n", st.AvgProbability)
			if st.Last != nil {
				fmt.Fprintf(out, "Last:      %s\n", humanize.Time(*st.Last))
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "voxguard %s\n", version)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
