// Command grid-capture records a short camera clip, turns it into a 3x3
// frame grid and delivers it.
//
// Usage:
//
//	grid-capture record --config relief.yaml --output grid.jpg
//	grid-capture serve --config relief.yaml
//	grid-capture version
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/e7canasta/relief-capture/internal/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
	logFormat  string
	cameraSrc  string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "grid-capture",
	Short: "Record a camera clip and compose it into a 3x3 frame grid",
	Long: `grid-capture records a 9 second clip from a camera, extracts 9 frames
spread across the clip and composes them into a single JPEG grid that
documents an emergency scene.

Use "record" for a one-shot capture from the terminal and "serve" to run
the HTTP control API used by the dashboard.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		loaded, err := config.LoadOrDefault(configPath)
		if err != nil {
			return err
		}
		if cameraSrc != "" {
			loaded.Camera.Source = cameraSrc
			if err := config.Validate(loaded); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
		}
		if debug {
			loaded.Log.Level = "debug"
		}
		if cmd.Flags().Changed("log-format") {
			loaded.Log.Format = logFormat
		}

		slog.SetDefault(newLogger(os.Stderr, loaded.Log))
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file (defaults built in)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text, json")
	rootCmd.PersistentFlags().StringVar(&cameraSrc, "source", "", "Override camera source: auto, v4l2, test")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the slog handler selected by the log section.
func newLogger(w io.Writer, lc config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
