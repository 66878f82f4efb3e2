package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/e7canasta/relief-capture/extract"
	"github.com/e7canasta/relief-capture/framegrid"
	"github.com/e7canasta/relief-capture/internal/statebus"
	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"
)

var (
	outputPath   string
	printDataURL bool
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record one clip, compose the grid and accept it",
	Long: `record runs a single capture in the terminal: it opens the camera,
counts down the recording window, extracts the frames and writes the
resulting grid. The grid is accepted automatically, so configured delivery
sinks receive it too.`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVarP(&outputPath, "output", "o", "grid.jpg", "Where to write the grid JPEG (empty to skip)")
	recordCmd.Flags().BoolVar(&printDataURL, "data-url", false, "Print the data URL to stdout")
}

func runRecord(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var image string
	component, err := framegrid.New(a.options(
		func(dataURL string) { image = dataURL },
		func() {},
	))
	if err != nil {
		return err
	}
	defer component.Close()

	updates, err := component.Subscribe("cli")
	if err != nil {
		return err
	}
	if err := component.Start(); err != nil {
		return err
	}

	final, err := follow(ctx, cmd, updates)
	if err != nil {
		return err
	}
	if final.Phase == framegrid.PhaseFailed {
		return errors.New(final.Error)
	}

	if err := component.Accept(ctx); err != nil {
		return err
	}

	if outputPath != "" {
		data, err := extract.DecodeDataURL(image)
		if err != nil {
			return err
		}
		if err := renameio.WriteFile(outputPath, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", outputPath, err)
		}
		slog.Info("grid-capture: grid written", "path", outputPath, "bytes", len(data))
	}
	if printDataURL {
		fmt.Fprintln(cmd.OutOrStdout(), image)
	}
	return nil
}

// follow prints progress until the component reaches a terminal phase.
func follow(ctx context.Context, cmd *cobra.Command, updates *statebus.Latest[framegrid.Snapshot]) (framegrid.Snapshot, error) {
	out := cmd.ErrOrStderr()
	lastCountdown := -1

	for {
		s, err := updates.Receive(ctx)
		if err != nil {
			return framegrid.Snapshot{}, err
		}

		switch s.Phase {
		case framegrid.PhaseAcquiring:
			fmt.Fprintln(out, "Opening camera...")
		case framegrid.PhaseRecording:
			if s.Countdown != lastCountdown {
				fmt.Fprintf(out, "Recording... %ds\n", s.Countdown)
				lastCountdown = s.Countdown
			}
		case framegrid.PhaseProcessing:
			fmt.Fprintf(out, "Processing frames %d/%d\n", s.FramesDone, s.FramesTotal)
		case framegrid.PhaseReady, framegrid.PhaseFailed, framegrid.PhaseClosed:
			return s, nil
		}
	}
}
