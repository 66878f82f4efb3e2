package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/e7canasta/relief-capture/delivery"
	"github.com/e7canasta/relief-capture/framegrid"
	"github.com/e7canasta/relief-capture/internal/config"
	"github.com/e7canasta/relief-capture/internal/statebus"
	"github.com/stretchr/testify/assert"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, config.LogConfig{Level: "warn", Format: "json"})

	log.Info("grid-capture: hidden")
	log.Warn("grid-capture: shown", "attempt_id", "a1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "grid-capture: shown", line["msg"])
	assert.Equal(t, "a1", line["attempt_id"])

	buf.Reset()
	newLogger(&buf, config.LogConfig{Level: "debug"}).Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")
}

func TestBuildSinks(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, config.Validate(cfg))

	sink, err := buildSinks(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, sink, "no sinks configured")

	cfg.Delivery.File.Dir = filepath.Join(t.TempDir(), "grids")
	cfg.Delivery.Backend.URL = "http://127.0.0.1:1/requests"
	require.NoError(t, config.Validate(cfg))

	sink, err = buildSinks(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, sink)
	defer sink.Close()

	m, ok := sink.(*delivery.Multi)
	require.True(t, ok)
	var names []string
	for _, s := range m.Sinks() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"file", "backend"}, names)

	_, err = os.Stat(cfg.Delivery.File.Dir)
	assert.NoError(t, err, "file sink creates its directory")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "grid-capture "+version)
}

func TestFollow_ReportsConfiguredFrameCount(t *testing.T) {
	bus := statebus.New[framegrid.Snapshot]()
	updates, err := bus.SubscribeLatest("cli")
	require.NoError(t, err)

	bus.Publish(framegrid.Snapshot{Phase: framegrid.PhaseProcessing, FramesDone: 3, FramesTotal: 4})
	bus.Close()

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetErr(&out)

	_, err = follow(context.Background(), cmd, updates)
	assert.ErrorIs(t, err, statebus.ErrReceiverClosed)
	assert.Contains(t, out.String(), "Processing frames 3/4")
}
