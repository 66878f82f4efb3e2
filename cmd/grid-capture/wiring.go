package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/e7canasta/relief-capture/capture"
	"github.com/e7canasta/relief-capture/delivery"
	"github.com/e7canasta/relief-capture/extract"
	"github.com/e7canasta/relief-capture/framegrid"
	"github.com/e7canasta/relief-capture/internal/config"
	"github.com/e7canasta/relief-capture/internal/retry"
	"github.com/e7canasta/relief-capture/preview"
)

// app holds the long-lived collaborators shared by every capture.
type app struct {
	cfg     *config.Config
	preview *preview.Supplier
	camera  capture.Camera
	decoder extract.Decoder
	sink    delivery.Sink // nil when no sink is configured
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	if cfg.Camera.PreviewFPS > 0 {
		a.preview = preview.New()
	}

	cam, err := capture.NewGstCamera(capture.GstConfig{
		Source:        cfg.Camera.Source,
		Device:        cfg.Camera.Device,
		FacingDevices: cfg.FacingDevices(),
		PreviewFPS:    cfg.Camera.PreviewFPS,
		Preview:       a.preview,
	})
	if err != nil {
		return nil, err
	}
	a.camera = cam
	a.decoder = extract.NewGstDecoder(cfg.Extraction.TempDir)

	sink, err := buildSinks(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.sink = sink

	return a, nil
}

// options returns component options wired to the shared collaborators.
func (a *app) options(onImageReady func(string), onClose func()) framegrid.Options {
	return framegrid.Options{
		InstanceID:   a.cfg.InstanceID,
		Camera:       a.camera,
		Decoder:      a.decoder,
		Recording:    a.cfg.RecordingSettings(),
		Extraction:   a.cfg.ExtractionSettings(),
		Sink:         a.sink,
		OnImageReady: onImageReady,
		OnClose:      onClose,
	}
}

func (a *app) Close() {
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			slog.Warn("grid-capture: closing sinks", "error", err)
		}
	}
	if a.preview != nil {
		a.preview.Stop()
	}
}

// buildSinks wires every configured delivery sink. Returns nil when none is.
func buildSinks(ctx context.Context, cfg *config.Config) (delivery.Sink, error) {
	var sinks []delivery.Sink
	d := cfg.Delivery

	if d.File.Dir != "" {
		fs, err := delivery.NewFileSink(d.File.Dir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fs)
	}

	if d.MQTT.Broker != "" {
		ms, err := delivery.NewMQTTSink(delivery.MQTTConfig{
			Broker:   d.MQTT.Broker,
			ClientID: d.MQTT.ClientID,
			Topic:    d.MQTT.Topic,
			QoS:      d.MQTT.QoS,
		})
		if err != nil {
			return nil, err
		}
		if err := ms.Connect(ctx); err != nil {
			// Auto-reconnect keeps trying; deliveries fail until it succeeds.
			slog.Warn("grid-capture: mqtt not reachable at startup", "broker", d.MQTT.Broker, "error", err)
		}
		sinks = append(sinks, ms)
	}

	if d.Backend.URL != "" {
		rc := retry.DefaultBackoff()
		rc.MaxAttempts = d.Backend.Retries
		bs, err := delivery.NewBackendSink(delivery.BackendConfig{
			URL:     d.Backend.URL,
			Token:   d.Backend.Token,
			Timeout: cfg.BackendTimeout(),
			Retry:   rc,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, bs)
	}

	m, err := delivery.NewMulti(sinks...)
	if errors.Is(err, delivery.ErrNoSinks) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("grid-capture: %w", err)
	}

	names := make([]string, 0, len(m.Sinks()))
	for _, s := range m.Sinks() {
		names = append(names, s.Name())
	}
	slog.Info("grid-capture: delivery sinks ready", "sinks", names)
	return m, nil
}
