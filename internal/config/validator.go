package config

import (
	"fmt"
	"image/color"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/e7canasta/relief-capture/capture"
)

var (
	instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)
	hexColorPattern   = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

// Validate checks if the configuration is valid and fills derived defaults
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}
	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}

	if err := validateCamera(&cfg.Camera); err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	if err := validateRecording(cfg.Recording); err != nil {
		return fmt.Errorf("recording: %w", err)
	}
	if err := cfg.RecordingSettings().Validate(); err != nil {
		return fmt.Errorf("recording: %w", err)
	}
	if err := validateExtraction(cfg.Extraction); err != nil {
		return fmt.Errorf("extraction: %w", err)
	}
	if err := cfg.ExtractionSettings().Validate(); err != nil {
		return fmt.Errorf("extraction: %w", err)
	}
	if err := validateDelivery(cfg); err != nil {
		return fmt.Errorf("delivery: %w", err)
	}

	return nil
}

func validateCamera(c *CameraConfig) error {
	switch c.Source {
	case "", "auto", "test":
	case "v4l2":
		if c.Device == "" && len(c.FacingDevices) == 0 {
			return fmt.Errorf("device or facing_devices is required for v4l2 source")
		}
	default:
		return fmt.Errorf("source must be auto, v4l2 or test, got %q", c.Source)
	}

	if _, err := capture.ParseResolution(c.Resolution); err != nil {
		return err
	}

	switch capture.FacingMode(c.Facing) {
	case "":
		c.Facing = string(capture.FacingUser)
	case capture.FacingUser, capture.FacingEnvironment:
	default:
		return fmt.Errorf("facing must be user or environment, got %q", c.Facing)
	}

	for facing, dev := range c.FacingDevices {
		switch capture.FacingMode(facing) {
		case capture.FacingUser, capture.FacingEnvironment:
		default:
			return fmt.Errorf("facing_devices: unknown facing %q", facing)
		}
		if dev == "" {
			return fmt.Errorf("facing_devices: empty device for %q", facing)
		}
	}

	if c.PreviewFPS < 0 || c.PreviewFPS > 30 {
		return fmt.Errorf("preview_fps must be 0-30, got %.2f", c.PreviewFPS)
	}
	return nil
}

func validateRecording(r RecordingConfig) error {
	for name, v := range map[string]string{
		"window":          r.Window,
		"tick":            r.Tick,
		"timeslice":       r.Timeslice,
		"acquire_timeout": r.AcquireTimeout,
		"stop_timeout":    r.StopTimeout,
	} {
		if err := checkDuration(name, v); err != nil {
			return err
		}
	}

	for _, mime := range r.MimePreferences {
		if mime == "" {
			return fmt.Errorf("mime_preferences must not contain empty entries")
		}
	}
	return nil
}

func validateExtraction(e ExtractionConfig) error {
	for name, v := range map[string]string{
		"seek_timeout":             e.SeekTimeout,
		"settle_pause":             e.SettlePause,
		"duration_attempt_timeout": e.DurationAttemptTimeout,
		"duration_retry_delay":     e.DurationRetryDelay,
	} {
		if err := checkDuration(name, v); err != nil {
			return err
		}
	}

	if _, err := parseHexColor(e.Background); err != nil {
		return err
	}
	return nil
}

func validateDelivery(cfg *Config) error {
	d := &cfg.Delivery

	if d.MQTT.Broker != "" {
		if d.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
		if d.MQTT.Topic == "" {
			d.MQTT.Topic = fmt.Sprintf("relief/captures/%s", cfg.InstanceID)
		}
		if d.MQTT.ClientID == "" {
			d.MQTT.ClientID = fmt.Sprintf("relief-capture-%s", cfg.InstanceID)
		}
	}

	if d.Backend.URL != "" {
		u, err := url.Parse(d.Backend.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("backend.url must be an absolute http(s) URL, got %q", d.Backend.URL)
		}
		if err := checkDuration("backend.timeout", d.Backend.Timeout); err != nil {
			return err
		}
		if d.Backend.Retries < 1 {
			d.Backend.Retries = 1
		}
	}
	return nil
}

func checkDuration(name, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative", name)
	}
	return nil
}

// parseHexColor parses "#rrggbb" into an opaque colour.
func parseHexColor(s string) (color.RGBA, error) {
	if !hexColorPattern.MatchString(s) {
		return color.RGBA{}, fmt.Errorf("background must be #rrggbb, got %q", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("background: %w", err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
