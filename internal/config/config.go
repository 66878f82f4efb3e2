package config

import (
	"fmt"
	"os"
	"time"

	"github.com/e7canasta/relief-capture/capture"
	"github.com/e7canasta/relief-capture/extract"
	"gopkg.in/yaml.v3"
)

// Config represents the complete relief-capture configuration
type Config struct {
	InstanceID       string           `yaml:"instance_id"`
	ShutdownTimeoutS int              `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Log              LogConfig        `yaml:"log"`
	Camera           CameraConfig     `yaml:"camera"`
	Recording        RecordingConfig  `yaml:"recording"`
	Extraction       ExtractionConfig `yaml:"extraction"`
	HTTP             HTTPConfig       `yaml:"http"`
	Delivery         DeliveryConfig   `yaml:"delivery"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// CameraConfig contains camera settings
type CameraConfig struct {
	Source        string            `yaml:"source"`         // auto, v4l2, test
	Device        string            `yaml:"device"`         // /dev/video0 (v4l2 only)
	FacingDevices map[string]string `yaml:"facing_devices"` // facing -> v4l2 device, overrides device
	Resolution    string            `yaml:"resolution"`     // 480p, 720p, 1080p
	Facing        string            `yaml:"facing"`         // user, environment
	PreviewFPS    float64           `yaml:"preview_fps"`    // 0 disables live preview
}

// RecordingConfig contains recording timing. Durations use time.ParseDuration syntax.
type RecordingConfig struct {
	Window          string   `yaml:"window"`
	Tick            string   `yaml:"tick"`
	Timeslice       string   `yaml:"timeslice"`
	AcquireTimeout  string   `yaml:"acquire_timeout"`
	StopTimeout     string   `yaml:"stop_timeout"`
	MimePreferences []string `yaml:"mime_preferences"`
}

// ExtractionConfig contains frame grid settings
type ExtractionConfig struct {
	Frames                 int     `yaml:"frames"` // cells filled left to right, three per row
	CellSize               int     `yaml:"cell_size"`
	JPEGQuality            int     `yaml:"jpeg_quality"`
	Background             string  `yaml:"background"` // #rrggbb
	SeekTimeout            string  `yaml:"seek_timeout"`
	SettlePause            string  `yaml:"settle_pause"`
	DurationAttempts       int     `yaml:"duration_attempts"`
	DurationAttemptTimeout string  `yaml:"duration_attempt_timeout"`
	DurationRetryDelay     string  `yaml:"duration_retry_delay"`
	FallbackDurationS      float64 `yaml:"fallback_duration_s"`
	TempDir                string  `yaml:"temp_dir"` // clip spool directory ("" = OS default)
}

// HTTPConfig contains the control API settings
type HTTPConfig struct {
	Listen string `yaml:"listen"` // "" disables the HTTP server
}

// DeliveryConfig contains result sinks. Every sink is optional.
type DeliveryConfig struct {
	File    FileSinkConfig    `yaml:"file"`
	MQTT    MQTTSinkConfig    `yaml:"mqtt"`
	Backend BackendSinkConfig `yaml:"backend"`
}

// FileSinkConfig writes confirmed grids to a directory
type FileSinkConfig struct {
	Dir string `yaml:"dir"`
}

// MQTTSinkConfig publishes confirmed grids to a broker
type MQTTSinkConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// BackendSinkConfig posts confirmed grids to the emergency request backend
type BackendSinkConfig struct {
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Timeout string `yaml:"timeout"`
	Retries int    `yaml:"retries"`
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	return &Config{
		InstanceID:       "relief-capture",
		ShutdownTimeoutS: 5,
		Log:              LogConfig{Level: "info", Format: "text"},
		Camera: CameraConfig{
			Source:     "auto",
			Resolution: "720p",
			Facing:     string(capture.FacingUser),
			PreviewFPS: 5,
		},
		Recording: RecordingConfig{
			Window:          "9s",
			Tick:            "1s",
			Timeslice:       "1s",
			AcquireTimeout:  "10s",
			StopTimeout:     "3s",
			MimePreferences: capture.DefaultMimePreferences(),
		},
		Extraction: ExtractionConfig{
			Frames:                 9,
			CellSize:               200,
			JPEGQuality:            92,
			Background:             "#111827",
			SeekTimeout:            "5s",
			SettlePause:            "200ms",
			DurationAttempts:       5,
			DurationAttemptTimeout: "3s",
			DurationRetryDelay:     "500ms",
			FallbackDurationS:      9.0,
		},
		HTTP: HTTPConfig{Listen: ":8090"},
		Delivery: DeliveryConfig{
			Backend: BackendSinkConfig{Timeout: "10s", Retries: 5},
		},
	}
}

// Load reads and parses a YAML configuration file. Keys missing from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, or returns validated defaults when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(path)
}

// RecordingSettings converts the recording section. Call after Validate.
func (c *Config) RecordingSettings() capture.RecordingConfig {
	res, _ := capture.ParseResolution(c.Camera.Resolution)
	w, h := res.Dimensions()

	rc := capture.DefaultRecordingConfig()
	rc.Window = durationOr(c.Recording.Window, rc.Window)
	rc.Tick = durationOr(c.Recording.Tick, rc.Tick)
	rc.Timeslice = durationOr(c.Recording.Timeslice, rc.Timeslice)
	rc.AcquireTimeout = durationOr(c.Recording.AcquireTimeout, rc.AcquireTimeout)
	rc.StopTimeout = durationOr(c.Recording.StopTimeout, rc.StopTimeout)
	if len(c.Recording.MimePreferences) > 0 {
		rc.MimePreferences = append([]string(nil), c.Recording.MimePreferences...)
	}
	rc.Constraints = capture.Constraints{
		Width:  w,
		Height: h,
		Facing: capture.FacingMode(c.Camera.Facing),
	}
	return rc
}

// ExtractionSettings converts the extraction section. Call after Validate.
func (c *Config) ExtractionSettings() extract.Config {
	ec := extract.DefaultConfig()
	ec.Frames = c.Extraction.Frames
	ec.CellSize = c.Extraction.CellSize
	ec.JPEGQuality = c.Extraction.JPEGQuality
	if bg, err := parseHexColor(c.Extraction.Background); err == nil {
		ec.Background = bg
	}
	ec.SeekTimeout = durationOr(c.Extraction.SeekTimeout, ec.SeekTimeout)
	ec.SettleDelay = durationOr(c.Extraction.SettlePause, ec.SettleDelay)
	ec.DurationAttempts = c.Extraction.DurationAttempts
	ec.DurationTimeout = durationOr(c.Extraction.DurationAttemptTimeout, ec.DurationTimeout)
	ec.DurationRetryDelay = durationOr(c.Extraction.DurationRetryDelay, ec.DurationRetryDelay)
	ec.FallbackDuration = c.Extraction.FallbackDurationS
	return ec
}

// BackendTimeout returns the parsed backend request timeout.
func (c *Config) BackendTimeout() time.Duration {
	return durationOr(c.Delivery.Backend.Timeout, 10*time.Second)
}

// FacingDevices returns the camera facing map keyed by capture.FacingMode.
func (c *Config) FacingDevices() map[capture.FacingMode]string {
	if len(c.Camera.FacingDevices) == 0 {
		return nil
	}
	m := make(map[capture.FacingMode]string, len(c.Camera.FacingDevices))
	for facing, dev := range c.Camera.FacingDevices {
		m[capture.FacingMode(facing)] = dev
	}
	return m
}

// ShutdownTimeout returns the graceful shutdown bound.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
