package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the joybridge daemon.
//
// Precedence, lowest first: DefaultConfig, config file, JOYBRIDGE_* environment
// (optionally loaded from a .env file), command-line flags. Validate runs last so
// the rest of the code can assume a well-formed config.
type Config struct {
	// Joystick session (axis mapping and scale factors)
	Device DeviceConfig `yaml:"device"`

	// Host scheduler cadence and error policy
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// WebSocket sample stream
	WebSocket WebSocketConfig `yaml:"websocket"`

	// IPC configuration (state queries from joyctl)
	IPC IPCConfig `yaml:"ipc"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Debug endpoints
	Debug DebugConfig `yaml:"debug"`
}

type DeviceConfig struct {
	Path   string  `yaml:"path"`
	XAxis  int     `yaml:"x_axis"`
	YAxis  int     `yaml:"y_axis"`
	ScaleV float64 `yaml:"scale_v"` // Y position -> linear velocity (m/s)
	ScaleA float64 `yaml:"scale_a"` // X position -> angular velocity (rad/s)
}

type SchedulerConfig struct {
	RateHz int `yaml:"rate_hz"`

	// Stop after this many consecutive failed cycles; 0 keeps cycling forever.
	MaxConsecutiveErrors int `yaml:"max_consecutive_errors"`
}

type WebSocketConfig struct {
	Listen       string `yaml:"listen"` // empty disables the HTTP listener
	Path         string `yaml:"path"`
	SendBuf      int    `yaml:"send_buf"`
	BroadcastBuf int    `yaml:"broadcast_buf"`

	// When set, subscribers must present an HS256 token signed with this secret.
	TokenSecretFile string `yaml:"token_secret_file,omitempty"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"` // empty disables IPC
	TimeoutMS  int    `yaml:"timeout_ms"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`

	// Optional rotated log file. Logs go to stdout when empty.
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`

	// Log every published sample at debug level.
	TraceSamples bool `yaml:"trace_samples,omitempty"`
}

type DebugConfig struct {
	// Runtime charts address (host:port). Needs a build with -tags statsview.
	StatsViewAddr string `yaml:"statsview_addr,omitempty"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Device: DeviceConfig{
			Path:   defaultDevicePath,
			XAxis:  defaultXAxis,
			YAxis:  defaultYAxis,
			ScaleV: defaultScaleV,
			ScaleA: defaultScaleA,
		},
		Scheduler: SchedulerConfig{
			RateHz:               defaultRateHz,
			MaxConsecutiveErrors: 0,
		},
		WebSocket: WebSocketConfig{
			Listen:       defaultWSListen,
			Path:         defaultWSPath,
			SendBuf:      defaultWSSendBuf,
			BroadcastBuf: defaultWSBcastBuf,
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocket,
			TimeoutMS:  defaultIPCTimeoutMS,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage (only whitespace/comments are allowed after the document).
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, errors.New("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process
// environment. A missing file is not an error. Variables already set win.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(ExpandPath(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Environment variables read by ApplyEnvOverrides.
const (
	envDevice      = "JOYBRIDGE_DEVICE"
	envXAxis       = "JOYBRIDGE_X_AXIS"
	envYAxis       = "JOYBRIDGE_Y_AXIS"
	envScaleV      = "JOYBRIDGE_SCALE_V"
	envScaleA      = "JOYBRIDGE_SCALE_A"
	envRateHz      = "JOYBRIDGE_RATE_HZ"
	envWSListen    = "JOYBRIDGE_WS_LISTEN"
	envIPCSocket   = "JOYBRIDGE_IPC_SOCKET"
	envLogLevel    = "JOYBRIDGE_LOG_LEVEL"
	envTokenSecret = "JOYBRIDGE_TOKEN_SECRET_FILE"
)

// ApplyEnvOverrides applies JOYBRIDGE_* environment overrides on top of cfg.
// getenv is os.Getenv in production. Malformed numbers are reported, not ignored.
func ApplyEnvOverrides(cfg *Config, getenv func(string) string) error {
	if cfg == nil {
		return nil
	}
	if getenv == nil {
		getenv = os.Getenv
	}

	if v := getenv(envDevice); v != "" {
		cfg.Device.Path = v
	}
	if v := getenv(envXAxis); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envXAxis, err)
		}
		cfg.Device.XAxis = n
	}
	if v := getenv(envYAxis); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envYAxis, err)
		}
		cfg.Device.YAxis = n
	}
	if v := getenv(envScaleV); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", envScaleV, err)
		}
		cfg.Device.ScaleV = f
	}
	if v := getenv(envScaleA); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", envScaleA, err)
		}
		cfg.Device.ScaleA = f
	}
	if v := getenv(envRateHz); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envRateHz, err)
		}
		cfg.Scheduler.RateHz = n
	}
	if v := getenv(envWSListen); v != "" {
		cfg.WebSocket.Listen = v
	}
	if v := getenv(envIPCSocket); v != "" {
		cfg.IPC.SocketPath = v
	}
	if v := getenv(envLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := getenv(envTokenSecret); v != "" {
		cfg.WebSocket.TokenSecretFile = v
	}
	return nil
}

// FlagOverrides carries command-line overrides applied on top of a loaded config.
//
// Flags should pass pointers; each override is only applied if the pointer is non-nil.
// main.go decides which flags exist and leaves unset flags nil.
type FlagOverrides struct {
	Device *string
	XAxis  *int
	YAxis  *int
	ScaleV *float64
	ScaleA *float64

	RateHz *int

	WSListen  *string
	IPCSocket *string

	LogLevel *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is ignored.
// If the pointer is non-nil, the value is applied (even if it is a "zero value").
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Device != nil {
		cfg.Device.Path = *o.Device
	}
	if o.XAxis != nil {
		cfg.Device.XAxis = *o.XAxis
	}
	if o.YAxis != nil {
		cfg.Device.YAxis = *o.YAxis
	}
	if o.ScaleV != nil {
		cfg.Device.ScaleV = *o.ScaleV
	}
	if o.ScaleA != nil {
		cfg.Device.ScaleA = *o.ScaleA
	}
	if o.RateHz != nil {
		cfg.Scheduler.RateHz = *o.RateHz
	}
	if o.WSListen != nil {
		cfg.WebSocket.Listen = *o.WSListen
	}
	if o.IPCSocket != nil {
		cfg.IPC.SocketPath = *o.IPCSocket
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + env + overrides are applied.
func (c *Config) Validate() error {
	// Device
	if c.Device.Path == "" {
		return errors.New("device.path must not be empty")
	}
	if c.Device.XAxis < 0 {
		return errors.New("device.x_axis must be >= 0")
	}
	if c.Device.YAxis < 0 {
		return errors.New("device.y_axis must be >= 0")
	}
	if !isFinite(c.Device.ScaleV) {
		return errors.New("device.scale_v must be a finite number")
	}
	if !isFinite(c.Device.ScaleA) {
		return errors.New("device.scale_a must be a finite number")
	}

	// Scheduler
	if c.Scheduler.RateHz <= 0 || c.Scheduler.RateHz > maxRateHz {
		return fmt.Errorf("scheduler.rate_hz must be between 1 and %d", maxRateHz)
	}
	if c.Scheduler.MaxConsecutiveErrors < 0 {
		return errors.New("scheduler.max_consecutive_errors must be >= 0")
	}

	// WebSocket
	if c.WebSocket.Listen != "" {
		if c.WebSocket.Path == "" || c.WebSocket.Path[0] != '/' {
			return errors.New("websocket.path must start with '/'")
		}
	}
	if c.WebSocket.SendBuf < 0 {
		return errors.New("websocket.send_buf must be >= 0")
	}
	if c.WebSocket.BroadcastBuf < 0 {
		return errors.New("websocket.broadcast_buf must be >= 0")
	}

	// IPC
	if c.IPC.SocketPath != "" && c.IPC.TimeoutMS <= 0 {
		return errors.New("ipc.timeout_ms must be > 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.File != "" && c.Logging.MaxSizeMB <= 0 {
		return errors.New("logging.max_size_mb must be > 0 when logging.file is set")
	}

	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ToSessionConfig converts the file config into the engine's session config.
func (c *Config) ToSessionConfig() SessionConfig {
	return SessionConfig{
		DevicePath: ExpandPath(c.Device.Path),
		XAxis:      c.Device.XAxis,
		YAxis:      c.Device.YAxis,
		ScaleV:     c.Device.ScaleV,
		ScaleA:     c.Device.ScaleA,
	}
}

// IPCTimeout returns the IPC reply timeout as a duration.
func (c *Config) IPCTimeout() time.Duration {
	return time.Duration(c.IPC.TimeoutMS) * time.Millisecond
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
