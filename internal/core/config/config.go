package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the on-disk pipeline configuration.
type Config struct {
	LogicHz  float64 `yaml:"logic_hz"`
	RenderHz float64 `yaml:"render_hz"`

	BusCapacity    int  `yaml:"bus_capacity"`
	CheckOwnership bool `yaml:"check_ownership"`

	SlotCapacity    int `yaml:"slot_capacity"`
	ErrorBufferSize int `yaml:"error_buffer_size"`
	LoaderWorkers   int `yaml:"loader_workers"`
	LoaderQueue     int `yaml:"loader_queue"`

	ArenaPageSize int `yaml:"arena_page_size"`
	BucketSize    int `yaml:"bucket_size"`

	ClockResolution time.Duration `yaml:"clock_resolution"`

	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Terminal  TerminalConfig  `yaml:"terminal"`
	Audio     AudioConfig     `yaml:"audio"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
	// Output paths for zap; "stderr" when empty.
	Output []string `yaml:"output"`
}

type TelemetryConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Interval time.Duration `yaml:"interval"`
}

type TerminalConfig struct {
	Enabled bool `yaml:"enabled"`
	// CellSize is how many world units one terminal cell covers.
	CellSize float64 `yaml:"cell_size"`
}

type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	// Device plays the mix on the system speaker; otherwise it is only pulled by Stream.
	Device bool `yaml:"device"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogicHz:         30,
		RenderHz:        60,
		BusCapacity:     4096,
		SlotCapacity:    1024,
		ErrorBufferSize: 64,
		LoaderWorkers:   4,
		LoaderQueue:     256,
		ArenaPageSize:   1 << 20,
		BucketSize:      1024,
		ClockResolution: 500 * time.Microsecond,
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
		},
		Telemetry: TelemetryConfig{
			Addr:     "127.0.0.1:7070",
			Interval: 250 * time.Millisecond,
		},
		Terminal: TerminalConfig{
			Enabled:  true,
			CellSize: 1,
		},
		Audio: AudioConfig{
			SampleRate: 44100,
		},
	}
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

func (c Config) Validate() error {
	var errs []error
	if c.LogicHz <= 0 {
		errs = append(errs, fmt.Errorf("logic_hz must be positive, got %v", c.LogicHz))
	}
	if c.RenderHz < 0 {
		errs = append(errs, fmt.Errorf("render_hz must not be negative, got %v", c.RenderHz))
	}
	if c.BusCapacity <= 0 {
		errs = append(errs, fmt.Errorf("bus_capacity must be positive, got %d", c.BusCapacity))
	}
	if c.SlotCapacity <= 0 {
		errs = append(errs, fmt.Errorf("slot_capacity must be positive, got %d", c.SlotCapacity))
	}
	if c.ErrorBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("error_buffer_size must be positive, got %d", c.ErrorBufferSize))
	}
	if c.LoaderWorkers <= 0 {
		errs = append(errs, fmt.Errorf("loader_workers must be positive, got %d", c.LoaderWorkers))
	}
	if c.LoaderQueue < 0 {
		errs = append(errs, fmt.Errorf("loader_queue must not be negative, got %d", c.LoaderQueue))
	}
	if c.ArenaPageSize <= 0 {
		errs = append(errs, fmt.Errorf("arena_page_size must be positive, got %d", c.ArenaPageSize))
	}
	if c.BucketSize <= 0 {
		errs = append(errs, fmt.Errorf("bucket_size must be positive, got %d", c.BucketSize))
	}
	if c.Telemetry.Enabled && c.Telemetry.Interval <= 0 {
		errs = append(errs, fmt.Errorf("telemetry.interval must be positive, got %v", c.Telemetry.Interval))
	}
	if c.Terminal.CellSize <= 0 {
		errs = append(errs, fmt.Errorf("terminal.cell_size must be positive, got %v", c.Terminal.CellSize))
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
