// Package config loads the YAML settings used to build and drive a cell.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openfluke/lstmcell/nn"
)

// DeviceEnv overrides the configured device when set.
const DeviceEnv = "LSTMCELL_DEVICE"

var ErrInvalid = errors.New("invalid config")

// Config describes a cell and a demo run.
type Config struct {
	InSize  int    `json:"in_size" yaml:"in_size"`
	OutSize int    `json:"out_size" yaml:"out_size"`
	DType   string `json:"dtype" yaml:"dtype"`   // float32 or float64
	Device  string `json:"device" yaml:"device"` // cpu or gpu
	Seed    int64  `json:"seed" yaml:"seed"`
	Run     Run    `json:"run" yaml:"run"`
}

// Run configures the sequences fed to the cell by the driver.
type Run struct {
	// Lengths of the generated sequences, sorted descending before use.
	Lengths     []int  `json:"lengths" yaml:"lengths"`
	Verbose     bool   `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	ObserverURL string `json:"observer_url,omitempty" yaml:"observer_url,omitempty"`
}

// Default returns a small float32 CPU configuration.
func Default() Config {
	return Config{
		InSize:  5,
		OutSize: 7,
		DType:   "float32",
		Device:  "cpu",
		Seed:    1,
		Run:     Run{Lengths: []int{6, 4, 4, 2, 1}},
	}
}

// Parse decodes YAML on top of the defaults, applies the environment
// override and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if v := os.Getenv(DeviceEnv); v != "" {
		cfg.Device = v
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses a YAML file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Marshal encodes the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("yaml marshal: %w", err)
	}
	return data, nil
}

// Validate checks sizes, names and sequence lengths. Device and dtype
// names are normalized to lower case; an empty device means cpu.
func (c *Config) Validate() error {
	if c.InSize <= 0 || c.OutSize <= 0 {
		return fmt.Errorf("%w: in_size and out_size must be positive, got %d and %d", ErrInvalid, c.InSize, c.OutSize)
	}

	c.DType = strings.ToLower(strings.TrimSpace(c.DType))
	switch c.DType {
	case "float32", "float64":
	default:
		return fmt.Errorf("%w: dtype %q", ErrInvalid, c.DType)
	}

	dev, err := nn.ParseDevice(c.Device)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if dev == nn.DeviceGPU && c.DType != "float32" {
		return fmt.Errorf("%w: gpu requires float32, got %s", ErrInvalid, c.DType)
	}
	c.Device = dev.String()

	for i, n := range c.Run.Lengths {
		if n < 0 {
			return fmt.Errorf("%w: run.lengths[%d] is negative", ErrInvalid, i)
		}
	}
	return nil
}
