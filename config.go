package hoare

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultTimeout = 10 * time.Second
)

// Config represents the verifier configuration file.
type Config struct {
	// Maximum solver time per obligation.
	Timeout Duration `yaml:"timeout"`

	// Number of functions verified concurrently.
	Workers int `yaml:"workers"`

	// Either "first-failure" or "collect-all".
	Mode Mode `yaml:"mode"`

	// Output options.
	Color    bool `yaml:"color"`
	Progress bool `yaml:"progress"`
}

// NewConfig returns a configuration with default values.
func NewConfig() Config {
	return Config{
		Timeout:  Duration(DefaultTimeout),
		Workers:  runtime.NumCPU(),
		Mode:     ModeFirstFailure,
		Color:    true,
		Progress: false,
	}
}

// ReadConfigFile reads the configuration at path on top of the defaults.
func ReadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	return ReadConfig(f)
}

// ReadConfig decodes a YAML configuration from r on top of the defaults.
// An empty document yields the defaults.
func ReadConfig(r io.Reader) (Config, error) {
	config := NewConfig()
	if err := yaml.NewDecoder(r).Decode(&config); err != nil && err != io.EOF {
		return Config{}, err
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate returns an error if the configuration has invalid values.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeFirstFailure, ModeCollectAll:
	default:
		return fmt.Errorf("invalid mode: %q", c.Mode)
	}
	if c.Workers < 0 {
		return fmt.Errorf("invalid workers: %d", c.Workers)
	} else if c.Timeout < 0 {
		return fmt.Errorf("invalid timeout: %s", time.Duration(c.Timeout))
	}
	return nil
}

// Duration is a time.Duration that is encoded as a string such as "10s".
type Duration time.Duration

// MarshalYAML encodes the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML decodes a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}
