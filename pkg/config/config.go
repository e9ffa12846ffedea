package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Scanner  ScannerConfig  `yaml:"scanner"`
	Exposure ExposureConfig `yaml:"exposure"`
}

// SerialConfig contains serial port configuration for the scanhead bridge.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// ScannerConfig contains the physical parameters of the scanhead. All timing
// constants used by the synchronization engine are derived from these once,
// see ResolveTiming.
type ScannerConfig struct {
	CrystalHz     float64 `yaml:"crystal_hz"`     // oscillator frequency driving the core (Hz)
	RPM           float64 `yaml:"rpm"`            // prism rotation speed
	Facets        int     `yaml:"facets"`         // reflective faces on the prism
	LaserHz       float64 `yaml:"laser_hz"`       // laser modulation frequency (Hz)
	SpinupSeconds float64 `yaml:"spinup_seconds"` // time to wait for the prism motor to reach speed
	StableSeconds float64 `yaml:"stable_seconds"` // watchdog window for the first photodiode edge
	StartFraction float64 `yaml:"start_fraction"` // fraction of the facet sweep blanked before data
	ScanlineBits  int     `yaml:"scanline_bits"`  // laser on/off bits per scanline
	SingleFacet   bool    `yaml:"single_facet"`   // diagnostic: expose on one facet per revolution
	SingleLine    bool    `yaml:"single_line"`    // diagnostic: repeat the buffered line indefinitely
}

// ExposureConfig contains exposure parameters used by the host.
type ExposureConfig struct {
	LaserPower   int `yaml:"laser_power"`    // driver chip setting, 0-255
	StepsPerLine int `yaml:"steps_per_line"` // stage steps advanced per scanline
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port: "/dev/ttyACM0",
			Baud: 2000000,
		},
		Scanner: ScannerConfig{
			CrystalHz:     50e6,
			RPM:           2400,
			Facets:        4,
			LaserHz:       2e6,
			SpinupSeconds: 1.5,
			StableSeconds: 1.125,
			StartFraction: 0.35,
			ScanlineBits:  6320,
			SingleFacet:   false,
			SingleLine:    false,
		},
		Exposure: ExposureConfig{
			LaserPower:   128,
			StepsPerLine: 1,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Serial.Baud
	}

	if c.Scanner.CrystalHz == 0 {
		c.Scanner.CrystalHz = def.Scanner.CrystalHz
	}
	if c.Scanner.RPM == 0 {
		c.Scanner.RPM = def.Scanner.RPM
	}
	if c.Scanner.Facets == 0 {
		c.Scanner.Facets = def.Scanner.Facets
	}
	if c.Scanner.LaserHz == 0 {
		c.Scanner.LaserHz = def.Scanner.LaserHz
	}
	if c.Scanner.SpinupSeconds == 0 {
		c.Scanner.SpinupSeconds = def.Scanner.SpinupSeconds
	}
	if c.Scanner.StableSeconds == 0 {
		c.Scanner.StableSeconds = def.Scanner.StableSeconds
	}
	if c.Scanner.StartFraction == 0 {
		c.Scanner.StartFraction = def.Scanner.StartFraction
	}
	if c.Scanner.ScanlineBits == 0 {
		c.Scanner.ScanlineBits = def.Scanner.ScanlineBits
	}

	if c.Exposure.LaserPower == 0 {
		c.Exposure.LaserPower = def.Exposure.LaserPower
	}
	if c.Exposure.StepsPerLine == 0 {
		c.Exposure.StepsPerLine = def.Exposure.StepsPerLine
	}
}
