// Package config loads the service configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration. Zero-valued sections in a file
// keep their defaults because the file is decoded over DefaultConfig.
type Config struct {
	Server struct {
		Addr        string   `yaml:"addr"`
		CORSOrigins []string `yaml:"corsOrigins"`
		MaxUploadMB int64    `yaml:"maxUploadMB"`
	} `yaml:"server"`

	Model struct {
		Dir string `yaml:"dir"`
	} `yaml:"model"`

	Scan struct {
		Resolution  int     `yaml:"resolution"`
		PatchSize   int     `yaml:"patchSize"`
		MinCoverage float64 `yaml:"minCoverage"`
		BlurKernel  int     `yaml:"blurKernel"`
	} `yaml:"scan"`

	Storage struct {
		// ImageDir receives every upload; MirrorDirs get a copy each.
		ImageDir   string   `yaml:"imageDir"`
		MirrorDirs []string `yaml:"mirrorDirs"`
	} `yaml:"storage"`

	Irrigation struct {
		DryThreshold     float64 `yaml:"dryThreshold"`
		WetThreshold     float64 `yaml:"wetThreshold"`
		TankHeightCm     float64 `yaml:"tankHeightCm"`
		DashboardPlantID int     `yaml:"dashboardPlantId"`
	} `yaml:"irrigation"`

	Memory struct {
		MaxBytes int64 `yaml:"maxBytes"`
	} `yaml:"memory"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Recommendations []Recommendation `yaml:"recommendations"`
}

// Recommendation is the treatment advice shown for one diagnosed disease.
// Disease is matched against the display form of the dominant label.
type Recommendation struct {
	Disease        string `yaml:"disease"`
	Description    string `yaml:"description"`
	Symptoms       string `yaml:"symptoms"`
	Recommendation string `yaml:"recommendation"`
	Usage          string `yaml:"usage"`
}

func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Addr = ":8000"
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.Server.MaxUploadMB = 16

	cfg.Model.Dir = "ai_models"

	cfg.Scan.Resolution = 512
	cfg.Scan.PatchSize = 64
	cfg.Scan.MinCoverage = 0.3
	cfg.Scan.BlurKernel = 5

	cfg.Storage.ImageDir = "static/images"

	cfg.Irrigation.DryThreshold = 50
	cfg.Irrigation.WetThreshold = 70
	cfg.Irrigation.TankHeightCm = 100
	cfg.Irrigation.DashboardPlantID = 1

	cfg.Memory.MaxBytes = 512 * 1024 * 1024

	cfg.Logging.Level = "info"

	return cfg
}

// LoadConfig reads path over the defaults. A missing file yields the
// defaults. LOG_LEVEL in the environment overrides logging.level.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("error reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.maxUploadMB must be positive, got %d", c.Server.MaxUploadMB)
	}
	if c.Storage.ImageDir == "" {
		return fmt.Errorf("storage.imageDir must not be empty")
	}
	if c.Irrigation.DryThreshold > c.Irrigation.WetThreshold {
		return fmt.Errorf("irrigation.dryThreshold %.1f is above wetThreshold %.1f",
			c.Irrigation.DryThreshold, c.Irrigation.WetThreshold)
	}
	if c.Irrigation.TankHeightCm <= 0 {
		return fmt.Errorf("irrigation.tankHeightCm must be positive, got %.1f", c.Irrigation.TankHeightCm)
	}
	return nil
}
