package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"gpu-resource-cache/internal/backend"
)

// Config holds asset locations and cache settings.
type Config struct {
	// Paths
	AssetDir    string `json:"asset_dir" yaml:"asset_dir"`
	AtlasList   string `json:"atlas_list" yaml:"atlas_list"`
	Placeholder string `json:"placeholder" yaml:"placeholder"`
	OutputDir   string `json:"output_dir" yaml:"output_dir"`

	// Cache settings
	AsyncLoading bool    `json:"async_loading" yaml:"async_loading"`
	PixelFormat  string  `json:"pixel_format" yaml:"pixel_format"`
	Backend      string  `json:"backend" yaml:"backend"`
	Watch        bool    `json:"watch" yaml:"watch"`
	FontSize     float64 `json:"font_size" yaml:"font_size"`

	// Export settings
	ExportSize int `json:"export_size" yaml:"export_size"`
	Workers    int `json:"workers" yaml:"workers"`
}

// Backends accepted in the backend key.
const (
	BackendSoft = "soft"
	BackendWGPU = "wgpu"
)

// Load reads a JSON or YAML config file, chosen by extension.
// Fields not set in the file keep their zero values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Flags holds CLI flag values that override config file settings.
type Flags struct {
	AssetDir  string
	AtlasList string
	OutputDir string
	Backend   string
	Async     bool
	Watch     bool
	Size      int
	Workers   int
}

// Resolve fills in any empty fields with defaults.
// CLI flags take priority when non-zero/non-empty.
func (c *Config) Resolve(flags Flags) {
	// CLI flags override config file
	if flags.AssetDir != "" {
		c.AssetDir = flags.AssetDir
	}
	if flags.AtlasList != "" {
		c.AtlasList = flags.AtlasList
	}
	if flags.OutputDir != "" {
		c.OutputDir = flags.OutputDir
	}
	if flags.Backend != "" {
		c.Backend = flags.Backend
	}
	if flags.Async {
		c.AsyncLoading = true
	}
	if flags.Watch {
		c.Watch = true
	}
	if flags.Size > 0 {
		c.ExportSize = flags.Size
	}
	if flags.Workers > 0 {
		c.Workers = flags.Workers
	}

	if c.AssetDir == "" {
		c.AssetDir = "."
	}
	if c.OutputDir == "" {
		c.OutputDir = filepath.Join(c.AssetDir, "export")
	} else if !filepath.IsAbs(c.OutputDir) && c.AssetDir != "." {
		c.OutputDir = filepath.Join(c.AssetDir, c.OutputDir)
	}

	// Defaults for cache settings
	if c.Placeholder == "" {
		c.Placeholder = "noTexture.png"
	}
	if c.PixelFormat == "" {
		c.PixelFormat = backend.RGBA8.String()
	}
	if c.Backend == "" {
		c.Backend = BackendSoft
	}
	if c.FontSize <= 0 {
		c.FontSize = 14
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	if _, err := backend.ParsePixelFormat(c.PixelFormat); err != nil {
		return fmt.Errorf("config: pixel_format: %w", err)
	}
	switch c.Backend {
	case BackendSoft, BackendWGPU:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.ExportSize < 0 {
		return fmt.Errorf("config: export_size %d is negative", c.ExportSize)
	}
	return nil
}
