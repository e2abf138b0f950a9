package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Config holds all fungimap configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Catalog   CatalogConfig   `toml:"catalog"`
	Session   SessionConfig   `toml:"session"`
	Relevance RelevanceConfig `toml:"relevance"`
	Layout    LayoutConfig    `toml:"layout"`
	Physics   PhysicsConfig   `toml:"physics"`
	Search    SearchConfig    `toml:"search"`
	Log       LogConfig       `toml:"log"`
}

type ServerConfig struct {
	Bind string `toml:"bind" validate:"required"`
	Port int    `toml:"port" validate:"min=1,max=65535"`
}

type DatabaseConfig struct {
	Path string `toml:"path"` // empty = store.DefaultDBPath()
}

type CatalogConfig struct {
	Path string `toml:"path"` // JSON array of entity records
}

type SessionConfig struct {
	MaxActions      int `toml:"max_actions" validate:"min=1"`
	MaxSearches     int `toml:"max_searches" validate:"min=1"`
	AutosaveSeconds int `toml:"autosave_seconds" validate:"min=0"`
	MinHoverMs      int `toml:"min_hover_ms" validate:"min=0"`
}

type RelevanceConfig struct {
	Clicks           float64 `toml:"clicks" validate:"min=0"`
	Hovers           float64 `toml:"hovers" validate:"min=0"`
	Views            float64 `toml:"views" validate:"min=0"`
	TimeSpent        float64 `toml:"time_spent" validate:"min=0"`
	ScrollDepth      float64 `toml:"scroll_depth" validate:"min=0"`
	SearchMatch      float64 `toml:"search_match" validate:"min=0"`
	PerspectiveMatch float64 `toml:"perspective_match" validate:"min=0"`
	DecayFactor      float64 `toml:"decay_factor" validate:"gt=0,lte=1"`
	CacheTTLMs       int     `toml:"cache_ttl_ms" validate:"min=0"`
	RefreshEvery     int     `toml:"refresh_every" validate:"min=1"` // re-layout every k tracked actions
}

type LayoutConfig struct {
	Width     float64 `toml:"width" validate:"gt=0"`
	Height    float64 `toml:"height" validate:"gt=0"`
	MinSize   float64 `toml:"min_size" validate:"gt=0"`
	MaxSize   float64 `toml:"max_size" validate:"gtefield=MinSize"`
	Radius    float64 `toml:"radius" validate:"gt=0"`
	Padding   float64 `toml:"padding" validate:"min=0"`
	Threshold float64 `toml:"threshold" validate:"min=0,max=1"`
	TopN      int     `toml:"top_n" validate:"min=1"`
	Neighbors int     `toml:"neighbors" validate:"min=0"` // similarity edges per node
}

type PhysicsConfig struct {
	RepulsionCoeff     float64 `toml:"repulsion_coeff" validate:"min=0"`
	SpringStrength     float64 `toml:"spring_strength" validate:"min=0"`
	RepulsionDistance  float64 `toml:"repulsion_distance" validate:"min=0"`
	RepulsionStrength  float64 `toml:"repulsion_strength" validate:"min=0"`
	BoundaryAttraction float64 `toml:"boundary_attraction" validate:"min=0"`
	Margin             float64 `toml:"margin" validate:"min=0"`
	Damping            float64 `toml:"damping" validate:"gt=0,lt=1"`
	CollisionStrength  float64 `toml:"collision_strength" validate:"min=0,max=1"`
}

type SearchConfig struct {
	URL            string `toml:"url" validate:"omitempty,url"` // empty = in-process catalog index
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"min=1"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=console json"`
	File   string `toml:"file"` // empty = stderr only
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Session: SessionConfig{
			MaxActions:      500,
			MaxSearches:     50,
			AutosaveSeconds: 30,
			MinHoverMs:      500,
		},
		Relevance: RelevanceConfig{
			Clicks:           0.25,
			Hovers:           0.05,
			Views:            0.20,
			TimeSpent:        0.15,
			ScrollDepth:      0.10,
			SearchMatch:      0.15,
			PerspectiveMatch: 0.10,
			DecayFactor:      0.95,
			CacheTTLMs:       5000,
			RefreshEvery:     5,
		},
		Layout: LayoutConfig{
			Width:     1200,
			Height:    800,
			MinSize:   50,
			MaxSize:   120,
			Radius:    300,
			Padding:   60,
			Threshold: 0.2,
			TopN:      8,
			Neighbors: 2,
		},
		Physics: PhysicsConfig{
			RepulsionCoeff:     0.008,
			SpringStrength:     0.0005,
			RepulsionDistance:  300,
			RepulsionStrength:  0.00005,
			BoundaryAttraction: 0.0005,
			Margin:             50,
			Damping:            0.92,
			CollisionStrength:  0.05,
		},
		Search: SearchConfig{
			TimeoutSeconds: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultPath returns ~/.fungimap/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".fungimap", "config.toml"), nil
}

// Load reads the TOML file at path over the defaults, applies environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FUNGIMAP_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("FUNGIMAP_CATALOG"); v != "" {
		c.Catalog.Path = v
	}
	if v := os.Getenv("FUNGIMAP_SEARCH_URL"); v != "" {
		c.Search.URL = v
	}
	if v := os.Getenv("FUNGIMAP_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// AutosaveInterval returns the session autosave period; zero disables it.
func (c *Config) AutosaveInterval() time.Duration {
	return time.Duration(c.Session.AutosaveSeconds) * time.Second
}

// CacheTTL returns the relevance recompute throttle.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Relevance.CacheTTLMs) * time.Millisecond
}

// SearchTimeout returns the remote search request timeout.
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.TimeoutSeconds) * time.Second
}
