package server

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sensorable/kittiscale"
)

// Config is the service configuration, read from a YAML file.
type Config struct {
	UserIDs []string `yaml:"user_ids"` // The users that may request tokens.
	Secret  string   `yaml:"secret"`   // The HS256 signing key.

	TokenLifetime time.Duration `yaml:"token_lifetime"`
	TokenLeeway   time.Duration `yaml:"token_leeway"` // Clock skew allowed when verifying tokens.
	Throttle      time.Duration `yaml:"throttle"`     // Delay before answering a failed auth.

	DataDir          string `yaml:"data_dir"` // The default dataset root.
	TargetWidth      int    `yaml:"target_width"`
	TargetHeight     int    `yaml:"target_height"`
	DownsampleFilter string `yaml:"downsample_filter"`
	UpsampleFilter   string `yaml:"upsample_filter"`
	JPEGQuality      int    `yaml:"jpeg_quality"`
	SkipInvalid      bool   `yaml:"skip_invalid"`
}

// DefaultConfig returns the configuration values used for settings missing from the file.
func DefaultConfig() Config {
	opts := kittiscale.DefaultOptions()
	return Config{
		TokenLifetime:    60000 * time.Second,
		TokenLeeway:      10 * time.Second,
		Throttle:         5 * time.Second,
		TargetWidth:      opts.Target.Width,
		TargetHeight:     opts.Target.Height,
		DownsampleFilter: opts.DownsampleFilter,
		UpsampleFilter:   opts.UpsampleFilter,
		JPEGQuality:      opts.JPEGQuality,
	}
}

// LoadConfig reads the configuration file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.Secret == "":
		return fmt.Errorf("missing secret")
	case c.TokenLifetime <= 0:
		return fmt.Errorf("token_lifetime must be positive")
	case c.TokenLeeway < 0 || c.Throttle < 0:
		return fmt.Errorf("token_leeway and throttle must not be negative")
	}
	_, err := c.options(c.TargetWidth, c.TargetHeight)
	return err
}

// options returns the scaling options for a target size.
func (c Config) options(width, height int) (kittiscale.Options, error) {
	if width <= 0 || height <= 0 {
		return kittiscale.Options{}, fmt.Errorf("invalid target size %dx%d", width, height)
	}
	for _, name := range []string{c.DownsampleFilter, c.UpsampleFilter} {
		if _, err := kittiscale.ParseFilter(name); err != nil {
			return kittiscale.Options{}, err
		}
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return kittiscale.Options{}, fmt.Errorf("invalid jpeg_quality %d", c.JPEGQuality)
	}

	return kittiscale.Options{
		Target:           kittiscale.Size{Width: width, Height: height},
		DownsampleFilter: c.DownsampleFilter,
		UpsampleFilter:   c.UpsampleFilter,
		JPEGQuality:      c.JPEGQuality,
		SkipInvalid:      c.SkipInvalid,
	}, nil
}

func (c Config) allowsUser(userID string) bool {
	for _, id := range c.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Store holds the active configuration. It is loaded once and only changes through Reload.
type Store struct {
	path string

	mu       sync.RWMutex
	cfg      Config
	loadedAt time.Time
}

// NewStore loads the configuration file at path.
func NewStore(path string) (*Store, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, cfg: cfg, loadedAt: time.Now()}, nil
}

// Get returns a copy of the active configuration.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := s.cfg
	cfg.UserIDs = append([]string(nil), s.cfg.UserIDs...)
	return cfg
}

// LoadedAt is the time the active configuration was read.
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Reload re-reads the configuration file. The active configuration is kept if this fails.
func (s *Store) Reload() (Config, error) {
	cfg, err := LoadConfig(s.path)
	if err != nil {
		return Config{}, err
	}

	s.mu.Lock()
	s.cfg = cfg
	s.loadedAt = time.Now()
	s.mu.Unlock()

	return s.Get(), nil
}
