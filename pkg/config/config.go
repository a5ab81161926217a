// Package config holds the channel configuration and loads it from the
// environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/srediag/vecshm/pkg/poller"
	"github.com/srediag/vecshm/pkg/shm"
	"github.com/srediag/vecshm/pkg/vector"
)

// Prefix is the environment prefix used by Load when none is given.
const Prefix = "VECSHM"

// Config is the full consumer configuration.
type Config struct {
	Region    RegionConfig
	Poll      PollConfig
	OpenRetry RetryConfig `split_words:"true"`
	Producer  ProducerConfig
	HTTP      HTTPConfig
	Log       LogConfig
	Audit     AuditConfig
}

// RegionConfig describes the shared region. Producer and consumer must
// agree on Name, ElementCount and Layout.
type RegionConfig struct {
	Name            string `default:"SharedMemory"`
	ElementCount    int    `split_words:"true" default:"393218"`
	Layout          string `default:"raw"`
	ReadOnly        bool   `split_words:"true" default:"true"`
	TornReadRetries int    `split_words:"true" default:"3"`
	// Seed writes the sink's initial vertices into the region once after
	// opening. Requires ReadOnly=false.
	Seed bool `default:"false"`
}

// PollConfig sets the copy cadence and the frame rate of the tick source.
type PollConfig struct {
	Interval time.Duration `default:"16.666666ms"`
	Frame    time.Duration `default:"16.666666ms"`
}

// RetryConfig controls retrying Open while the region does not exist yet.
type RetryConfig struct {
	Enabled         bool          `default:"false"`
	InitialInterval time.Duration `split_words:"true" default:"50ms"`
	MaxInterval     time.Duration `split_words:"true" default:"1s"`
	MaxElapsed      time.Duration `split_words:"true" default:"5s"`
}

// ProducerConfig describes the external producer. An empty Path means the
// producer is managed elsewhere.
type ProducerConfig struct {
	Path      string
	AssetDir  string        `split_words:"true"`
	Args      []string
	StopGrace time.Duration `split_words:"true" default:"0s"`
}

// HTTPConfig controls the health and metrics listener.
type HTTPConfig struct {
	Enabled bool   `default:"true"`
	Addr    string `default:":9464"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `default:"warn"`
	Development bool   `default:"false"`
}

// AuditConfig sizes the lifecycle journal.
type AuditConfig struct {
	Capacity int `default:"256"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Region: RegionConfig{
			Name:            vector.DefaultRegionName,
			ElementCount:    vector.DefaultElementCount,
			Layout:          vector.LayoutRaw.String(),
			ReadOnly:        true,
			TornReadRetries: shm.DefaultTornReadRetries,
		},
		Poll: PollConfig{
			Interval: poller.DefaultInterval,
			Frame:    poller.DefaultInterval,
		},
		OpenRetry: RetryConfig{
			InitialInterval: 50 * time.Millisecond,
			MaxInterval:     time.Second,
			MaxElapsed:      5 * time.Second,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Addr:    ":9464",
		},
		Log: LogConfig{
			Level: "warn",
		},
		Audit: AuditConfig{
			Capacity: 256,
		},
	}
}

// Load reads the configuration from environment variables under prefix,
// falling back to Prefix when prefix is empty, and verifies it.
func Load(prefix string) (*Config, error) {
	if prefix == "" {
		prefix = Prefix
	}
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := VerifyConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// VerifyConfig checks that config is usable.
func VerifyConfig(config *Config) error {
	if config == nil {
		return errors.New("config is nil")
	}
	if config.Region.Name == "" {
		return errors.New("region name is empty")
	}
	if _, err := config.Schema(); err != nil {
		return err
	}
	if config.Region.Seed && config.Region.ReadOnly {
		return errors.New("seeding requires a read-write region")
	}
	if config.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", config.Poll.Interval)
	}
	if config.Poll.Frame <= 0 {
		return fmt.Errorf("frame interval must be positive, got %s", config.Poll.Frame)
	}
	if config.OpenRetry.Enabled {
		if config.OpenRetry.InitialInterval <= 0 || config.OpenRetry.MaxElapsed <= 0 {
			return errors.New("open retry intervals must be positive")
		}
		if config.OpenRetry.MaxInterval < config.OpenRetry.InitialInterval {
			return errors.New("open retry max interval is below the initial interval")
		}
	}
	if config.Producer.StopGrace < 0 {
		return fmt.Errorf("producer stop grace must not be negative, got %s", config.Producer.StopGrace)
	}
	if config.HTTP.Enabled && config.HTTP.Addr == "" {
		return errors.New("http address is empty")
	}
	if config.Audit.Capacity <= 0 {
		return fmt.Errorf("audit capacity must be positive, got %d", config.Audit.Capacity)
	}
	return nil
}

// Schema returns the region schema described by the configuration.
func (c *Config) Schema() (vector.Schema, error) {
	layout, err := vector.ParseLayout(c.Region.Layout)
	if err != nil {
		return vector.Schema{}, err
	}
	s := vector.Schema{Count: c.Region.ElementCount, Layout: layout}
	if err := s.Validate(); err != nil {
		return vector.Schema{}, err
	}
	return s, nil
}

// AccessMode returns the mode the consumer opens the region with.
func (c *Config) AccessMode() shm.AccessMode {
	if c.Region.ReadOnly {
		return shm.ReadOnly
	}
	return shm.ReadWrite
}
