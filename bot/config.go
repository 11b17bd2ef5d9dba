package bot

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/mensabot/core/config"
	"github.com/m3rciful/mensabot/core/database"
	"github.com/m3rciful/mensabot/mensa"
)

// MensaConfig selects the canteen backend. Orders are simulated unless
// Production is set.
type MensaConfig struct {
	ID                    int    `yaml:"mensa_id" envconfig:"MENSA_ID"`
	BaseURL               string `yaml:"base_url" envconfig:"MENSA_BASE_URL"`
	SlotsURL              string `yaml:"slots_url" envconfig:"MENSA_SLOTS_URL"`
	Language              string `yaml:"language" envconfig:"MENSA_LANGUAGE"`
	Production            bool   `yaml:"production" envconfig:"PRODUCTION"`
	Timezone              string `yaml:"timezone" envconfig:"MENSA_TIMEZONE"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds" envconfig:"MENSA_REQUEST_TIMEOUT_SECONDS"`
	RetryAttempts         int    `yaml:"retry_attempts" envconfig:"MENSA_RETRY_ATTEMPTS"`
}

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Mensa   MensaConfig     `yaml:"mensa"`
	Storage database.Config `yaml:"storage"`

	location *time.Location
}

// CoreConfig exposes the embedded core section to the runner.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// Location is the timezone used to decide which day is still orderable.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// LoadConfig reads path (may be empty) and the environment, then validates.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates every section and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	if err := c.Storage.Normalize(); err != nil {
		return err
	}

	m := &c.Mensa
	if m.ID < 0 {
		return fmt.Errorf("mensa.mensa_id must be > 0")
	}
	if m.ID == 0 {
		m.ID = mensa.DefaultMensaID
	}
	if m.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("mensa.request_timeout_seconds must be >= 0")
	}
	if m.RetryAttempts < 0 {
		return fmt.Errorf("mensa.retry_attempts must be >= 0")
	}
	tz := strings.TrimSpace(m.Timezone)
	if tz == "" {
		tz = "Europe/Berlin"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("invalid mensa.timezone %q: %w", m.Timezone, err)
	}
	m.Timezone = tz
	c.location = loc
	return nil
}

// MensaOptions converts the section into client options.
func (c *Config) MensaOptions() mensa.Options {
	return mensa.Options{
		MensaID:       c.Mensa.ID,
		BaseURL:       c.Mensa.BaseURL,
		SlotsURL:      c.Mensa.SlotsURL,
		Language:      c.Mensa.Language,
		DryRun:        !c.Mensa.Production,
		Timeout:       time.Duration(c.Mensa.RequestTimeoutSeconds) * time.Second,
		RetryAttempts: uint(c.Mensa.RetryAttempts),
	}
}
