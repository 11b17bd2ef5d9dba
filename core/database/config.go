package database

import (
	"fmt"
	"strings"
)

// Supported storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds dialogue storage settings. The memory driver needs nothing
// else; postgres uses the DB_* fields and sqlite uses SQLitePath.
type Config struct {
	Driver string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
	// PersistSQLite mirrors the legacy PERSISTENCE_SQLITE switch and selects
	// the sqlite driver when Driver is empty.
	PersistSQLite  bool   `yaml:"-" envconfig:"PERSISTENCE_SQLITE"`
	SQLitePath     string `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// Normalize resolves the driver and fills defaults.
func (c *Config) Normalize() error {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	switch driver {
	case "":
		driver = DriverMemory
		if c.PersistSQLite {
			driver = DriverSQLite
		}
	case "sqlite3":
		driver = DriverSQLite
	case "postgresql", "pg":
		driver = DriverPostgres
	}
	c.Driver = driver

	switch driver {
	case DriverMemory:
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			c.SQLitePath = "db.sqlite"
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Host) == "" || strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("storage.host and storage.name are required for the postgres driver")
		}
		if c.Port == "" {
			c.Port = "5432"
		}
		if c.SSLMode == "" {
			c.SSLMode = "disable"
		}
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: memory, postgres, sqlite", c.Driver)
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 4
	}
	if driver == DriverSQLite {
		// one writer keeps sqlite out of SQLITE_BUSY under concurrent upserts
		c.MaxConnections = 1
	}
	return nil
}

// Persistent reports whether the driver keeps dialogues across restarts.
func (c Config) Persistent() bool {
	return c.Driver == DriverPostgres || c.Driver == DriverSQLite
}

func (c Config) postgresDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

func (c Config) postgresURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}
