package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Supported geocoder providers.
const (
	GeocoderNone      = "none"
	GeocoderGoogle    = "google"
	GeocoderNominatim = "nominatim"
)

// Supported source types.
const (
	SourceTypeFile = "file"
	SourceTypeHTTP = "http"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	CORS        CORSConfig
	Pipeline    PipelineConfig
	Acquisition AcquisitionConfig
	Geocoder    GeocoderConfig
	Sources     []SourceConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds canonical store connection configuration.
// Driver selects between PostgreSQL (Host..PoolMax) and SQLite (SQLitePath).
type DatabaseConfig struct {
	Driver     string
	Host       string
	Port       string
	Name       string
	User       string
	Password   string
	PoolMin    int
	PoolMax    int
	SQLitePath string
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Origins []string
}

// PipelineConfig controls scheduled and concurrent pipeline runs.
type PipelineConfig struct {
	// Schedule is a cron spec; empty disables scheduled runs in the server.
	Schedule    string
	Concurrency int
}

// AcquisitionConfig holds the retry and rate policy shared by network sources.
type AcquisitionConfig struct {
	MaxRetries    int
	RetryDelay    time.Duration
	RatePerMinute int
	Timeout       time.Duration
}

// GeocoderConfig selects the geocoding provider used for enrichment.
type GeocoderConfig struct {
	Provider  string
	APIKey    string
	CacheSize int
}

// SourceConfig describes one acquisition source from the config file.
type SourceConfig struct {
	Name  string `mapstructure:"name"`
	Type  string `mapstructure:"type"`
	Path  string `mapstructure:"path"`
	URL   string `mapstructure:"url"`
	State string `mapstructure:"state"`
}

// Load reads configuration from environment variables and, when CONFIG_FILE
// is set, from a YAML file that also lists the acquisition sources.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults for development
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_DRIVER", DriverSQLite)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "urbex")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_POOL_MIN", 2)
	v.SetDefault("DB_POOL_MAX", 10)
	v.SetDefault("SQLITE_PATH", "data/properties.db")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:3001")
	v.SetDefault("PIPELINE_SCHEDULE", "")
	v.SetDefault("PIPELINE_CONCURRENCY", 2)
	v.SetDefault("ACQUIRE_MAX_RETRIES", 3)
	v.SetDefault("ACQUIRE_RETRY_DELAY", "5s")
	v.SetDefault("ACQUIRE_RATE_PER_MINUTE", 10)
	v.SetDefault("ACQUIRE_TIMEOUT", "30s")
	v.SetDefault("GEOCODER_PROVIDER", GeocoderNone)
	v.SetDefault("GEOCODE_CACHE_SIZE", 1000)

	// Bind environment variables
	v.AutomaticEnv()

	var sources []SourceConfig
	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := v.UnmarshalKey("sources", &sources); err != nil {
			return nil, fmt.Errorf("failed to decode sources: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("PORT"),
			Env:  v.GetString("ENV"),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(v.GetString("DB_DRIVER")),
			Host:       v.GetString("DB_HOST"),
			Port:       v.GetString("DB_PORT"),
			Name:       v.GetString("DB_NAME"),
			User:       v.GetString("DB_USER"),
			Password:   v.GetString("DB_PASSWORD"),
			PoolMin:    v.GetInt("DB_POOL_MIN"),
			PoolMax:    v.GetInt("DB_POOL_MAX"),
			SQLitePath: v.GetString("SQLITE_PATH"),
		},
		CORS: CORSConfig{
			Origins: parseOrigins(v.GetString("CORS_ORIGINS")),
		},
		Pipeline: PipelineConfig{
			Schedule:    v.GetString("PIPELINE_SCHEDULE"),
			Concurrency: v.GetInt("PIPELINE_CONCURRENCY"),
		},
		Acquisition: AcquisitionConfig{
			MaxRetries:    v.GetInt("ACQUIRE_MAX_RETRIES"),
			RetryDelay:    v.GetDuration("ACQUIRE_RETRY_DELAY"),
			RatePerMinute: v.GetInt("ACQUIRE_RATE_PER_MINUTE"),
			Timeout:       v.GetDuration("ACQUIRE_TIMEOUT"),
		},
		Geocoder: GeocoderConfig{
			Provider:  strings.ToLower(v.GetString("GEOCODER_PROVIDER")),
			APIKey:    v.GetString("GOOGLE_MAPS_API_KEY"),
			CacheSize: v.GetInt("GEOCODE_CACHE_SIZE"),
		},
		Sources: sources,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if err := c.Database.Validate(); err != nil {
		return err
	}

	if len(c.CORS.Origins) == 0 {
		return fmt.Errorf("CORS_ORIGINS is required")
	}

	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("PIPELINE_CONCURRENCY must be at least 1")
	}

	if c.Acquisition.MaxRetries < 1 {
		return fmt.Errorf("ACQUIRE_MAX_RETRIES must be at least 1")
	}
	if c.Acquisition.RetryDelay < 0 {
		return fmt.Errorf("ACQUIRE_RETRY_DELAY must be non-negative")
	}
	if c.Acquisition.RatePerMinute < 1 {
		return fmt.Errorf("ACQUIRE_RATE_PER_MINUTE must be at least 1")
	}

	switch c.Geocoder.Provider {
	case GeocoderNone, GeocoderNominatim:
	case GeocoderGoogle:
		if c.Geocoder.APIKey == "" {
			return fmt.Errorf("GOOGLE_MAPS_API_KEY is required for the google geocoder")
		}
	default:
		return fmt.Errorf("GEOCODER_PROVIDER must be one of none, google, nominatim")
	}
	if c.Geocoder.CacheSize < 1 {
		return fmt.Errorf("GEOCODE_CACHE_SIZE must be at least 1")
	}

	for i, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("sources[%d]: name is required", i)
		}
		switch s.Type {
		case SourceTypeFile:
			if s.Path == "" {
				return fmt.Errorf("sources[%d]: path is required for file sources", i)
			}
		case SourceTypeHTTP:
			if s.URL == "" {
				return fmt.Errorf("sources[%d]: url is required for http sources", i)
			}
		default:
			return fmt.Errorf("sources[%d]: unknown type %q", i, s.Type)
		}
	}

	return nil
}

// Validate checks the store settings for the selected driver.
func (d DatabaseConfig) Validate() error {
	switch d.Driver {
	case DriverSQLite:
		if d.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
		return nil
	case DriverPostgres:
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q", DriverPostgres, DriverSQLite)
	}

	if d.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if d.Port == "" {
		return fmt.Errorf("DB_PORT is required")
	}
	if d.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if d.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if d.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if d.PoolMin < 0 {
		return fmt.Errorf("DB_POOL_MIN must be non-negative")
	}
	if d.PoolMax < 1 {
		return fmt.Errorf("DB_POOL_MAX must be at least 1")
	}
	if d.PoolMin > d.PoolMax {
		return fmt.Errorf("DB_POOL_MIN must be less than or equal to DB_POOL_MAX")
	}
	return nil
}

// parseOrigins splits a comma-separated string of origins into a slice.
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
