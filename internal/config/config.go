package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the engine
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	NATS struct {
		URL          string        `mapstructure:"url"`
		Stream       string        `mapstructure:"stream"`       // Entity-change stream name
		Consumer     string        `mapstructure:"consumer"`     // Durable consumer name
		QueueGroup   string        `mapstructure:"group"`        // Queue group for load-balanced delivery
		SubjectList  []string      `mapstructure:"subjectList"`  // Subjects bound to the stream
		MaxAgeDays   int64         `mapstructure:"maxAgeDays"`   // Stream retention in days
		MaxDeliver   int           `mapstructure:"maxDeliver"`   // Max delivery attempts before drop
		NakBaseDelay time.Duration `mapstructure:"nakBaseDelay"` // Base delay for exponential backoff NAK
		NakMaxDelay  time.Duration `mapstructure:"nakMaxDelay"`  // Maximum delay for exponential backoff NAK
	} `mapstructure:"nats"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	Engine struct {
		ConflictRetries   int           `mapstructure:"conflictRetries"`   // Bounded retries on aggregate-row contention
		ConflictBaseDelay time.Duration `mapstructure:"conflictBaseDelay"` // Initial backoff between conflict retries
		ConflictMaxDelay  time.Duration `mapstructure:"conflictMaxDelay"`  // Backoff cap between conflict retries
	} `mapstructure:"engine"`
	Materializer MaterializerConfig `mapstructure:"materializer"`
	Metrics      struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
}

// MaterializerConfig holds configuration for the overview materializer
type MaterializerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"` // Recompute period
	PoolSize int           `mapstructure:"poolSize"` // Concurrent per-company recompute workers
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	// Create new viper instance
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.enabled", true)

	// NATS defaults
	v.SetDefault("nats.stream", "ENGAGEMENT_ENTITIES")
	v.SetDefault("nats.consumer", "engagement-engine")
	v.SetDefault("nats.group", "engagement-engine")
	v.SetDefault("nats.subjectList", []string{"v1.entities.>"})
	v.SetDefault("nats.maxAgeDays", 30)
	v.SetDefault("nats.maxDeliver", 5)
	v.SetDefault("nats.nakBaseDelay", 2*time.Second)
	v.SetDefault("nats.nakMaxDelay", 30*time.Second)

	// Engine defaults
	v.SetDefault("engine.conflictRetries", 3)
	v.SetDefault("engine.conflictBaseDelay", 25*time.Millisecond)
	v.SetDefault("engine.conflictMaxDelay", 500*time.Millisecond)

	// Materializer defaults
	v.SetDefault("materializer.enabled", true)
	v.SetDefault("materializer.interval", 5*time.Minute)
	v.SetDefault("materializer.poolSize", 4)

	// Config file settings
	v.SetConfigName("default")
	v.SetConfigType("yaml")

	// Add lookup paths
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.engagement-engine")
	v.AddConfigPath("/etc/engagement-engine")

	// Try to read from config file
	if err := v.ReadInConfig(); err != nil {
		// It's ok if config file is not found, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map environment variables to config fields
	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		v.Set("nats.url", url)
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &config, nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		// Get the field tag value (mapstructure)
		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		// Build the env var path
		path := append(parts, tag)
		key := strings.Join(path, ".")

		// If it's a struct, recursively bind its fields
		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		// Bind the env var
		_ = v.BindEnv(key)
	}
}
