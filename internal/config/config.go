package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// StartDateLayout is the format accepted by START_DATE
const StartDateLayout = "2006-01-02"

// Config holds all pipeline configuration
type Config struct {
	// Pipeline artifacts
	SourcePath        string
	ExtractedPath     string
	MedalCountsPath   string
	CountryCountsPath string

	// Database configuration
	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string

	// Scheduling declaration
	PipelineID       string
	ScheduleInterval time.Duration
	StartDate        time.Time
	Retries          int
	RetryDelay       time.Duration

	// Status server configuration
	Host         string
	Port         int
	StatusAPIKey string

	// Metrics configuration
	MetricsEnabled bool
	MetricsHost    string
	MetricsPort    int
	PushgatewayURL string

	// Logging configuration
	LogLevel string
}

// Default returns the built-in configuration used when no environment
// overrides are present
func Default() *Config {
	return &Config{
		SourcePath:        "./data/athlete_events.jsonl",
		ExtractedPath:     "./data/extracted_data.csv",
		MedalCountsPath:   "./data/transformed_medal_counts.csv",
		CountryCountsPath: "./data/transformed_country_counts.csv",

		DatabaseDriver: "sqlite",
		DatabasePath:   "./olympics.db",

		PipelineID:       "olympics_etl",
		ScheduleInterval: 24 * time.Hour,
		StartDate:        time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Retries:          1,
		RetryDelay:       5 * time.Minute,

		Host: "localhost",
		Port: 4102,

		MetricsHost: "localhost",
		MetricsPort: 9102,

		LogLevel: "info",
	}
}

// Load reads configuration from environment variables on top of Default.
// It fails fast listing every variable that could not be parsed.
func Load() (*Config, error) {
	def := Default()
	var invalid []string

	cfg := &Config{
		SourcePath:        getEnv("SOURCE_PATH", def.SourcePath),
		ExtractedPath:     getEnv("EXTRACTED_PATH", def.ExtractedPath),
		MedalCountsPath:   getEnv("MEDAL_COUNTS_PATH", def.MedalCountsPath),
		CountryCountsPath: getEnv("COUNTRY_COUNTS_PATH", def.CountryCountsPath),

		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", def.DatabaseDriver)),
		DatabasePath:   getEnv("DATABASE_PATH", def.DatabasePath),
		DatabaseDSN:    os.Getenv("DATABASE_DSN"),

		PipelineID:       getEnv("PIPELINE_ID", def.PipelineID),
		ScheduleInterval: getEnvDuration("SCHEDULE_INTERVAL", def.ScheduleInterval, &invalid),
		StartDate:        getEnvDate("START_DATE", def.StartDate, &invalid),
		Retries:          getEnvInt("RETRIES", def.Retries, &invalid),
		RetryDelay:       getEnvDuration("RETRY_DELAY", def.RetryDelay, &invalid),

		Host:         getEnv("HOST", def.Host),
		Port:         getEnvInt("PORT", def.Port, &invalid),
		StatusAPIKey: os.Getenv("STATUS_API_KEY"),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", def.MetricsEnabled, &invalid),
		MetricsHost:    getEnv("METRICS_HOST", def.MetricsHost),
		MetricsPort:    getEnvInt("METRICS_PORT", def.MetricsPort, &invalid),
		PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),

		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", def.LogLevel)),
	}

	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid environment variables: %v", invalid)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration describes a runnable pipeline
func (c *Config) Validate() error {
	var problems []string

	if c.SourcePath == "" {
		problems = append(problems, "source path is empty")
	}
	if c.ExtractedPath == "" || c.MedalCountsPath == "" || c.CountryCountsPath == "" {
		problems = append(problems, "artifact paths must not be empty")
	}

	switch c.DatabaseDriver {
	case "sqlite":
		if c.DatabasePath == "" && c.DatabaseDSN == "" {
			problems = append(problems, "DATABASE_PATH is required for sqlite")
		}
	case "mysql", "sqlserver", "postgres":
		if c.DatabaseDSN == "" {
			problems = append(problems, fmt.Sprintf("DATABASE_DSN is required for %s", c.DatabaseDriver))
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver))
	}

	if c.PipelineID == "" {
		problems = append(problems, "pipeline id is empty")
	}
	if c.ScheduleInterval <= 0 {
		problems = append(problems, "schedule interval must be positive")
	}
	if c.Retries < 0 {
		problems = append(problems, "retries must not be negative")
	}
	if c.RetryDelay < 0 {
		problems = append(problems, "retry delay must not be negative")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown log level %q", c.LogLevel))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DSN returns the connection string handed to the database driver
func (c *Config) DSN() string {
	if c.DatabaseDSN != "" {
		return c.DatabaseDSN
	}
	return c.DatabasePath
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value.
// Unparseable values are recorded in invalid.
func getEnvInt(key string, defaultValue int, invalid *[]string) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		*invalid = append(*invalid, key)
		return defaultValue
	}

	return value
}

func getEnvBool(key string, defaultValue bool, invalid *[]string) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		*invalid = append(*invalid, key)
		return defaultValue
	}

	return value
}

func getEnvDuration(key string, defaultValue time.Duration, invalid *[]string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		*invalid = append(*invalid, key)
		return defaultValue
	}

	return value
}

func getEnvDate(key string, defaultValue time.Time, invalid *[]string) time.Time {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseInLocation(StartDateLayout, valueStr, time.UTC)
	if err != nil {
		*invalid = append(*invalid, key)
		return defaultValue
	}

	return value
}
