package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"devrank/models"
)

// Config holds all configuration for the application
type Config struct {
	GitHubToken string
	APIURL      string
	GraphQLURL  string
	LogLevel    string

	Locations []string
	Sort      models.SortDimension

	PerPage            int
	BatchGroupSize     int
	StarSampleSize     int
	EventWindow        int
	HydrateConcurrency int
	RequestsPerSecond  float64
	HTTPTimeout        time.Duration
	StageTimeout       time.Duration

	MockSeed       uint64
	MockCount      int
	MockTotalCount int

	PollInterval int
	HTTPAddr     string

	Database Database
}

// Database holds the optional snapshot store settings
type Database struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Enabled reports whether a snapshot store was configured
func (d Database) Enabled() bool {
	return d.Host != ""
}

// DSN builds a lib/pq connection string
func (d Database) DSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s port=%s host=%s sslmode=disable",
		d.User, d.Password, d.Name, d.Port, d.Host,
	)
}

// NewConfig creates a new Config instance
func NewConfig() *Config {
	return &Config{}
}

func setDefaults() {
	viper.SetDefault("GITHUB_API_URL", "https://api.github.com")
	viper.SetDefault("GITHUB_GRAPHQL_URL", "https://api.github.com/graphql")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOCATIONS", "Cambodia")
	viper.SetDefault("SORT", string(models.SortFollowers))
	viper.SetDefault("PER_PAGE", 100)
	viper.SetDefault("BATCH_GROUP_SIZE", 10)
	viper.SetDefault("STAR_SAMPLE_SIZE", 30)
	viper.SetDefault("EVENT_WINDOW", 100)
	viper.SetDefault("HYDRATE_CONCURRENCY", 100)
	viper.SetDefault("REQUESTS_PER_SECOND", 0)
	viper.SetDefault("HTTP_TIMEOUT", "30s")
	viper.SetDefault("STAGE_TIMEOUT", "0s")
	viper.SetDefault("MOCK_SEED", 0)
	viper.SetDefault("MOCK_COUNT", 50)
	viper.SetDefault("MOCK_TOTAL_COUNT", 500)
	viper.SetDefault("POLL_INTERVAL", 3600)
	viper.SetDefault("POSTGRES_PORT", "5432")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 25)
	viper.SetDefault("DB_CONN_MAX_LIFETIME", "5m")
}

// Load loads configuration from environment variables and an optional .env file.
// CONFIG_FILE overrides the file location.
func (c *Config) Load() error {
	setDefaults()
	viper.AutomaticEnv()

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = ".env"
	}
	if _, err := os.Stat(configFile); err == nil {
		viper.SetConfigFile(configFile)
		viper.SetConfigType("env")
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// The token is optional; without it only the per-item path is used.
	c.GitHubToken = strings.TrimSpace(viper.GetString("GITHUB_TOKEN"))
	c.APIURL = strings.TrimRight(viper.GetString("GITHUB_API_URL"), "/")
	c.GraphQLURL = viper.GetString("GITHUB_GRAPHQL_URL")
	c.LogLevel = viper.GetString("LOG_LEVEL")

	c.Locations = splitList(viper.GetString("LOCATIONS"))

	sort, err := models.ParseSortDimension(viper.GetString("SORT"))
	if err != nil {
		return fmt.Errorf("invalid SORT: %w", err)
	}
	c.Sort = sort

	c.PerPage = viper.GetInt("PER_PAGE")
	if c.PerPage < 1 || c.PerPage > 100 {
		return fmt.Errorf("PER_PAGE must be between 1 and 100, got %d", c.PerPage)
	}
	c.BatchGroupSize = viper.GetInt("BATCH_GROUP_SIZE")
	if c.BatchGroupSize < 1 {
		return fmt.Errorf("BATCH_GROUP_SIZE must be positive, got %d", c.BatchGroupSize)
	}
	c.StarSampleSize = viper.GetInt("STAR_SAMPLE_SIZE")
	c.EventWindow = viper.GetInt("EVENT_WINDOW")
	c.HydrateConcurrency = viper.GetInt("HYDRATE_CONCURRENCY")
	c.RequestsPerSecond = viper.GetFloat64("REQUESTS_PER_SECOND")
	c.HTTPTimeout = viper.GetDuration("HTTP_TIMEOUT")
	c.StageTimeout = viper.GetDuration("STAGE_TIMEOUT")

	c.MockSeed = viper.GetUint64("MOCK_SEED")
	c.MockCount = viper.GetInt("MOCK_COUNT")
	c.MockTotalCount = viper.GetInt("MOCK_TOTAL_COUNT")

	c.PollInterval = viper.GetInt("POLL_INTERVAL")
	if c.PollInterval <= 0 {
		c.PollInterval = 3600
	}
	c.HTTPAddr = viper.GetString("HTTP_ADDR")

	c.Database = Database{
		Host:            viper.GetString("POSTGRES_HOST"),
		Port:            viper.GetString("POSTGRES_PORT"),
		User:            viper.GetString("POSTGRES_USER"),
		Password:        viper.GetString("POSTGRES_PASSWORD"),
		Name:            viper.GetString("POSTGRES_DB"),
		MaxOpenConns:    viper.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    viper.GetInt("DB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: viper.GetDuration("DB_CONN_MAX_LIFETIME"),
	}

	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
