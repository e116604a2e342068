package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"nadlan-scraper/models"
)

// Config holds all application configuration. Loaded once at startup and
// immutable for the run.
type Config struct {
	MaxConcurrency int
	MaxRetries     int
	RetryBaseMs    int
	RateLimitMs    int
	MaxPages       int

	DataDir            string
	CheckpointDir      string
	CombinedOutputPath string
	NeighborhoodsPath  string
	ChromeBin          string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	Neighborhoods []models.NeighborhoodTarget
}

// Load reads the .env file, environment variables, and the neighborhoods
// YAML file, returning a fully populated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 3),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		RetryBaseMs:    getEnvInt("RETRY_BASE_MS", 2000),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 2000),
		MaxPages:       getEnvInt("MAX_PAGES", 100),

		DataDir:            getEnv("DATA_DIR", "./data/gov"),
		CheckpointDir:      getEnv("CHECKPOINT_DIR", "./checkpoints"),
		CombinedOutputPath: getEnv("COMBINED_OUTPUT_PATH", "./data/gov/haifa_combined.csv"),
		NeighborhoodsPath:  getEnv("NEIGHBORHOODS_PATH", "./configs/neighborhoods.yaml"),
		ChromeBin:          getEnv("CHROME_BIN", ""),

		PostgresHost:     getEnv("POSTGRES_HOST", ""),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "nadlan"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "nadlan_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
	}

	if cfg.MaxConcurrency < 1 {
		return nil, fmt.Errorf("config: MAX_CONCURRENCY must be positive, got %d", cfg.MaxConcurrency)
	}
	if cfg.MaxPages < 1 {
		return nil, fmt.Errorf("config: MAX_PAGES must be positive, got %d", cfg.MaxPages)
	}

	targets, err := loadNeighborhoods(cfg.NeighborhoodsPath)
	if err != nil {
		return nil, err
	}
	cfg.Neighborhoods = targets

	return cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// PostgresEnabled reports whether a Postgres sink is configured.
func (c *Config) PostgresEnabled() bool {
	return c.PostgresHost != ""
}

func loadNeighborhoods(path string) ([]models.NeighborhoodTarget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read neighborhoods file %q: %w", path, err)
	}

	var file struct {
		Neighborhoods []models.NeighborhoodTarget `yaml:"neighborhoods"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: parse neighborhoods file %q: %w", path, err)
	}

	for i, n := range file.Neighborhoods {
		if n.ID == "" || n.Name == "" {
			return nil, fmt.Errorf("config: neighborhood %d in %q is missing id or name", i, path)
		}
	}
	if len(file.Neighborhoods) == 0 {
		return nil, fmt.Errorf("config: no neighborhoods defined in %q", path)
	}

	return file.Neighborhoods, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
