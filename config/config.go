package config

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration loaded from environment
// variables.
type Config struct {
	ZyteAPIKey   string
	FetchBackend string // "zyte" or "browser"
	ChromeBin    string

	Metro        string
	ZipTablePath string

	MaxWorkers         int
	MaxRetries         int
	TimeoutSeconds     int
	BackoffBaseMs      int
	RatePerSec         float64
	MaxPages           int
	RunDeadlineMinutes int

	OutputDir string
	LogDir    string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		ZyteAPIKey:   getEnv("ZYTE_API_KEY", ""),
		FetchBackend: getEnv("FETCH_BACKEND", "zyte"),
		ChromeBin:    getEnv("CHROME_BIN", ""),

		Metro:        getEnv("METRO", "boston"),
		ZipTablePath: getEnv("ZIP_TABLE_PATH", "./data/metro_zips.yaml"),

		MaxWorkers:         getEnvInt("MAX_WORKERS", 10),
		MaxRetries:         getEnvInt("MAX_RETRIES", 5),
		TimeoutSeconds:     getEnvInt("TIMEOUT_SECONDS", 30),
		BackoffBaseMs:      getEnvInt("BACKOFF_BASE_MS", 1000),
		RatePerSec:         getEnvFloat("RATE_PER_SEC", 5),
		MaxPages:           getEnvInt("MAX_PAGES", 20),
		RunDeadlineMinutes: getEnvInt("RUN_DEADLINE_MINUTES", 0),

		OutputDir: getEnv("OUTPUT_DIR", "./output"),
		LogDir:    getEnv("LOG_DIR", "./logs"),
	}
}

// zipTable is the on-disk shape of the metro→ZIP table.
type zipTable map[string][]string

// MetroZips loads the ZIP code list for the configured metro area from
// the YAML table.
func (c *Config) MetroZips() ([]string, error) {
	data, err := os.ReadFile(c.ZipTablePath)
	if err != nil {
		return nil, fmt.Errorf("config: read zip table: %w", err)
	}

	var table zipTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("config: parse zip table: %w", err)
	}

	zips, ok := table[c.Metro]
	if !ok {
		known := make([]string, 0, len(table))
		for metro := range table {
			known = append(known, metro)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("config: metro %q not in zip table (known: %v)", c.Metro, known)
	}
	if len(zips) == 0 {
		return nil, fmt.Errorf("config: metro %q has no ZIP codes", c.Metro)
	}
	return zips, nil
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

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}
