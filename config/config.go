package config

import (
	"fmt"
	"log"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"domus-ia/storage"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	MongoHost           string
	MongoPort           int
	MongoUser           string
	MongoPassword       string
	MongoAuthSource     string
	MongoDB             string
	MongoCollection     string
	MongoConnectTimeout time.Duration
	MongoMaxPoolSize    int

	BatchSize      int
	Workers        int
	InputPath      string
	DataDir        string
	RejectsCSVPath string
	MetricsAddr    string
	LogLevel       string

	RunLedgerEnabled bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int
	PagesToScrape  int
	ScrapeCities   []string
	ScrapeCategory string
	ScrapeOutput   string
	ChromeBin      string
}

const (
	maxBatchSize = 50000
	maxWorkers   = 64
)

// Load reads the .env file, if any, and returns a populated Config.
// Out-of-range sizes fall back to their defaults; a bad port is an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}
	return fromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("mongo_host", "localhost")
	v.SetDefault("mongo_port", 27017)
	v.SetDefault("mongo_user", "")
	v.SetDefault("mongo_password", "")
	v.SetDefault("mongo_auth_source", "admin")
	v.SetDefault("mongo_db", "listings")
	v.SetDefault("mongo_collection", "listings")
	v.SetDefault("mongo_connect_timeout_ms", 5000)
	v.SetDefault("mongo_max_pool_size", 50)

	v.SetDefault("ingest_batch_size", 2000)
	v.SetDefault("ingest_workers", 4)
	v.SetDefault("ingest_input_path", "data/combined_data.json")
	v.SetDefault("data_dir", "data")
	v.SetDefault("rejects_csv_path", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("log_level", "info")

	v.SetDefault("run_ledger_enabled", false)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", "5432")
	v.SetDefault("postgres_user", "domus")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_db", "domus_ia")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("max_concurrency", 3)
	v.SetDefault("rate_limit_ms", 2000)
	v.SetDefault("max_retries", 3)
	v.SetDefault("pages_to_scrape", 5)
	v.SetDefault("scrape_cities", "casablanca,rabat,marrakech,tanger")
	v.SetDefault("scrape_category", "appartements-a-vendre")
	v.SetDefault("scrape_output_path", "data/mubawab_listings.json")
	v.SetDefault("chrome_bin", "")
	return v
}

func fromViper(v *viper.Viper) (*Config, error) {
	port := v.GetInt("mongo_port")
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid MONGO_PORT: %d", port)
	}

	return &Config{
		MongoHost:           v.GetString("mongo_host"),
		MongoPort:           port,
		MongoUser:           v.GetString("mongo_user"),
		MongoPassword:       v.GetString("mongo_password"),
		MongoAuthSource:     v.GetString("mongo_auth_source"),
		MongoDB:             v.GetString("mongo_db"),
		MongoCollection:     v.GetString("mongo_collection"),
		MongoConnectTimeout: time.Duration(clamp(v.GetInt("mongo_connect_timeout_ms"), 1, 120000, 5000)) * time.Millisecond,
		MongoMaxPoolSize:    clamp(v.GetInt("mongo_max_pool_size"), 1, 1000, 50),

		BatchSize:      clamp(v.GetInt("ingest_batch_size"), 1, maxBatchSize, 2000),
		Workers:        clamp(v.GetInt("ingest_workers"), 1, maxWorkers, 4),
		InputPath:      v.GetString("ingest_input_path"),
		DataDir:        v.GetString("data_dir"),
		RejectsCSVPath: v.GetString("rejects_csv_path"),
		MetricsAddr:    v.GetString("metrics_addr"),
		LogLevel:       v.GetString("log_level"),

		RunLedgerEnabled: v.GetBool("run_ledger_enabled"),
		PostgresHost:     v.GetString("postgres_host"),
		PostgresPort:     v.GetString("postgres_port"),
		PostgresUser:     v.GetString("postgres_user"),
		PostgresPassword: v.GetString("postgres_password"),
		PostgresDB:       v.GetString("postgres_db"),
		PostgresSSLMode:  v.GetString("postgres_sslmode"),

		MaxConcurrency: clamp(v.GetInt("max_concurrency"), 1, 16, 3),
		RateLimitMs:    clamp(v.GetInt("rate_limit_ms"), 0, 60000, 2000),
		MaxRetries:     clamp(v.GetInt("max_retries"), 1, 10, 3),
		PagesToScrape:  clamp(v.GetInt("pages_to_scrape"), 1, 500, 5),
		ScrapeCities:   splitList(v.GetString("scrape_cities")),
		ScrapeCategory: v.GetString("scrape_category"),
		ScrapeOutput:   v.GetString("scrape_output_path"),
		ChromeBin:      v.GetString("chrome_bin"),
	}, nil
}

// MongoURI returns the connection string for the document store.
func (c *Config) MongoURI() string {
	u := url.URL{
		Scheme: "mongodb",
		Host:   net.JoinHostPort(c.MongoHost, strconv.Itoa(c.MongoPort)),
		Path:   "/",
	}
	if c.MongoUser != "" {
		u.User = url.UserPassword(c.MongoUser, c.MongoPassword)
		if c.MongoAuthSource != "" {
			u.RawQuery = url.Values{"authSource": {c.MongoAuthSource}}.Encode()
		}
	}
	return u.String()
}

// Mongo returns the store options derived from the config.
func (c *Config) Mongo() storage.MongoOptions {
	return storage.MongoOptions{
		URI:            c.MongoURI(),
		Database:       c.MongoDB,
		Collection:     c.MongoCollection,
		ConnectTimeout: c.MongoConnectTimeout,
		MaxPoolSize:    uint64(c.MongoMaxPoolSize),
	}
}

// PostgresDSN returns the PostgreSQL connection string for the run ledger.
func (c *Config) PostgresDSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func clamp(n, lo, hi, fallback int) int {
	if n < lo || n > hi {
		return fallback
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
