package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rpattn/ngoreports/internal/db"
	"github.com/rpattn/ngoreports/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"

	JobStoreSQL   = "sql"
	JobStoreRedis = "redis"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Database  db.Config
	SQLite    SQLiteConfig
	Jobs      JobsConfig
	Redis     RedisConfig
	Uploads   UploadsConfig
	Ingestion IngestionConfig
	Log       logger.Config
}

type ServerConfig struct {
	Addr            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

type StorageConfig struct {
	Driver string
}

type SQLiteConfig struct {
	Path string
}

type JobsConfig struct {
	Store string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	JobTTL   time.Duration
}

type UploadsConfig struct {
	Dir           string
	MaxBytes      int64
	OrphanTTL     time.Duration
	SweepSchedule string
}

type IngestionConfig struct {
	BatchSize         int
	MaxConcurrentJobs int
}

func setDefaults(v *viper.Viper) {
	dbDefaults := db.DefaultConfig()

	v.SetDefault("server.addr", ":4000")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://localhost:5174"})
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("storage.driver", StorageDriverPostgres)

	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)
	v.SetDefault("database.max_conns", dbDefaults.MaxConns)

	v.SetDefault("sqlite.path", "./data/ngo.db")

	v.SetDefault("jobs.store", JobStoreSQL)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "ngo:")
	v.SetDefault("redis.job_ttl", 7*24*time.Hour)

	v.SetDefault("uploads.dir", "./uploads")
	v.SetDefault("uploads.max_bytes", 5<<20)
	v.SetDefault("uploads.orphan_ttl", time.Hour)
	v.SetDefault("uploads.sweep_schedule", "@every 15m")

	v.SetDefault("ingestion.batch_size", 100)
	v.SetDefault("ingestion.max_concurrent_jobs", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads config.yaml from configPath, then applies NGO_* environment
// overrides (NGO_DATABASE_HOST for database.host). A .env file in configPath
// is loaded into the environment first. Missing files are not an error.
func Load(configPath string) (Config, error) {
	if configPath == "" {
		configPath = "."
	}
	if err := godotenv.Load(filepath.Join(configPath, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("NGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	level, err := logger.ParseLevel(v.GetString("log.level"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Addr:            v.GetString("server.addr"),
			AllowedOrigins:  splitOrigins(v.GetStringSlice("server.allowed_origins")),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Storage: StorageConfig{Driver: strings.ToLower(v.GetString("storage.driver"))},
		Database: db.Config{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
			MaxConns: v.GetInt32("database.max_conns"),
		},
		SQLite: SQLiteConfig{Path: v.GetString("sqlite.path")},
		Jobs:   JobsConfig{Store: strings.ToLower(v.GetString("jobs.store"))},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Prefix:   v.GetString("redis.prefix"),
			JobTTL:   v.GetDuration("redis.job_ttl"),
		},
		Uploads: UploadsConfig{
			Dir:           v.GetString("uploads.dir"),
			MaxBytes:      v.GetInt64("uploads.max_bytes"),
			OrphanTTL:     v.GetDuration("uploads.orphan_ttl"),
			SweepSchedule: v.GetString("uploads.sweep_schedule"),
		},
		Ingestion: IngestionConfig{
			BatchSize:         v.GetInt("ingestion.batch_size"),
			MaxConcurrentJobs: v.GetInt("ingestion.max_concurrent_jobs"),
		},
		Log: logger.Config{Level: level, Format: v.GetString("log.format")},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverSQLite:
	default:
		return fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver)
	}
	switch c.Jobs.Store {
	case JobStoreSQL, JobStoreRedis:
	default:
		return fmt.Errorf("unsupported jobs.store %q", c.Jobs.Store)
	}
	if c.Ingestion.BatchSize <= 0 {
		return fmt.Errorf("ingestion.batch_size must be positive, got %d", c.Ingestion.BatchSize)
	}
	if c.Ingestion.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("ingestion.max_concurrent_jobs must be positive, got %d", c.Ingestion.MaxConcurrentJobs)
	}
	if c.Uploads.MaxBytes <= 0 {
		return fmt.Errorf("uploads.max_bytes must be positive, got %d", c.Uploads.MaxBytes)
	}
	return nil
}

// splitOrigins accepts both YAML lists and comma separated env values.
func splitOrigins(values []string) []string {
	var out []string
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				out = append(out, origin)
			}
		}
	}
	return out
}
