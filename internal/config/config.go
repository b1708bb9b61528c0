package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" json:"server"`
	Database   DatabaseConfig   `yaml:"database" json:"database"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Scanner    ScannerConfig    `yaml:"scanner" json:"scanner"`
	Jobs       JobsConfig       `yaml:"jobs" json:"jobs"`
	Enrichment EnrichmentConfig `yaml:"enrichment" json:"enrichment"`
	Publish    PublishConfig    `yaml:"publish" json:"publish"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string        `yaml:"host" json:"host" env:"CURATARR_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" json:"port" env:"CURATARR_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" env:"CURATARR_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"CURATARR_WRITE_TIMEOUT" default:"30s"`
	EnableCORS   bool          `yaml:"enable_cors" json:"enable_cors" env:"CURATARR_ENABLE_CORS" default:"true"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type            string        `yaml:"type" json:"type" env:"DATABASE_TYPE" default:"sqlite"`
	Host            string        `yaml:"host" json:"host" env:"POSTGRES_HOST" default:"localhost"`
	Port            int           `yaml:"port" json:"port" env:"POSTGRES_PORT" default:"5432"`
	Username        string        `yaml:"username" json:"username" env:"POSTGRES_USER" default:"curatarr"`
	Password        string        `yaml:"password" json:"-" env:"POSTGRES_PASSWORD"`
	Database        string        `yaml:"database" json:"database" env:"POSTGRES_DB" default:"curatarr"`
	DataDir         string        `yaml:"data_dir" json:"data_dir" env:"CURATARR_DATA_DIR" default:"./data"`
	DatabasePath    string        `yaml:"database_path" json:"database_path" env:"CURATARR_DATABASE_PATH"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" env:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" default:"2h"`
	LogQueries      bool          `yaml:"log_queries" json:"log_queries" env:"DB_LOG_QUERIES" default:"false"`
}

// CacheConfig holds content-addressed cache configuration
type CacheConfig struct {
	RootDir          string        `yaml:"root_dir" json:"root_dir" env:"CURATARR_CACHE_DIR"`
	MaxFileSize      int64         `yaml:"max_file_size" json:"max_file_size" env:"CURATARR_MAX_CACHE_FILE_SIZE" default:"5368709120"`
	DownloadTimeout  time.Duration `yaml:"download_timeout" json:"download_timeout" env:"CURATARR_DOWNLOAD_TIMEOUT" default:"10m"`
	GCInterval       time.Duration `yaml:"gc_interval" json:"gc_interval" env:"CURATARR_CACHE_GC_INTERVAL" default:"6h"`
	TouchOnRetrieval bool          `yaml:"touch_on_retrieval" json:"touch_on_retrieval" env:"CURATARR_CACHE_TOUCH" default:"true"`
}

// ScannerConfig holds scanner configuration
type ScannerConfig struct {
	TextReadLimit  int64         `yaml:"text_read_limit" json:"text_read_limit" env:"CURATARR_TEXT_READ_LIMIT" default:"10240"`
	WatcherEnabled bool          `yaml:"watcher_enabled" json:"watcher_enabled" env:"CURATARR_WATCHER_ENABLED" default:"true"`
	WatchDebounce  time.Duration `yaml:"watch_debounce" json:"watch_debounce" env:"CURATARR_WATCH_DEBOUNCE" default:"5s"`
	FFprobePath    string        `yaml:"ffprobe_path" json:"ffprobe_path" env:"CURATARR_FFPROBE_PATH" default:"ffprobe"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout" json:"probe_timeout" env:"CURATARR_PROBE_TIMEOUT" default:"60s"`
}

// JobsConfig holds job queue configuration
type JobsConfig struct {
	WorkerCount      int           `yaml:"worker_count" json:"worker_count" env:"CURATARR_JOB_WORKERS" default:"4"`
	PollInterval     time.Duration `yaml:"poll_interval" json:"poll_interval" env:"CURATARR_JOB_POLL_INTERVAL" default:"5s"`
	DefaultRetries   int           `yaml:"default_retries" json:"default_retries" env:"CURATARR_JOB_RETRIES" default:"3"`
	HandlerDeadline  time.Duration `yaml:"handler_deadline" json:"handler_deadline" env:"CURATARR_JOB_DEADLINE" default:"30m"`
	PruneAfter       time.Duration `yaml:"prune_after" json:"prune_after" env:"CURATARR_JOB_PRUNE_AFTER" default:"24h"`
	CleanupSchedule  string        `yaml:"cleanup_schedule" json:"cleanup_schedule" env:"CURATARR_CLEANUP_SCHEDULE" default:"0 3 * * *"`
	ThrottleEnabled  bool          `yaml:"throttle_enabled" json:"throttle_enabled" env:"CURATARR_JOB_THROTTLE" default:"true"`
	CPUThreshold     float64       `yaml:"cpu_threshold" json:"cpu_threshold" env:"CURATARR_CPU_THRESHOLD" default:"85.0"`
	MemoryThreshold  float64       `yaml:"memory_threshold" json:"memory_threshold" env:"CURATARR_MEMORY_THRESHOLD" default:"90.0"`
}

// EnrichmentConfig holds provider enrichment configuration
type EnrichmentConfig struct {
	Language         string        `yaml:"language" json:"language" env:"CURATARR_ENRICH_LANGUAGE" default:"en"`
	RequestTimeout   time.Duration `yaml:"request_timeout" json:"request_timeout" env:"CURATARR_PROVIDER_TIMEOUT" default:"15s"`
	PHashThreshold   int           `yaml:"phash_threshold" json:"phash_threshold" env:"CURATARR_PHASH_THRESHOLD" default:"5"`
	MaxAssetsPerSlot int           `yaml:"max_assets_per_slot" json:"max_assets_per_slot" env:"CURATARR_MAX_ASSETS_PER_SLOT" default:"20"`
}

// PublishConfig holds library publish configuration
type PublishConfig struct {
	RetentionDays int  `yaml:"retention_days" json:"retention_days" env:"CURATARR_RETENTION_DAYS" default:"30"`
	WriteActors   bool `yaml:"write_actors" json:"write_actors" env:"CURATARR_PUBLISH_ACTORS" default:"true"`
	WriteTrailers bool `yaml:"write_trailers" json:"write_trailers" env:"CURATARR_PUBLISH_TRAILERS" default:"true"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" env:"LOG_LEVEL" default:"info"`
	Format string `yaml:"format" json:"format" env:"LOG_FORMAT" default:"text"`
}

// ConfigManager manages application configuration
type ConfigManager struct {
	config     *Config
	configPath string
	mu         sync.RWMutex
}

var (
	globalConfigManager *ConfigManager
	configOnce          sync.Once
)

// GetConfigManager returns the global configuration manager instance
func GetConfigManager() *ConfigManager {
	configOnce.Do(func() {
		globalConfigManager = &ConfigManager{config: DefaultConfig()}
	})
	return globalConfigManager
}

// DefaultConfig returns the default application configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			EnableCORS:   true,
		},
		Database: DatabaseConfig{
			Type:            "sqlite",
			DataDir:         "./data",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 2 * time.Hour,
		},
		Cache: CacheConfig{
			MaxFileSize:      5 * 1024 * 1024 * 1024,
			DownloadTimeout:  10 * time.Minute,
			GCInterval:       6 * time.Hour,
			TouchOnRetrieval: true,
		},
		Scanner: ScannerConfig{
			TextReadLimit:  10 * 1024,
			WatcherEnabled: true,
			WatchDebounce:  5 * time.Second,
			FFprobePath:    "ffprobe",
			ProbeTimeout:   60 * time.Second,
		},
		Jobs: JobsConfig{
			WorkerCount:     4,
			PollInterval:    5 * time.Second,
			DefaultRetries:  3,
			HandlerDeadline: 30 * time.Minute,
			PruneAfter:      24 * time.Hour,
			CleanupSchedule: "0 3 * * *",
			ThrottleEnabled: true,
			CPUThreshold:    85.0,
			MemoryThreshold: 90.0,
		},
		Enrichment: EnrichmentConfig{
			Language:         "en",
			RequestTimeout:   15 * time.Second,
			PHashThreshold:   5,
			MaxAssetsPerSlot: 20,
		},
		Publish: PublishConfig{
			RetentionDays: 30,
			WriteActors:   true,
			WriteTrailers: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func (cm *ConfigManager) LoadConfig(configPath string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.configPath = configPath
	newConfig := DefaultConfig()

	if configPath != "" && fileExists(configPath) {
		if err := loadFromFile(configPath, newConfig); err != nil {
			return fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(newConfig).Elem()); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := validateConfig(newConfig); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	applyDerivedConfig(newConfig)
	cm.config = newConfig
	return nil
}

// GetConfig returns the current configuration (thread-safe copy)
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	configCopy := *cm.config
	return &configCopy
}

func loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".json":
		return json.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
}

func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := loadStructFromEnv(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s: %w", fieldType.Name, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		} else {
			intVal, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(intVal)
		}
	case reflect.Float32, reflect.Float64:
		floatVal, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatVal)
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolVal)
	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}

	return nil
}

func validateConfig(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Type != "sqlite" && config.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s", config.Database.Type)
	}

	if config.Jobs.WorkerCount < 0 {
		return fmt.Errorf("invalid worker count: %d", config.Jobs.WorkerCount)
	}

	if config.Enrichment.PHashThreshold < 0 || config.Enrichment.PHashThreshold > 64 {
		return fmt.Errorf("invalid phash threshold: %d", config.Enrichment.PHashThreshold)
	}

	return nil
}

func applyDerivedConfig(config *Config) {
	if config.Database.DatabasePath == "" && config.Database.Type == "sqlite" {
		config.Database.DatabasePath = filepath.Join(config.Database.DataDir, "curatarr.db")
	}

	if config.Cache.RootDir == "" {
		config.Cache.RootDir = filepath.Join(config.Database.DataDir, "cache")
	}

	if config.Jobs.WorkerCount == 0 {
		config.Jobs.WorkerCount = min(max(1, runtime.NumCPU()), 8)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Global convenience functions

// Get returns the current global configuration
func Get() *Config {
	return GetConfigManager().GetConfig()
}

// Load loads configuration from the specified path
func Load(configPath string) error {
	return GetConfigManager().LoadConfig(configPath)
}

// GetDataDir returns the configured data directory
func GetDataDir() string {
	return Get().Database.DataDir
}
