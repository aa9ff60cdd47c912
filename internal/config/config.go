package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server ServerConfig `json:"server"`

	// Database Configuration (MySQL record store)
	Database DatabaseConfig `json:"database"`

	// MongoDB Configuration (GridFS blob store)
	MongoDB MongoDBConfig `json:"mongodb"`

	// S3 Configuration (alternative blob store)
	S3 S3Config `json:"s3"`

	// Redis Configuration (distributed locks)
	Redis RedisConfig `json:"redis"`

	Store     StoreConfig     `json:"store"`
	Blob      BlobConfig      `json:"blob"`
	Engine    EngineConfig    `json:"engine"`
	Reconcile ReconcileConfig `json:"reconcile"`
	Ledger    LedgerConfig    `json:"ledger"`

	// Logging Configuration
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port         string `json:"port"`
	Host         string `json:"host"`
	GRPCPort     string `json:"grpc_port"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
	Environment  string `json:"environment"` // development, staging, production
	MaxUploadMB  int    `json:"max_upload_mb"`
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         string `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	DatabaseName string `json:"database_name"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
	LogLevel     string `json:"log_level"` // silent, error, warn, info
}

type MongoDBConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database"`
	Bucket   string `json:"bucket"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint"`
	Region    string `json:"region"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"-"`
	Bucket    string `json:"bucket"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

// StoreConfig selects the record store implementation.
type StoreConfig struct {
	Driver string `json:"driver"` // mysql, memory
}

// BlobConfig selects and tunes the blob store.
type BlobConfig struct {
	Driver       string        `json:"driver"` // gridfs, s3, memory
	CheckTimeout time.Duration `json:"check_timeout"`
	CheckRPS     float64       `json:"check_rps"` // 0 disables the limiter
	CheckBurst   int           `json:"check_burst"`

	BreakerMaxRequests uint32        `json:"breaker_max_requests"`
	BreakerInterval    time.Duration `json:"breaker_interval"`
	BreakerTimeout     time.Duration `json:"breaker_timeout"`
	BreakerMinRequests uint32        `json:"breaker_min_requests"`
	BreakerFailRatio   float64       `json:"breaker_fail_ratio"`
}

// EngineConfig tunes the engagement recorder.
type EngineConfig struct {
	TrendingThreshold int           `json:"trending_threshold"`
	ScoreWindow       time.Duration `json:"score_window"`
	ViewDedupWindow   time.Duration `json:"view_dedup_window"`
	WindowComments    bool          `json:"window_comments"`
	MaxRetries        int           `json:"max_retries"`
	LockDriver        string        `json:"lock_driver"` // local, redis
	LockTTL           time.Duration `json:"lock_ttl"`
}

// ReconcileConfig tunes the media reconciliation pipeline.
type ReconcileConfig struct {
	BatchSize       int           `json:"batch_size"`
	InterBatchDelay time.Duration `json:"inter_batch_delay"`
	PageSize        int           `json:"page_size"`
	SampleRate      float64       `json:"sample_rate"`
	Workers         int           `json:"workers"`
	QueueSize       int           `json:"queue_size"`
	SweepInterval   time.Duration `json:"sweep_interval"` // 0 disables scheduled sweeps
}

// LedgerConfig tunes the delete cascade workers.
type LedgerConfig struct {
	CascadeWorkers   int           `json:"cascade_workers"`
	CascadeQueueSize int           `json:"cascade_queue_size"`
	CleanupInterval  time.Duration `json:"cleanup_interval"` // 0 disables scheduled cleanup
	RecountInterval  time.Duration `json:"recount_interval"` // 0 disables scheduled recount
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, console
	Caller bool   `json:"caller"`
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		Server: ServerConfig{
			Host:         getEnv("HTTP_HOST", "0.0.0.0"),
			Port:         getEnv("HTTP_PORT", "8080"),
			GRPCPort:     getEnv("GRPC_PORT", "7002"),
			ReadTimeout:  getEnvAsInt("HTTP_READ_TIMEOUT", 30),
			WriteTimeout: getEnvAsInt("HTTP_WRITE_TIMEOUT", 30),
			Environment:  getEnv("APP_ENV", "development"),
			MaxUploadMB:  getEnvAsInt("MAX_UPLOAD_MB", 100),
		},
		Database: DatabaseConfig{
			Host:         getEnv("MYSQL_HOST", "localhost"),
			Port:         getEnv("MYSQL_PORT", "3306"),
			Username:     getEnv("MYSQL_USERNAME", "goreels"),
			Password:     getEnv("MYSQL_PASSWORD", "goreels123"),
			DatabaseName: getEnv("MYSQL_DATABASE", "goreels"),
			MaxOpenConns: getEnvAsInt("MYSQL_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("MYSQL_MAX_IDLE_CONNS", 5),
			LogLevel:     getEnv("MYSQL_LOG_LEVEL", "warn"),
		},
		MongoDB: MongoDBConfig{
			Host:     getEnv("MONGO_HOST", "localhost"),
			Port:     getEnv("MONGO_PORT", "27017"),
			Username: getEnv("MONGO_USERNAME", "admin"),
			Password: getEnv("MONGO_PASSWORD", "admin123"),
			Database: getEnv("MONGO_DATABASE", "goreels"),
			Bucket:   getEnv("MONGO_BUCKET", "reel_media"),
		},
		S3: S3Config{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			Region:    getEnv("S3_REGION", "us-east-1"),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Bucket:    getEnv("S3_BUCKET", "reels"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", "mysql"),
		},
		Blob: BlobConfig{
			Driver:             getEnv("BLOB_DRIVER", "gridfs"),
			CheckTimeout:       getEnvAsDuration("BLOB_CHECK_TIMEOUT", 5*time.Second),
			CheckRPS:           getEnvAsFloat("BLOB_CHECK_RPS", 20),
			CheckBurst:         getEnvAsInt("BLOB_CHECK_BURST", 10),
			BreakerMaxRequests: uint32(getEnvAsInt("BLOB_BREAKER_MAX_REQUESTS", 3)),
			BreakerInterval:    getEnvAsDuration("BLOB_BREAKER_INTERVAL", time.Minute),
			BreakerTimeout:     getEnvAsDuration("BLOB_BREAKER_TIMEOUT", 30*time.Second),
			BreakerMinRequests: uint32(getEnvAsInt("BLOB_BREAKER_MIN_REQUESTS", 10)),
			BreakerFailRatio:   getEnvAsFloat("BLOB_BREAKER_FAIL_RATIO", 0.6),
		},
		Engine: EngineConfig{
			TrendingThreshold: getEnvAsInt("TRENDING_THRESHOLD", 50),
			ScoreWindow:       getEnvAsDuration("SCORE_WINDOW", 24*time.Hour),
			ViewDedupWindow:   getEnvAsDuration("VIEW_DEDUP_WINDOW", 24*time.Hour),
			WindowComments:    getEnvAsBool("SCORE_WINDOW_COMMENTS", true),
			MaxRetries:        getEnvAsInt("ENGAGEMENT_MAX_RETRIES", 3),
			LockDriver:        getEnv("LOCK_DRIVER", "local"),
			LockTTL:           getEnvAsDuration("LOCK_TTL", 5*time.Second),
		},
		Reconcile: ReconcileConfig{
			BatchSize:       getEnvAsInt("RECONCILE_BATCH_SIZE", 10),
			InterBatchDelay: getEnvAsDuration("RECONCILE_INTER_BATCH_DELAY", 500*time.Millisecond),
			PageSize:        getEnvAsInt("RECONCILE_PAGE_SIZE", 100),
			SampleRate:      getEnvAsFloat("RECONCILE_SAMPLE_RATE", 0.05),
			Workers:         getEnvAsInt("RECONCILE_WORKERS", 2),
			QueueSize:       getEnvAsInt("RECONCILE_QUEUE_SIZE", 100),
			SweepInterval:   getEnvAsDuration("RECONCILE_SWEEP_INTERVAL", 0),
		},
		Ledger: LedgerConfig{
			CascadeWorkers:   getEnvAsInt("CASCADE_WORKERS", 2),
			CascadeQueueSize: getEnvAsInt("CASCADE_QUEUE_SIZE", 1000),
			CleanupInterval:  getEnvAsDuration("CLEANUP_INTERVAL", 10*time.Minute),
			RecountInterval:  getEnvAsDuration("RECOUNT_INTERVAL", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Caller: getEnvAsBool("LOG_CALLER", false),
		},
	}
}

func (cfg *Config) DSN() string {
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "3306"
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DatabaseName,
	)
}

func (cfg *Config) GetMongoURI() string {
	if cfg.MongoDB.Username == "" || cfg.MongoDB.Password == "" {
		return fmt.Sprintf("mongodb://%s:%s/%s", cfg.MongoDB.Host, cfg.MongoDB.Port, cfg.MongoDB.Database)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%s/%s?authSource=admin",
		cfg.MongoDB.Username,
		cfg.MongoDB.Password,
		cfg.MongoDB.Host,
		cfg.MongoDB.Port,
		cfg.MongoDB.Database,
	)
}

func (cfg *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port)
}

func (cfg *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	raw := strings.ToLower(getEnv(key, ""))
	switch raw {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("500ms", "24h") or plain seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
