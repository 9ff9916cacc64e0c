package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	// HTTP server
	ServerPort      string
	ShutdownTimeout time.Duration
	AllowedOrigin   string

	// MySQL
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	DBMaxOpenConns int
	DBMaxIdleConns int
	DBConnMaxLife  time.Duration
	DBDialTimeout  time.Duration

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
	PlaybackTTL   time.Duration

	// MinIO
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioRegion     string
	MinioUseSSL     bool
	MinioPublicURL  string
	MinioPresignTTL time.Duration

	// Auth
	JWTSecret   string
	JWTIssuer   string
	JWTTokenTTL time.Duration

	// Remote calls
	RemoteTimeout     time.Duration
	RemoteMaxAttempts int
	RetryInitialWait  time.Duration
	RetryMaxWait      time.Duration
	CounterAttempts   int

	// Player
	MediaLoadTimeout time.Duration

	// Search rate limiting, requests per second per client
	SearchRateLimit float64
	SearchBurst     int

	// Logging
	LogLevel      string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool

	// EnvFile is the dotenv file Load read, empty when none was found.
	EnvFile string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("5s", "250ms").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	envFile := getEnv("ENV_FILE", ".env")
	// godotenv.Load will not override existing env vars.
	if err := godotenv.Load(envFile); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
		envFile = ""
	}
	cfg := FromEnv()
	cfg.EnvFile = envFile
	return cfg
}

// FromEnv builds a Config from the current process environment only.
func FromEnv() *Config {
	return &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		AllowedOrigin:   getEnv("ALLOWED_ORIGIN", "*"),

		DBHost:         getEnv("DB_HOST", "127.0.0.1"),
		DBPort:         getEnv("DB_PORT", "3306"),
		DBUser:         getEnv("DB_USER", "root"),
		DBPassword:     os.Getenv("DB_PASSWORD"), // no hardcoded default for the password
		DBName:         getEnv("DB_NAME", "deadsongs"),
		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 100),
		DBMaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 10),
		DBConnMaxLife:  getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		DBDialTimeout:  getEnvDuration("DB_DIAL_TIMEOUT", 5*time.Second),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      getEnvDuration("CACHE_TTL", 10*time.Minute),
		PlaybackTTL:   getEnvDuration("PLAYBACK_TTL", 24*time.Hour),

		MinioEndpoint:   getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:     getEnv("MINIO_BUCKET", "songs"),
		MinioRegion:     getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:     getEnvBool("MINIO_USE_SSL", false),
		MinioPublicURL:  getEnv("MINIO_PUBLIC_URL", ""),
		MinioPresignTTL: getEnvDuration("MINIO_PRESIGN_TTL", time.Hour),

		JWTSecret:   getEnv("JWT_SECRET", "deadsongs-dev-secret"),
		JWTIssuer:   getEnv("JWT_ISSUER", "deadsongs"),
		JWTTokenTTL: getEnvDuration("JWT_TOKEN_TTL", 24*time.Hour),

		RemoteTimeout:     getEnvDuration("REMOTE_TIMEOUT", 5*time.Second),
		RemoteMaxAttempts: getEnvInt("REMOTE_MAX_ATTEMPTS", 3),
		RetryInitialWait:  getEnvDuration("RETRY_INITIAL_WAIT", 100*time.Millisecond),
		RetryMaxWait:      getEnvDuration("RETRY_MAX_WAIT", 2*time.Second),
		CounterAttempts:   getEnvInt("COUNTER_MAX_ATTEMPTS", 5),

		MediaLoadTimeout: getEnvDuration("MEDIA_LOAD_TIMEOUT", 15*time.Second),

		SearchRateLimit: getEnvFloat("SEARCH_RATE_LIMIT", 5),
		SearchBurst:     getEnvInt("SEARCH_BURST", 10),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", "logs/deadsongs.log"),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 28),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),
	}
}
