package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	ServerPort string
	ServerHost string

	// Database configuration; DatabaseURL wins over the discrete fields
	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	// Redis configuration; RedisURL wins over the discrete fields
	RedisURL      string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// JWTSecret verifies bearer tokens issued by the auth provider
	JWTSecret string

	// OpenAI images API
	OpenAIAPIKey    string
	OpenAIImagesURL string

	// Outbound image generation limits, shared by the whole process
	ImageMaxPerMinute      int
	ImageMaxBurst          int
	ImageDispatchTimeout   time.Duration
	ImageInterRequestDelay time.Duration
	ImageCacheTTL          time.Duration

	// Per-user limits on the HTTP image routes
	UserImageLimit  int
	UserImageWindow time.Duration

	// Storage
	S3BucketName string
	AWSRegion    string

	CORSAllowedOrigins []string
}

const (
	defaultOpenAIImagesURL = "https://api.openai.com/v1/images/generations"
	defaultSecretsDir      = "/run/secrets"
)

// LoadConfig creates a new Config from environment variables, falling back
// to secret files for sensitive values
func LoadConfig() (*Config, error) {
	env := GetEnvironment()

	cfg, err := load()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s configuration: %w", env, err)
	}

	if err := ValidateConfig(cfg, env); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func load() (*Config, error) {
	cfg := &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		ServerHost: getEnv("SERVER_HOST", "0.0.0.0"),

		DatabaseURL: readSecret("DATABASE_URL"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      readSecret("DB_USER"),
		DBPassword:  readSecret("DB_PASSWORD"),
		DBName:      getEnv("DB_NAME", "chefscart"),
		DBSSLMode:   getEnv("DB_SSL_MODE", "disable"),

		RedisURL:      readSecret("REDIS_URL"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: readSecret("REDIS_PASSWORD"),

		JWTSecret: readSecret("JWT_SECRET"),

		OpenAIAPIKey:    readSecret("OPENAI_API_KEY"),
		OpenAIImagesURL: getEnv("OPENAI_IMAGES_API_URL", defaultOpenAIImagesURL),

		S3BucketName: os.Getenv("S3_BUCKET_NAME"),
		AWSRegion:    getEnv("AWS_REGION", "us-east-1"),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.ImageMaxPerMinute, err = getInt("IMAGE_MAX_PER_MINUTE", 50); err != nil {
		return nil, err
	}
	if cfg.ImageMaxBurst, err = getInt("IMAGE_MAX_BURST", 15); err != nil {
		return nil, err
	}
	if cfg.ImageDispatchTimeout, err = getDuration("IMAGE_DISPATCH_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ImageInterRequestDelay, err = getDuration("IMAGE_INTER_REQUEST_DELAY", 50*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.ImageCacheTTL, err = getDuration("IMAGE_CACHE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.UserImageLimit, err = getInt("USER_IMAGE_LIMIT", 30); err != nil {
		return nil, err
	}
	if cfg.UserImageWindow, err = getDuration("USER_IMAGE_WINDOW", time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DSN returns the Postgres connection string
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

// Addr returns the address the HTTP server listens on
func (c *Config) Addr() string {
	return c.ServerHost + ":" + c.ServerPort
}

// readSecret resolves a sensitive value from NAME, then the file named by
// NAME_FILE, then the Docker secret $SECRETS_DIR/name.
func readSecret(name string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}

	if path := os.Getenv(name + "_FILE"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	secretsDir := os.Getenv("SECRETS_DIR")
	if secretsDir == "" {
		secretsDir = defaultSecretsDir
	}
	if data, err := os.ReadFile(filepath.Join(secretsDir, strings.ToLower(name))); err == nil {
		return strings.TrimSpace(string(data))
	}
	return ""
}

func getEnv(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func getInt(name string, fallback int) (int, error) {
	value := os.Getenv(name)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return n, nil
}

func getDuration(name string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(name)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
