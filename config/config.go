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
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Firebase FirebaseConfig
	GCP      GCPConfig
	Notify   NotifyConfig
	App      AppConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type FirebaseConfig struct {
	CredentialsPath string
}

// GCPConfig holds everything the provisioning pipeline needs to talk to
// Google Cloud. OrganizationID is mandatory: account folders are created
// under organizations/{OrganizationID}.
type GCPConfig struct {
	OrganizationID   string
	BillingAccountID string
	CredentialsPath  string
	DatasetLocation  string
	FolderOpTimeout  time.Duration
	ProjectOpTimeout time.Duration
}

type NotifyConfig struct {
	BaseURL string
	APIKey  string
}

type AppConfig struct {
	Environment string
	LogLevel    string
	Version     string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "datacharted"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Firebase: FirebaseConfig{
			CredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		},
		GCP: GCPConfig{
			OrganizationID:   getEnv("GCP_ORGANIZATION_ID", ""),
			BillingAccountID: getEnv("GCP_BILLING_ACCOUNT_ID", ""),
			CredentialsPath:  getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			DatasetLocation:  getEnv("GCP_DATASET_LOCATION", "US"),
			FolderOpTimeout:  getEnvAsDuration("GCP_FOLDER_OP_TIMEOUT", 60*time.Second),
			ProjectOpTimeout: getEnvAsDuration("GCP_PROJECT_OP_TIMEOUT", 300*time.Second),
		},
		Notify: NotifyConfig{
			BaseURL: getEnv("NOTIFY_BASE_URL", ""),
			APIKey:  getEnv("NOTIFY_API_KEY", ""),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}

	// Folder-based project management cannot work without an organization.
	if strings.TrimSpace(c.GCP.OrganizationID) == "" {
		return fmt.Errorf("GCP_ORGANIZATION_ID is required")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}
