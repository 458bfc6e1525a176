package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Logging   LoggingConfig
	Anomaly   AnomalyConfig
	Scanner   ScannerConfig
	Providers ProvidersConfig
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	Environment     string
	RateLimitRPS    float64
	RateLimitBurst  int
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// For SQLite
	Path string
}

// AuthConfig contains authentication configuration
type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string
	Format     string // json or console
	OutputPath string
}

// AnomalyConfig contains anomaly detection defaults
type AnomalyConfig struct {
	DefaultMethod        string
	DefaultThreshold     float64
	DefaultLookbackDays  int
	MinPoints            int
	ContextMinPoints     int
	IsolationTrees       int
	IsolationSampleSize  int
	IsolationSeed        int64
	DensityNeighborRatio float64
	DensityMinNeighbors  int
	SeasonalityThreshold float64
	Parallel             bool
}

// ScannerConfig contains the scheduled anomaly scan configuration
type ScannerConfig struct {
	Enabled          bool
	Schedule         string
	UserIDs          []int64
	LookbackDays     int
	SyncBeforeDetect bool

	// Slack alerts for fresh anomalies; disabled when SlackWebhookURL is empty
	SlackWebhookURL   string
	SlackChannel      string
	NotifyMinSeverity string
}

// ProvidersConfig contains cloud billing credentials
type ProvidersConfig struct {
	AWS   AWSConfig
	GCP   GCPConfig
	Azure AzureConfig
}

// AWSConfig contains AWS Cost Explorer credentials
type AWSConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// GCPConfig contains BigQuery billing export settings
type GCPConfig struct {
	ProjectID       string
	CredentialsJSON string
	BillingDataset  string
	BillingTable    string
}

// AzureConfig contains Azure Cost Management credentials
type AzureConfig struct {
	TenantID       string
	ClientID       string
	ClientSecret   string
	SubscriptionID string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors as it's optional)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
			Environment:     getEnv("ENVIRONMENT", "development"),
			RateLimitRPS:    getEnvAsFloat("RATE_LIMIT_RPS", 10),
			RateLimitBurst:  getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "costlens"),
			User:            getEnv("DB_USER", ""),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			Path:            getEnv("DB_PATH", "./costlens.db"),
		},
		Auth: AuthConfig{
			JWTSecret:         getEnv("JWT_SECRET", "supersecretkey"),
			AccessTokenExpiry: getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			OutputPath: getEnv("LOG_OUTPUT", ""),
		},
		Anomaly: AnomalyConfig{
			DefaultMethod:        getEnv("ANOMALY_METHOD", "ensemble"),
			DefaultThreshold:     getEnvAsFloat("ANOMALY_THRESHOLD", 2.5),
			DefaultLookbackDays:  getEnvAsInt("ANOMALY_LOOKBACK_DAYS", 30),
			MinPoints:            getEnvAsInt("ANOMALY_MIN_POINTS", 5),
			ContextMinPoints:     getEnvAsInt("ANOMALY_CONTEXT_MIN_POINTS", 7),
			IsolationTrees:       getEnvAsInt("ANOMALY_ISOLATION_TREES", 100),
			IsolationSampleSize:  getEnvAsInt("ANOMALY_ISOLATION_SAMPLE_SIZE", 256),
			IsolationSeed:        int64(getEnvAsInt("ANOMALY_ISOLATION_SEED", 42)),
			DensityNeighborRatio: getEnvAsFloat("ANOMALY_DENSITY_NEIGHBOR_RATIO", 0.05),
			DensityMinNeighbors:  getEnvAsInt("ANOMALY_DENSITY_MIN_NEIGHBORS", 3),
			SeasonalityThreshold: getEnvAsFloat("ANOMALY_SEASONALITY_THRESHOLD", 0.3),
			Parallel:             getEnvAsBool("ANOMALY_PARALLEL", true),
		},
		Scanner: ScannerConfig{
			Enabled:          getEnvAsBool("SCANNER_ENABLED", false),
			Schedule:         getEnv("SCANNER_SCHEDULE", "0 6 * * *"),
			UserIDs:          getEnvAsInt64Slice("SCANNER_USER_IDS", nil),
			LookbackDays:     getEnvAsInt("SCANNER_LOOKBACK_DAYS", 30),
			SyncBeforeDetect: getEnvAsBool("SCANNER_SYNC_BEFORE_DETECT", true),

			SlackWebhookURL:   getEnv("SLACK_WEBHOOK_URL", ""),
			SlackChannel:      getEnv("SLACK_CHANNEL", ""),
			NotifyMinSeverity: getEnv("NOTIFY_MIN_SEVERITY", "high"),
		},
		Providers: ProvidersConfig{
			AWS: AWSConfig{
				AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
				SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
				Region:          getEnv("AWS_REGION", "us-east-1"),
			},
			GCP: GCPConfig{
				ProjectID:       getEnv("GCP_PROJECT_ID", ""),
				CredentialsJSON: getEnv("GCP_CREDENTIALS_JSON", ""),
				BillingDataset:  getEnv("GCP_BILLING_DATASET", "billing_export"),
				BillingTable:    getEnv("GCP_BILLING_TABLE", "gcp_billing_export_v1"),
			},
			Azure: AzureConfig{
				TenantID:       getEnv("AZURE_TENANT_ID", ""),
				ClientID:       getEnv("AZURE_CLIENT_ID", ""),
				ClientSecret:   getEnv("AZURE_CLIENT_SECRET", ""),
				SubscriptionID: getEnv("AZURE_SUBSCRIPTION_ID", ""),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Environment == "production" && (c.Auth.JWTSecret == "" || c.Auth.JWTSecret == "supersecretkey") {
		return fmt.Errorf("JWT_SECRET must be set and should not use default value in production")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	switch c.Anomaly.DefaultMethod {
	case "zscore", "isolation", "density", "decomposition", "ensemble":
	default:
		return fmt.Errorf("unsupported anomaly method: %s", c.Anomaly.DefaultMethod)
	}

	if c.Anomaly.DefaultThreshold <= 0 {
		return fmt.Errorf("anomaly threshold must be positive: %v", c.Anomaly.DefaultThreshold)
	}

	switch c.Scanner.NotifyMinSeverity {
	case "", "low", "medium", "high", "critical":
	default:
		return fmt.Errorf("unsupported notify severity: %s", c.Scanner.NotifyMinSeverity)
	}

	if c.Scanner.Enabled && c.Scanner.Schedule == "" {
		return fmt.Errorf("SCANNER_SCHEDULE must be set when the scanner is enabled")
	}

	return nil
}

// Helper functions

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
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
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
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvAsInt64Slice(key string, defaultValue []int64) []int64 {
	parts := getEnvAsSlice(key, nil)
	if len(parts) == 0 {
		return defaultValue
	}
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return defaultValue
		}
		out = append(out, v)
	}
	return out
}
