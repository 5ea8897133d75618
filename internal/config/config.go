package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port     string
	LogLevel string

	// SQLite file holding job state and chat transcripts
	DatabasePath string

	// "s3" or "memory"
	StorageBackend string

	// S3 staging bucket for uploads in flight
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3BucketName      string
	S3UseSSL          bool

	// Remote analysis service
	AnalyzerBaseURL string
	AnalyzerTimeout time.Duration

	// Upload limits
	MaxFileSize int64

	// Pipeline
	MaxConcurrentJobs int
	JobRetention      time.Duration
	CleanupInterval   time.Duration

	AllowedOrigins []string
}

// Load reads .env (if present), a config.yaml (if present) and the environment.
// Environment variables win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8081")
	v.SetDefault("log_level", "info")
	v.SetDefault("database_path", "data/analyzer.db")
	v.SetDefault("storage_backend", "s3")
	v.SetDefault("s3_endpoint", "localhost:9000")
	v.SetDefault("s3_access_key_id", "minioadmin")
	v.SetDefault("s3_secret_access_key", "minioadmin")
	v.SetDefault("s3_bucket_name", "legal-uploads")
	v.SetDefault("s3_use_ssl", false)
	v.SetDefault("analyzer_base_url", "http://localhost:8080")
	v.SetDefault("analyzer_timeout", "5m")
	v.SetDefault("max_file_size", 10*1024*1024)
	v.SetDefault("max_concurrent_jobs", 4)
	v.SetDefault("job_retention", "24h")
	v.SetDefault("cleanup_interval", "10m")
	v.SetDefault("allowed_origins", "http://localhost:3000")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:              v.GetString("port"),
		LogLevel:          v.GetString("log_level"),
		DatabasePath:      v.GetString("database_path"),
		StorageBackend:    strings.ToLower(v.GetString("storage_backend")),
		S3Endpoint:        v.GetString("s3_endpoint"),
		S3AccessKeyID:     v.GetString("s3_access_key_id"),
		S3SecretAccessKey: v.GetString("s3_secret_access_key"),
		S3BucketName:      v.GetString("s3_bucket_name"),
		S3UseSSL:          v.GetBool("s3_use_ssl"),
		AnalyzerBaseURL:   strings.TrimRight(v.GetString("analyzer_base_url"), "/"),
		AnalyzerTimeout:   v.GetDuration("analyzer_timeout"),
		MaxFileSize:       v.GetInt64("max_file_size"),
		MaxConcurrentJobs: v.GetInt("max_concurrent_jobs"),
		JobRetention:      v.GetDuration("job_retention"),
		CleanupInterval:   v.GetDuration("cleanup_interval"),
		AllowedOrigins:    splitList(v.GetString("allowed_origins")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	u, err := url.Parse(c.AnalyzerBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("ANALYZER_BASE_URL must be an absolute URL, got %q", c.AnalyzerBaseURL)
	}
	if c.AnalyzerTimeout <= 0 {
		return fmt.Errorf("ANALYZER_TIMEOUT must be positive")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	}
	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1")
	}
	switch c.StorageBackend {
	case "memory":
	case "s3":
		if c.S3Endpoint == "" {
			return fmt.Errorf("S3_ENDPOINT cannot be empty")
		}
		if c.S3BucketName == "" {
			return fmt.Errorf("S3_BUCKET_NAME cannot be empty")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be s3 or memory, got %q", c.StorageBackend)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
