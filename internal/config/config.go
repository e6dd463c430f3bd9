package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	FetchRSS   FetchRSSConfig   `yaml:"fetchrss"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	SES        SESConfig        `yaml:"ses"`
	Digest     DigestConfig     `yaml:"digest"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds optional Redis settings used for slot-run locking
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// FetchRSSConfig holds FetchRSS.com feed-proxy API configuration
type FetchRSSConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c FetchRSSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SummarizerConfig selects and configures the digest summarization provider
type SummarizerConfig struct {
	Provider string        `yaml:"provider"` // "openai" or "bedrock"
	OpenAI   OpenAIConfig  `yaml:"openai"`
	Bedrock  BedrockConfig `yaml:"bedrock"`
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c OpenAIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BedrockConfig holds AWS Bedrock model configuration
type BedrockConfig struct {
	ModelID string `yaml:"model_id"`
	Region  string `yaml:"region"`
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	FromName  string `yaml:"from_name"`
	FromEmail string `yaml:"from_email"`
}

// DigestConfig holds pipeline tuning knobs
type DigestConfig struct {
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds"`
	MaxConcurrentUsers  int `yaml:"max_concurrent_users"`
	MaxConcurrentFeeds  int `yaml:"max_concurrent_feeds"`
	TestSampleSize      int `yaml:"test_sample_size"`
}

// FetchTimeout returns the per-feed fetch timeout as a duration
func (c DigestConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.FetchRSS.BaseURL == "" {
		cfg.FetchRSS.BaseURL = "https://fetchrss.com/api/v2"
	}
	if cfg.FetchRSS.TimeoutSeconds == 0 {
		cfg.FetchRSS.TimeoutSeconds = 30
	}
	if cfg.Summarizer.Provider == "" {
		cfg.Summarizer.Provider = "openai"
	}
	if cfg.Summarizer.OpenAI.Model == "" {
		cfg.Summarizer.OpenAI.Model = "gpt-4.1-mini"
	}
	if cfg.Summarizer.OpenAI.TimeoutSeconds == 0 {
		cfg.Summarizer.OpenAI.TimeoutSeconds = 120
	}
	if cfg.Summarizer.Bedrock.ModelID == "" {
		cfg.Summarizer.Bedrock.ModelID = "anthropic.claude-3-5-sonnet-20240620-v1:0"
	}
	if cfg.Summarizer.Bedrock.Region == "" {
		cfg.Summarizer.Bedrock.Region = "us-east-1"
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SES.FromName == "" {
		cfg.SES.FromName = "InfoCapsule"
	}
	if cfg.SES.FromEmail == "" {
		cfg.SES.FromEmail = "digest@infocapsule.today"
	}
	if cfg.Digest.FetchTimeoutSeconds == 0 {
		cfg.Digest.FetchTimeoutSeconds = 30
	}
	if cfg.Digest.MaxConcurrentUsers == 0 {
		cfg.Digest.MaxConcurrentUsers = 10
	}
	if cfg.Digest.MaxConcurrentFeeds == 0 {
		cfg.Digest.MaxConcurrentFeeds = 5
	}
	if cfg.Digest.TestSampleSize == 0 {
		cfg.Digest.TestSampleSize = 5
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if apiKey := os.Getenv("FETCHRSS_API_KEY"); apiKey != "" {
		cfg.FetchRSS.APIKey = apiKey
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.Summarizer.OpenAI.APIKey = apiKey
	}
	if provider := os.Getenv("SUMMARIZER_PROVIDER"); provider != "" {
		cfg.Summarizer.Provider = provider
	}
	if accessKey := os.Getenv("AWS_SES_ACCESS_KEY"); accessKey != "" {
		cfg.SES.AccessKey = accessKey
	}
	if secretKey := os.Getenv("AWS_SES_SECRET_KEY"); secretKey != "" {
		cfg.SES.SecretKey = secretKey
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.SES.Region = region
	}
	if from := os.Getenv("DIGEST_FROM_EMAIL"); from != "" {
		cfg.SES.FromEmail = from
	}

	return cfg, nil
}
