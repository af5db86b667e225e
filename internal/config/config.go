package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the retention analytics service
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// ScoreTTLSeconds is how long a cached health score stays valid.
	ScoreTTLSeconds int `mapstructure:"score_ttl_seconds"`
}

// KafkaConfig holds Kafka producer configuration
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	Enabled bool     `mapstructure:"enabled"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	ServiceName    string  `mapstructure:"service_name"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SamplingRatio  float64 `mapstructure:"sampling_ratio"`
}

// ScoringConfig holds all tunables for health scoring, churn prediction
// and report computation.
type ScoringConfig struct {
	// PageSize is the fixed page size used when aggregating full result
	// sets from the store. Matches the store's single-request row cap.
	PageSize int `mapstructure:"page_size"`

	// Sub-score weights. Must sum to 1.0.
	RecencyWeight   float64 `mapstructure:"recency_weight"`
	FrequencyWeight float64 `mapstructure:"frequency_weight"`
	ValueWeight     float64 `mapstructure:"value_weight"`
	TrendWeight     float64 `mapstructure:"trend_weight"`
	EngageWeight    float64 `mapstructure:"engagement_weight"`

	// StalenessHorizonDays is the number of days without revenue after
	// which the recency sub-score bottoms out at 0.
	StalenessHorizonDays int `mapstructure:"staleness_horizon_days"`

	// TrailingMonths is the window for frequency/value/trend sub-scores.
	TrailingMonths int `mapstructure:"trailing_months"`

	// EngagementWindowDays is the trailing interaction window.
	EngagementWindowDays int `mapstructure:"engagement_window_days"`

	// ChurnInactivityDays is how long a client must remain inactive after
	// a pending churn event opens before it resolves to churned.
	ChurnInactivityDays int `mapstructure:"churn_inactivity_days"`

	// BulkConcurrency bounds the worker pool for bulk recomputation.
	BulkConcurrency int `mapstructure:"bulk_concurrency"`
}

// WorkerConfig holds the periodic worker configuration
type WorkerConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Scoring.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.score_ttl_seconds", 3600)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "retention.lifecycle")
	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.service_name", "retention-service")
	viper.SetDefault("tracing.jaeger_endpoint", "http://localhost:14268/api/traces")
	viper.SetDefault("tracing.sampling_ratio", 1.0)
	viper.SetDefault("worker.interval_seconds", 3600)

	viper.SetDefault("scoring.page_size", 1000)
	viper.SetDefault("scoring.recency_weight", 0.30)
	viper.SetDefault("scoring.frequency_weight", 0.25)
	viper.SetDefault("scoring.value_weight", 0.20)
	viper.SetDefault("scoring.trend_weight", 0.15)
	viper.SetDefault("scoring.engagement_weight", 0.10)
	viper.SetDefault("scoring.staleness_horizon_days", 180)
	viper.SetDefault("scoring.trailing_months", 6)
	viper.SetDefault("scoring.engagement_window_days", 90)
	viper.SetDefault("scoring.churn_inactivity_days", 90)
	viper.SetDefault("scoring.bulk_concurrency", 8)
}

// Validate checks that scoring tunables are internally consistent.
func (c ScoringConfig) Validate() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("scoring.page_size must be positive, got %d", c.PageSize)
	}
	sum := c.RecencyWeight + c.FrequencyWeight + c.ValueWeight + c.TrendWeight + c.EngageWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %.3f", sum)
	}
	if c.StalenessHorizonDays <= 0 {
		return fmt.Errorf("scoring.staleness_horizon_days must be positive, got %d", c.StalenessHorizonDays)
	}
	if c.TrailingMonths <= 0 {
		return fmt.Errorf("scoring.trailing_months must be positive, got %d", c.TrailingMonths)
	}
	if c.BulkConcurrency <= 0 {
		return fmt.Errorf("scoring.bulk_concurrency must be positive, got %d", c.BulkConcurrency)
	}
	return nil
}

// DefaultScoring returns the standard scoring configuration, used by
// tests and local runs without a config file.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		PageSize:             1000,
		RecencyWeight:        0.30,
		FrequencyWeight:      0.25,
		ValueWeight:          0.20,
		TrendWeight:          0.15,
		EngageWeight:         0.10,
		StalenessHorizonDays: 180,
		TrailingMonths:       6,
		EngagementWindowDays: 90,
		ChurnInactivityDays:  90,
		BulkConcurrency:      8,
	}
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// GetRedisAddr returns the Redis connection address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
