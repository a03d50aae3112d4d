package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Neo4j          Neo4jConfig          `mapstructure:"neo4j"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Learning       LearningConfig       `mapstructure:"learning"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	AI             AIConfig             `mapstructure:"ai"`
	Weather        WeatherConfig        `mapstructure:"weather"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
	Security       SecurityConfig       `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Neo4jConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		FeedbackEvents string `mapstructure:"feedback_events"`
	} `mapstructure:"topics"`
}

type AuthConfig struct {
	JWTSecret string          `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration   `mapstructure:"token_ttl"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Default int           `mapstructure:"default"`
	Plus    int           `mapstructure:"plus"`
	Window  time.Duration `mapstructure:"window"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LearningConfig exposes the thresholds of the learning engine. The minimums
// are deliberately low by default so users see partial data quickly; raising
// them trades early visibility for statistical confidence.
type LearningConfig struct {
	MinFeedbackForLearning int `mapstructure:"min_feedback_for_learning"`
	MinSignalsPerFeature   int `mapstructure:"min_signals_per_feature"`
	MinPairsForScoring     int `mapstructure:"min_pairs_for_scoring"`
	// SubstituteRating is the synthetic rating credited to item pairs the
	// user wore instead of a recommendation.
	SubstituteRating int `mapstructure:"substitute_rating"`
	// ScoreShrinkage > 0 shrinks low-sample color/style scores toward zero
	// by n/(n+k). Zero disables shrinkage.
	ScoreShrinkage float64 `mapstructure:"score_shrinkage"`
	// WashInterval is the wear count at which an item without its own
	// wash_interval is marked needs_wash.
	WashInterval        int           `mapstructure:"wash_interval"`
	ProfileStaleAfter   time.Duration `mapstructure:"profile_stale_after"`
	RefreshInterval     time.Duration `mapstructure:"refresh_interval"`
	InsightExpiry       time.Duration `mapstructure:"insight_expiry"`
	PreferenceCacheTTL  time.Duration `mapstructure:"preference_cache_ttl"`
	PairGraphScoreFloor float64       `mapstructure:"pair_graph_score_floor"`
	PairGraphBatchSize  int           `mapstructure:"pair_graph_batch_size"`
	PairGraphFlushEvery time.Duration `mapstructure:"pair_graph_flush_every"`
}

type RecommendationConfig struct {
	MinCandidates       int `mapstructure:"min_candidates"`
	WornCombinationDays int `mapstructure:"worn_combination_days"`
	// ApplyContextFilters turns on the season/weather/formality candidate
	// filters. Off by default: the model sees the whole usable wardrobe and
	// the prompt carries the context instead.
	ApplyContextFilters  bool          `mapstructure:"apply_context_filters"`
	DefaultColdThreshold float64       `mapstructure:"default_cold_threshold"`
	DefaultHotThreshold  float64       `mapstructure:"default_hot_threshold"`
	SensitivityShift     float64       `mapstructure:"sensitivity_shift"`
	GoodPairScoreFloor   float64       `mapstructure:"good_pair_score_floor"`
	GoodPairLimit        int           `mapstructure:"good_pair_limit"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
}

type AIConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxTokens int           `mapstructure:"max_tokens"`
}

type WeatherConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	// Environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	// Neo4j defaults
	viper.SetDefault("neo4j.enabled", false)

	// Kafka defaults
	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.topics.feedback_events", "outfit-feedback-events")

	// Auth defaults
	viper.SetDefault("auth.token_ttl", "24h")
	viper.SetDefault("auth.rate_limit.default", 1000)
	viper.SetDefault("auth.rate_limit.plus", 5000)
	viper.SetDefault("auth.rate_limit.window", "1h")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Learning defaults
	viper.SetDefault("learning.min_feedback_for_learning", 1)
	viper.SetDefault("learning.min_signals_per_feature", 1)
	viper.SetDefault("learning.min_pairs_for_scoring", 2)
	viper.SetDefault("learning.substitute_rating", 5)
	viper.SetDefault("learning.score_shrinkage", 0.0)
	viper.SetDefault("learning.wash_interval", 3)
	viper.SetDefault("learning.profile_stale_after", "1h")
	viper.SetDefault("learning.refresh_interval", "1h")
	viper.SetDefault("learning.insight_expiry", "720h")
	viper.SetDefault("learning.preference_cache_ttl", "15m")
	viper.SetDefault("learning.pair_graph_score_floor", 0.3)
	viper.SetDefault("learning.pair_graph_batch_size", 50)
	viper.SetDefault("learning.pair_graph_flush_every", "30s")

	// Recommendation defaults
	viper.SetDefault("recommendation.min_candidates", 2)
	viper.SetDefault("recommendation.worn_combination_days", 7)
	viper.SetDefault("recommendation.apply_context_filters", false)
	viper.SetDefault("recommendation.default_cold_threshold", 10.0)
	viper.SetDefault("recommendation.default_hot_threshold", 25.0)
	viper.SetDefault("recommendation.sensitivity_shift", 5.0)
	viper.SetDefault("recommendation.good_pair_score_floor", 0.3)
	viper.SetDefault("recommendation.good_pair_limit", 50)
	viper.SetDefault("recommendation.request_timeout", "60s")

	// AI defaults
	viper.SetDefault("ai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("ai.model", "gpt-4o-mini")
	viper.SetDefault("ai.timeout", "45s")
	viper.SetDefault("ai.max_tokens", 1024)

	// Weather defaults
	viper.SetDefault("weather.base_url", "https://api.open-meteo.com")
	viper.SetDefault("weather.timeout", "10s")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
