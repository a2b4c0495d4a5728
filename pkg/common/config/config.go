package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers       []string
	KafkaGroupID       string
	KafkaCommandTopic  string
	KafkaAnalyticsTopic string

	// AI content service
	AIAPIKey    string
	AIBaseURL   string
	AIModelName string
	AITimeout   time.Duration

	// Credential vault
	VaultMasterKey   string
	TokenRefreshSkew time.Duration
	OAuthStateTTL    time.Duration
	OAuthRedirectURL string

	// Per-channel OAuth apps
	FacebookClientID     string
	FacebookClientSecret string
	MailerClientID       string
	MailerClientSecret   string

	// Channel API endpoints
	FacebookAPIBaseURL string
	WebsiteAPIBaseURL  string
	MailerAPIBaseURL   string

	// Publishing
	PublishTimeout     time.Duration
	PublishMaxAttempts int
	PublishBackoffBase time.Duration
	PublishInFlightTTL time.Duration
	ChannelRateLimit    int
	ChannelRatePeriod   time.Duration
	ScheduleScanSpec    string
	ScheduleScanTimeout time.Duration

	// Channel rules
	ChannelRulesPath string

	// Gateway
	RateLimitRPS   int
	RateLimitBurst int
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "brickfolio"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "brickfolio123"),
		PostgresDB:       getEnv("POSTGRES_DB", "brickfolio"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:        getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:        getEnv("KAFKA_GROUP_ID", "brickfolio-marketing"),
		KafkaCommandTopic:   getEnv("KAFKA_COMMAND_TOPIC", "marketing-commands"),
		KafkaAnalyticsTopic: getEnv("KAFKA_ANALYTICS_TOPIC", "marketing-analytics"),

		AIAPIKey:    getEnv("AI_API_KEY", ""),
		AIBaseURL:   getEnv("AI_BASE_URL", "https://api.openai.com/v1"),
		AIModelName: getEnv("AI_MODEL_NAME", "gpt-4"),
		AITimeout:   getDuration("AI_TIMEOUT", 30*time.Second),

		VaultMasterKey:   getEnv("VAULT_MASTER_KEY", ""),
		TokenRefreshSkew: getDuration("TOKEN_REFRESH_SKEW", 5*time.Minute),
		OAuthStateTTL:    getDuration("OAUTH_STATE_TTL", 10*time.Minute),
		OAuthRedirectURL: getEnv("OAUTH_REDIRECT_URL", "http://localhost:8080/api/v1/marketing/channels/callback"),

		FacebookClientID:     getEnv("FACEBOOK_CLIENT_ID", ""),
		FacebookClientSecret: getEnv("FACEBOOK_CLIENT_SECRET", ""),
		MailerClientID:       getEnv("MAILER_CLIENT_ID", ""),
		MailerClientSecret:   getEnv("MAILER_CLIENT_SECRET", ""),

		FacebookAPIBaseURL: getEnv("FACEBOOK_API_BASE_URL", ""),
		WebsiteAPIBaseURL:  getEnv("WEBSITE_API_BASE_URL", "http://localhost:3000"),
		MailerAPIBaseURL:   getEnv("MAILER_API_BASE_URL", "http://localhost:4000"),

		PublishTimeout:     getDuration("PUBLISH_TIMEOUT", 20*time.Second),
		PublishMaxAttempts: getIntEnv("PUBLISH_MAX_ATTEMPTS", 3),
		PublishBackoffBase: getDuration("PUBLISH_BACKOFF_BASE", 2*time.Second),
		PublishInFlightTTL: getDuration("PUBLISH_INFLIGHT_TTL", 5*time.Minute),
		ChannelRateLimit:    getIntEnv("CHANNEL_RATE_LIMIT", 10),
		ChannelRatePeriod:   getDuration("CHANNEL_RATE_PERIOD", time.Minute),
		ScheduleScanSpec:    getEnv("SCHEDULE_SCAN_SPEC", "@every 1m"),
		ScheduleScanTimeout: getDuration("SCHEDULE_SCAN_TIMEOUT", 5*time.Minute),

		ChannelRulesPath: getEnv("CHANNEL_RULES_PATH", ""),

		RateLimitRPS:   getIntEnv("GATEWAY_RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("GATEWAY_RATE_LIMIT_BURST", 100),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
