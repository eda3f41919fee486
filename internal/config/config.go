// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultJWTSecret = "your-secret-key-change-in-production"
	minProdSecretLen = 32
)

// Media drivers.
const (
	MediaDriverS3    = "s3"
	MediaDriverLocal = "local"
)

// Event drivers.
const (
	EventsDriverRedis = "redis"
	EventsDriverKafka = "kafka"
	EventsDriverNone  = "none"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret   string `mapstructure:"JWT_SECRET"`
	JWTTTLHours int    `mapstructure:"JWT_TTL_HOURS"`
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"APP_ENV"`

	DBHost       string `mapstructure:"DB_HOST"`
	DBPort       string `mapstructure:"DB_PORT"`
	DBUser       string `mapstructure:"DB_USER"`
	DBPassword   string `mapstructure:"DB_PASSWORD"`
	DBName       string `mapstructure:"DB_NAME"`
	DBSSLMode    string `mapstructure:"DB_SSLMODE"`
	DBSchemaMode string `mapstructure:"DB_SCHEMA_MODE"`

	DBMaxOpenConns                int  `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns                int  `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes      int  `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`
	DBAutoMigrateAllowDestructive bool `mapstructure:"DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE"`

	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`

	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `mapstructure:"GOOGLE_REDIRECT_URL"`
	FrontendURL        string `mapstructure:"FRONTEND_URL"`

	MediaDriver        string `mapstructure:"MEDIA_DRIVER"`
	MediaS3Bucket      string `mapstructure:"MEDIA_S3_BUCKET"`
	MediaS3Region      string `mapstructure:"MEDIA_S3_REGION"`
	MediaS3Folder      string `mapstructure:"MEDIA_S3_FOLDER"`
	MediaPublicBaseURL string `mapstructure:"MEDIA_PUBLIC_BASE_URL"`
	MediaLocalDir      string `mapstructure:"MEDIA_LOCAL_DIR"`
	MediaMaxUploadMB   int    `mapstructure:"MEDIA_MAX_UPLOAD_MB"`

	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`

	EventsDriver string `mapstructure:"EVENTS_DRIVER"`
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string `mapstructure:"KAFKA_TOPIC"`

	SearchCacheTTLSeconds int `mapstructure:"SEARCH_CACHE_TTL_SECONDS"`
	FeaturedSweepMinutes  int `mapstructure:"FEATURED_SWEEP_MINUTES"`

	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint        string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		slog.Info("loaded profile config", slog.String("file", "config."+env+".yml"))
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

var defaults = map[string]any{
	"PORT":                             "8375",
	"APP_ENV":                          "development",
	"JWT_SECRET":                       defaultJWTSecret,
	"JWT_TTL_HOURS":                    24 * 7,
	"DB_HOST":                          "localhost",
	"DB_PORT":                          "5432",
	"DB_USER":                          "user",
	"DB_PASSWORD":                      "password",
	"DB_NAME":                          "rentonmap",
	"DB_SSLMODE":                       "disable",
	"DB_SCHEMA_MODE":                   "hybrid",
	"DB_MAX_OPEN_CONNS":                25,
	"DB_MAX_IDLE_CONNS":                5,
	"DB_CONN_MAX_LIFETIME_MINUTES":     5,
	"DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE": false,
	"REDIS_URL":                        "localhost:6379",
	"ALLOWED_ORIGINS":                  "http://localhost:3000,http://127.0.0.1:3000",
	"FEATURE_FLAGS":                    "",
	"GOOGLE_CLIENT_ID":                 "",
	"GOOGLE_CLIENT_SECRET":             "",
	"GOOGLE_REDIRECT_URL":              "http://localhost:8375/api/auth/google/callback",
	"FRONTEND_URL":                     "",
	"MEDIA_DRIVER":                     MediaDriverLocal,
	"MEDIA_S3_BUCKET":                  "",
	"MEDIA_S3_REGION":                  "us-east-1",
	"MEDIA_S3_FOLDER":                  "rental_properties_pictures",
	"MEDIA_PUBLIC_BASE_URL":            "",
	"MEDIA_LOCAL_DIR":                  "/tmp/rentonmap/media",
	"MEDIA_MAX_UPLOAD_MB":              10,
	"MONGO_URI":                        "",
	"MONGO_DATABASE":                   "rentonmap",
	"EVENTS_DRIVER":                    EventsDriverRedis,
	"KAFKA_BROKERS":                    "localhost:9092",
	"KAFKA_TOPIC":                      "rentonmap.messages",
	"SEARCH_CACHE_TTL_SECONDS":         30,
	"FEATURED_SWEEP_MINUTES":           10,
	"TRACING_ENABLED":                  false,
	"TRACING_EXPORTER":                 "stdout",
	"OTLP_ENDPOINT":                    "localhost:4318",
	"TRACING_SAMPLER_RATIO":            1.0,
}

// setDefaults registers every key so AutomaticEnv overrides reach Unmarshal.
func setDefaults() {
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}
}

func (c *Config) normalize() {
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.MediaDriver = strings.ToLower(strings.TrimSpace(c.MediaDriver))
	c.EventsDriver = strings.ToLower(strings.TrimSpace(c.EventsDriver))
	c.FrontendURL = strings.TrimRight(c.FrontendURL, "/")
}

// IsProduction reports whether the config targets a production environment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// KafkaBrokerList splits KAFKA_BROKERS on commas.
func (c *Config) KafkaBrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Validate checks driver selections everywhere and, in production, the
// secrets and transport settings a public deployment must not leave at their
// development defaults. All production violations are reported together.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if err := c.validateDrivers(); err != nil {
		return err
	}

	if !c.IsProduction() {
		if len(c.JWTSecret) < minProdSecretLen {
			slog.Warn("JWT_SECRET is shorter than 32 characters; production will reject it")
		}
		return nil
	}
	if c.AllowedOrigins == "*" {
		slog.Warn("ALLOWED_ORIGINS is '*' in production")
	}

	var errs []error
	check := func(bad bool, msg string) {
		if bad {
			errs = append(errs, errors.New(msg))
		}
	}
	check(c.JWTSecret == defaultJWTSecret, "JWT_SECRET still has the development default")
	check(len(c.JWTSecret) < minProdSecretLen, "JWT_SECRET must be at least 32 characters")
	check(c.DBPassword == "" || c.DBPassword == "password", "DB_PASSWORD must be set to a real password")
	check(c.DBSSLMode == "" || c.DBSSLMode == "disable", "DB_SSLMODE must enable TLS")
	check(c.GoogleClientID == "" || c.GoogleClientSecret == "", "GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	check(c.MediaDriver != MediaDriverS3, "MEDIA_DRIVER must be s3")
	return errors.Join(errs...)
}

func (c *Config) validateDrivers() error {
	switch c.MediaDriver {
	case "", MediaDriverLocal:
	case MediaDriverS3:
		if c.MediaS3Bucket == "" {
			return errors.New("MEDIA_DRIVER=s3 needs MEDIA_S3_BUCKET")
		}
	default:
		return fmt.Errorf("unsupported MEDIA_DRIVER %q", c.MediaDriver)
	}

	switch c.EventsDriver {
	case "", EventsDriverRedis, EventsDriverNone:
	case EventsDriverKafka:
		if len(c.KafkaBrokerList()) == 0 {
			return errors.New("EVENTS_DRIVER=kafka needs KAFKA_BROKERS")
		}
	default:
		return fmt.Errorf("unsupported EVENTS_DRIVER %q", c.EventsDriver)
	}
	return nil
}
