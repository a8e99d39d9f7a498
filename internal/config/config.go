package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env            string
	Port           string
	JWTSecret      string
	AllowedOrigins []string
	LogLevel       string
	AppBaseURL     string

	DB    DBConfig
	Redis RedisConfig
	Kafka KafkaConfig
	SMTP  SMTPConfig
}

type DBConfig struct {
	Type     string
	URL      string
	Host     string
	Port     string
	Name     string
	User     string
	Password string
}

type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	ProfileCacheTTL time.Duration
}

type KafkaConfig struct {
	Brokers           []string
	NotificationTopic string
	GroupID           string
}

// SMTPConfig is only read by the notifier; an empty Addr logs mail instead
type SMTPConfig struct {
	Addr     string
	Username string
	Password string
	From     string
}

// LoadEnvFile loads variables from a .env file in the working directory.
// Variables already present in the environment win.
func LoadEnvFile() error {
	return godotenv.Load()
}

// Load reads the configuration from the process environment.
func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_TYPE", "postgres")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_BASE_URL", "http://localhost:5173")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("PROFILE_CACHE_TTL", "5m")
	v.SetDefault("KAFKA_NOTIFICATION_TOPIC", "notifications.created")
	v.SetDefault("KAFKA_GROUP_ID", "notifier")
	v.SetDefault("MAIL_FROM", "RideShare <noreply@rideshare.local>")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Env:            v.GetString("ENV"),
		Port:           v.GetString("PORT"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		LogLevel:       v.GetString("LOG_LEVEL"),
		AppBaseURL:     strings.TrimRight(v.GetString("APP_BASE_URL"), "/"),
		DB: DBConfig{
			Type:     v.GetString("DB_TYPE"),
			URL:      v.GetString("DATABASE_URL"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
		},
		Redis: RedisConfig{
			Addr:            v.GetString("REDIS_ADDR"),
			Password:        v.GetString("REDIS_PASSWORD"),
			DB:              v.GetInt("REDIS_DB"),
			ProfileCacheTTL: v.GetDuration("PROFILE_CACHE_TTL"),
		},
		Kafka: KafkaConfig{
			Brokers:           splitList(v.GetString("KAFKA_BROKERS")),
			NotificationTopic: v.GetString("KAFKA_NOTIFICATION_TOPIC"),
			GroupID:           v.GetString("KAFKA_GROUP_ID"),
		},
		SMTP: SMTPConfig{
			Addr:     v.GetString("SMTP_ADDR"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			From:     v.GetString("MAIL_FROM"),
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DSN returns DATABASE_URL, or builds a postgres URL from the DB_* variables.
func (c *Config) DSN() (string, error) {
	if c.DB.URL != "" || c.DB.Type == "memory" {
		return c.DB.URL, nil
	}
	if c.DB.Host == "" || c.DB.Name == "" || c.DB.User == "" {
		return "", errors.New("database connection details missing. Set DATABASE_URL or individual DB_* variables")
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name,
	), nil
}

// Validate checks the settings the HTTP server cannot start without.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	if _, err := c.DSN(); err != nil {
		return err
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.Env == "production" }
