package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("PORT", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "postgres", cfg.DB.Type)
	assert.Equal(t, 5*time.Minute, cfg.Redis.ProfileCacheTTL)
	assert.Equal(t, "notifications.created", cfg.Kafka.NotificationTopic)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("PROFILE_CACHE_TTL", "30s")
	t.Setenv("APP_BASE_URL", "https://rides.example/")
	t.Setenv("SMTP_ADDR", "smtp.example.com:587")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "secret", cfg.JWTSecret)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30*time.Second, cfg.Redis.ProfileCacheTTL)
	assert.Equal(t, "https://rides.example", cfg.AppBaseURL)
	assert.Equal(t, "smtp.example.com:587", cfg.SMTP.Addr)
	assert.NotEmpty(t, cfg.SMTP.From)
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name    string
		db      DBConfig
		want    string
		wantErr bool
	}{
		{
			name: "database url wins",
			db:   DBConfig{Type: "postgres", URL: "postgres://u@h/db", Host: "ignored"},
			want: "postgres://u@h/db",
		},
		{
			name: "built from parts",
			db:   DBConfig{Type: "postgres", Host: "db", Port: "5432", Name: "rides", User: "app", Password: "pw"},
			want: "postgres://app:pw@db:5432/rides?sslmode=disable",
		},
		{
			name:    "missing parts",
			db:      DBConfig{Type: "postgres", Host: "db"},
			wantErr: true,
		},
		{
			name: "memory needs nothing",
			db:   DBConfig{Type: "memory"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{DB: tt.db}
			got, err := cfg.DSN()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{DB: DBConfig{Type: "memory"}}
	assert.Error(t, cfg.Validate())

	cfg.JWTSecret = "s"
	assert.NoError(t, cfg.Validate())
}
