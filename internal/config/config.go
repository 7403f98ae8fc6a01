package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT (web dashboard sessions)
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// Telegram
	BotToken    string
	AdminChatID string
	// Login-widget payloads older than this are rejected.
	LoginMaxAge time.Duration

	// Shared-secret auth
	ServiceToken     string // bot -> backend calls
	WebhookToken     string // payment gateway -> webhook endpoint
	AdminToken       string // reconciliation endpoints (plain)
	AdminTokenBcrypt string // reconciliation endpoints (bcrypt hash, preferred)

	// Entitlements
	Timezone      string
	TrialSessions int

	// Server
	Port        string
	CORSOrigins string
}

func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "somaprep"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "15m"), 15*time.Minute),
		JWTRefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "168h"), 168*time.Hour),

		BotToken:    getEnv("BOT_TOKEN", ""),
		AdminChatID: getEnv("TG_ADMIN_CHAT_ID", ""),
		LoginMaxAge: parseDuration(getEnv("TG_LOGIN_MAX_AGE", "24h"), 24*time.Hour),

		ServiceToken:     getEnv("SERVICE_TOKEN", ""),
		WebhookToken:     getEnv("MPESA_WEBHOOK_TOKEN", ""),
		AdminToken:       getEnv("ADMIN_TOKEN", ""),
		AdminTokenBcrypt: getEnv("ADMIN_TOKEN_BCRYPT", ""),

		Timezone:      getEnv("QUOTA_TIMEZONE", "Africa/Nairobi"),
		TrialSessions: parseInt(getEnv("TRIAL_SESSIONS", "2"), 2),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
