package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabasePath  string
	ServerAddress string
	JWTSecret     string
	EncryptionKey string
	CronSecret    string
	SyncInterval  time.Duration
	ReportsDir    string

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string
}

func Load() *Config {
	return &Config{
		DatabasePath:  getEnv("DATABASE_PATH", "./evsync.db"),
		ServerAddress: getEnv("SERVER_ADDRESS", ":8081"),
		JWTSecret:     getEnv("JWT_SECRET", "evsync-secret-change-in-production"),
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		CronSecret:    getEnv("CRON_SECRET", ""),
		SyncInterval:  time.Duration(getEnvInt("SYNC_INTERVAL_MINUTES", 15)) * time.Minute,
		ReportsDir:    getEnv("REPORTS_DIR", "./reports"),

		SMTPHost: getEnv("SMTP_HOST", ""),
		SMTPPort: getEnvInt("SMTP_PORT", 587),
		SMTPUser: getEnv("SMTP_USER", ""),
		SMTPPass: getEnv("SMTP_PASS", ""),
		SMTPFrom: getEnv("SMTP_FROM", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
