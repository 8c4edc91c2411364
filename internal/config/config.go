package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr      string
	DBDriver  string
	DBDSN     string
	StaticDir string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// Load reads configuration from the environment, optionally seeded from an
// env file. A missing default .env is fine; a named file must exist.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, err
		}
	} else {
		// Best effort only.
		_ = godotenv.Load()
	}

	return &Config{
		Addr:         getenv("ADDR", ":8080"),
		DBDriver:     getenv("DB_DRIVER", "sqlite3"),
		DBDSN:        getenv("DB_DSN", "sealchat.db"),
		StaticDir:    getenv("STATIC_DIR", "static"),
		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getenv("SMTP_PORT", "587"),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     os.Getenv("SMTP_FROM"),
	}, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
