package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config is the server's environment configuration.
type Config struct {
	AppEnv    string
	HTTPAddr  string
	JWTSecret string

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
}

// Load reads .env when present and assembles the config from the
// environment.
func Load() *Config {
	// A missing .env is fine; deployments set real environment variables.
	_ = godotenv.Load()

	return &Config{
		AppEnv:     getenv("APP_ENV", "development"),
		HTTPAddr:   getenv("HTTP_ADDR", ":8080"),
		JWTSecret:  os.Getenv("JWT_SECRET"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBHost:     getenv("DB_HOST", "127.0.0.1"),
		DBPort:     getenv("DB_PORT", "3306"),
		DBName:     os.Getenv("DB_NAME"),
	}
}

// DSN builds the MySQL connection string. clientFoundRows makes
// RowsAffected count matched rows, so a no-op update is not mistaken for a
// missing record.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&clientFoundRows=true",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// HasDatabase reports whether a MySQL backend is configured; without one
// the server runs on the in-memory store.
func (c *Config) HasDatabase() bool {
	return c.DBName != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
