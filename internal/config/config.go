package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	NATS     NATSConfig
	Log      LogConfig
	Session  SessionConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type NATSConfig struct {
	URL string
}

type LogConfig struct {
	Level string
	JSON  bool
}

type SessionConfig struct {
	TTLMinutes           int
	SweepIntervalSeconds int
	FrontendURL          string
}

type AuthConfig struct {
	JWTSecret       string
	JWTExpiresHours int
	AdminEmail      string
	AdminPassword   string
	AdminName       string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", "5432")
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "voting")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("NATS_URL", "nats://localhost:4222")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_JSON", false)
	v.SetDefault("SESSION_TTL_MINUTES", "5")
	v.SetDefault("SWEEP_INTERVAL_SECONDS", "60")
	v.SetDefault("FRONTEND_URL", "http://localhost:5173")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_EXPIRES_HOURS", "8")
	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("ADMIN_NAME", "Administrator")

	serverPort, err := parsePort(v.GetString("SERVER_PORT"), "SERVER_PORT")
	if err != nil {
		return nil, err
	}

	dbPort, err := parsePort(v.GetString("DATABASE_PORT"), "DATABASE_PORT")
	if err != nil {
		return nil, err
	}

	ttlMinutes, err := parsePositive(v.GetString("SESSION_TTL_MINUTES"), "SESSION_TTL_MINUTES")
	if err != nil {
		return nil, err
	}

	sweepSeconds, err := parsePositive(v.GetString("SWEEP_INTERVAL_SECONDS"), "SWEEP_INTERVAL_SECONDS")
	if err != nil {
		return nil, err
	}

	jwtHours, err := parsePositive(v.GetString("JWT_EXPIRES_HOURS"), "JWT_EXPIRES_HOURS")
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: serverPort,
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     dbPort,
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			DBName:   v.GetString("DATABASE_DBNAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		NATS: NATSConfig{
			URL: v.GetString("NATS_URL"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
			JSON:  v.GetBool("LOG_JSON"),
		},
		Session: SessionConfig{
			TTLMinutes:           ttlMinutes,
			SweepIntervalSeconds: sweepSeconds,
			FrontendURL:          v.GetString("FRONTEND_URL"),
		},
		Auth: AuthConfig{
			JWTSecret:       v.GetString("JWT_SECRET"),
			JWTExpiresHours: jwtHours,
			AdminEmail:      v.GetString("ADMIN_EMAIL"),
			AdminPassword:   v.GetString("ADMIN_PASSWORD"),
			AdminName:       v.GetString("ADMIN_NAME"),
		},
	}, nil
}

func parsePort(value, name string) (int, error) {
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid %s %d: out of range", name, port)
	}
	return port, nil
}

func parsePositive(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s %d: must be positive", name, n)
	}
	return n, nil
}

func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Session.SweepIntervalSeconds) * time.Second
}

func (c *Config) JWTExpiry() time.Duration {
	return time.Duration(c.Auth.JWTExpiresHours) * time.Hour
}
