package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	ServerPort string
	JWTSecret  string

	// RedisAddr enables presence replication between nodes. Empty keeps
	// presence local to this process.
	RedisAddr         string
	RedisChannel      string
	NodeID            string
	HistorySize       int
	PresenceHeartbeat time.Duration
	PresenceTimeout   time.Duration
	LogLevel          logrus.Level
	RunMigrations     bool
}

func Load() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Info("⚠️  No .env file found, using system environment variables")
	}

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "retro_user"),
		DBPassword: getEnv("DB_PASSWORD", "retro_pass"),
		DBName:     getEnv("DB_NAME", "retro_db"),
		ServerPort: getEnv("SERVER_PORT", "8080"),
		JWTSecret:  getEnv("JWT_SECRET", "supersecretkey"),

		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisChannel:      getEnv("REDIS_PRESENCE_CHANNEL", "retro:presence"),
		NodeID:            getEnv("NODE_ID", uuid.NewString()),
		HistorySize:       getInt("HISTORY_SIZE", 25),
		PresenceHeartbeat: getDuration("PRESENCE_HEARTBEAT", 5*time.Second),
		PresenceTimeout:   getDuration("PRESENCE_TIMEOUT", 15*time.Second),
		LogLevel:          getLevel("LOG_LEVEL", logrus.InfoLevel),
		RunMigrations:     getBool("RUN_MIGRATIONS", true),
	}
}

// DSN is the gorm connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName,
	)
}

// MigrationURL is the golang-migrate database URL for the pgx/v5 driver.
func (c *Config) MigrationURL() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		logrus.WithField("key", key).Warnf("⚠️  Invalid value %q, using %d", raw, defaultVal)
		return defaultVal
	}
	return v
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		logrus.WithField("key", key).Warnf("⚠️  Invalid value %q, using %s", raw, defaultVal)
		return defaultVal
	}
	return v
}

func getBool(key string, defaultVal bool) bool {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		logrus.WithField("key", key).Warnf("⚠️  Invalid value %q, using %t", raw, defaultVal)
		return defaultVal
	}
	return v
}

func getLevel(key string, defaultVal logrus.Level) logrus.Level {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	v, err := logrus.ParseLevel(raw)
	if err != nil {
		logrus.WithField("key", key).Warnf("⚠️  Invalid value %q, using %s", raw, defaultVal)
		return defaultVal
	}
	return v
}
