package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var ErrMissingToken = errors.New("BOT_TOKEN environment variable is required")

type BotConfig struct {
	TelegramToken   string
	AdminID         int64
	AutoDeleteDelay time.Duration
	LinksFile       string
	Debug           bool

	LogLevel string
	LogFile  string

	MetricsAddr string

	DeleteWorkers           int
	MaxPendingDeletes       int
	DeletePendingOnShutdown bool
}

// Load читает .env (если он есть) и переменные окружения
func Load() (*BotConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading env variables: %w", err)
	}

	return FromEnv()
}

// FromEnv собирает конфиг только из окружения процесса
func FromEnv() (*BotConfig, error) {
	cfg := &BotConfig{
		TelegramToken:           getEnv("BOT_TOKEN", ""),
		AdminID:                 getEnvAsInt("ADMIN_ID", 0),
		LinksFile:               getEnv("LINKS_FILE", "links.json"),
		Debug:                   getEnvAsBool("BOT_DEBUG", false),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFile:                 getEnv("LOG_FILE", "bot.log"),
		MetricsAddr:             getEnv("METRICS_ADDR", ""),
		DeleteWorkers:           int(getEnvAsInt("DELETE_WORKERS", 4)),
		MaxPendingDeletes:       int(getEnvAsInt("MAX_PENDING_DELETES", 10000)),
		DeletePendingOnShutdown: getEnvAsBool("DELETE_PENDING_ON_SHUTDOWN", true),
	}

	if cfg.TelegramToken == "" {
		return nil, ErrMissingToken
	}

	delay := getEnvAsInt("AUTO_DELETE_DELAY", 15)
	if delay <= 0 {
		logrus.WithField("value", delay).Warn("AUTO_DELETE_DELAY must be positive, using 15")
		delay = 15
	}
	cfg.AutoDeleteDelay = time.Duration(delay) * time.Second

	if cfg.LinksFile == "" {
		cfg.LinksFile = "links.json"
	}

	return cfg, nil
}

// IsAdmin сравнивает пользователя с администратором из конфига. ADMIN_ID=0 - админа нет.
func (c *BotConfig) IsAdmin(userID int64) bool {
	return c.AdminID != 0 && userID == c.AdminID
}

func getEnv(key string, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	return defaultVal
}

func getEnvAsBool(name string, defaultVal bool) bool {
	valStr := getEnv(name, "")
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}

	return defaultVal
}

func getEnvAsInt(name string, defaultVal int64) int64 {
	valStr := getEnv(name, "")
	if val, err := strconv.ParseInt(valStr, 10, 64); err == nil {
		return val
	}

	return defaultVal
}
