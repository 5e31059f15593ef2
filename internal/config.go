package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config is built once at startup from the environment and passed
// explicitly to every component. Nothing reads the environment after that.
type Config struct {
	Host              string        `env:"HOST,default=0.0.0.0"`
	Port              int           `env:"PORT,default=7000"`
	WSPort            int           `env:"WS_PORT"`
	DBPath            string        `env:"DB_PATH,default=chatwire.db"`
	MaxMessageLength  int           `env:"MAX_MESSAGE_LENGTH,default=2048"`
	SessionExpiryDays int           `env:"SESSION_EXPIRY_DAYS,default=7"`
	SaltLength        int           `env:"SALT_LENGTH,default=16"`
	MasterKeyHex      string        `env:"MASTER_KEY_HEX"`
	BrokerURL         string        `env:"BROKER_URL"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT,default=120s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT,default=30s"`
}

// RealtimePort defaults to the primary port + 1 unless WS_PORT is set.
func (c Config) RealtimePort() int {
	if c.WSPort != 0 {
		return c.WSPort
	}
	return c.Port + 1
}

func (c Config) Validate() error {
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be positive, got %d", c.MaxMessageLength)
	}
	if c.SessionExpiryDays <= 0 {
		return fmt.Errorf("SESSION_EXPIRY_DAYS must be positive, got %d", c.SessionExpiryDays)
	}
	if c.SaltLength < 8 {
		return fmt.Errorf("SALT_LENGTH must be at least 8, got %d", c.SaltLength)
	}
	return nil
}

// LevelFromString maps LOG_LEVEL to a slog level, defaulting to Info.
func LevelFromString(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
