// Package config reads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// AWS
	TableName        string
	ParamPrefix      string
	KnowledgeParam   string // optional; the built-in FAQ table is used when empty
	DynamoDBEndpoint string // optional override for dynamodb-local

	// Relay
	RelayEndpoint string

	// Chat
	MatchPolicy   string
	SessionTTL    time.Duration
	MaxSessions   int
	MaxMessageLen int
	MatchDelay    time.Duration
	FallbackDelay time.Duration

	// Web server
	HTTPPort       int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxFrameSize   int64
	AllowedOrigins []string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads the configuration. Values from a .env file in the working
// directory are applied first; variables already set in the environment win.
func Load() (*Config, error) {
	if err := loadEnvFile(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{
		TableName:        getEnv("TABLE_NAME", ""),
		ParamPrefix:      strings.TrimRight(getEnv("PARAM_PREFIX", ""), "/"),
		KnowledgeParam:   getEnv("KNOWLEDGE_PARAM", ""),
		DynamoDBEndpoint: getEnv("DYNAMODB_ENDPOINT", ""),
		RelayEndpoint:    getEnv("RELAY_ENDPOINT", "https://api.web3forms.com/submit"),
		MatchPolicy:      strings.ToLower(getEnv("MATCH_POLICY", "first")),
		SessionTTL:       getEnvDuration("SESSION_TTL", 30*time.Minute),
		MaxSessions:      getEnvInt("MAX_SESSIONS", 1000),
		MaxMessageLen:    getEnvInt("MAX_MESSAGE_LENGTH", 300),
		MatchDelay:       time.Duration(getEnvInt("MATCH_DELAY_MS", 1000)) * time.Millisecond,
		FallbackDelay:    time.Duration(getEnvInt("FALLBACK_DELAY_MS", 1500)) * time.Millisecond,
		HTTPPort:         getEnvInt("HTTP_PORT", 8080),
		PingInterval:     time.Duration(getEnvInt("WS_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		WriteTimeout:     time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		ReadTimeout:      time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", 60000)) * time.Millisecond,
		MaxFrameSize:     int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 4096)),
		AllowedOrigins:   getEnvList("ALLOWED_ORIGINS"),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.TableName == "" {
		errs = append(errs, errors.New("TABLE_NAME is required"))
	}
	if c.ParamPrefix == "" {
		errs = append(errs, errors.New("PARAM_PREFIX is required"))
	}
	if c.MatchPolicy != "first" && c.MatchPolicy != "longest" {
		errs = append(errs, fmt.Errorf("MATCH_POLICY %q is not one of first, longest", c.MatchPolicy))
	}
	// The engine reads a zero delay as "use the default".
	if c.MatchDelay <= 0 || c.FallbackDelay <= 0 {
		errs = append(errs, errors.New("MATCH_DELAY_MS and FALLBACK_DELAY_MS must be positive"))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is not one of json, text", c.LogFormat))
	}
	return errors.Join(errs...)
}

// AccessKeyParam is the SSM parameter holding the relay access key.
func (c *Config) AccessKeyParam() string {
	return c.ParamPrefix + "/web3forms-access-key"
}

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.LogLevel)}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
