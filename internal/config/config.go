package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	StockfishPath string

	RedisURL    string
	DatabaseURL string
	HTTPAddr    string

	// OwnerID unlocks the privileged assist commands (hint/eval).
	OwnerID string

	DefaultLevel string
	TimeLimit    time.Duration

	EngineQueryTimeout time.Duration

	AutoPlayMinDelay time.Duration
	AutoPlayMaxDelay time.Duration

	MsgOverrideDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		DefaultLevel:       "medium",
		TimeLimit:          10 * time.Minute,
		EngineQueryTimeout: 15 * time.Second,
		AutoPlayMinDelay:   3 * time.Second,
		AutoPlayMaxDelay:   8 * time.Second,
		HTTPAddr:           ":8466",
	}

	cfg.StockfishPath = strings.TrimSpace(os.Getenv("STOCKFISH_PATH"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.OwnerID = strings.TrimSpace(os.Getenv("OWNER_ID"))
	cfg.MsgOverrideDir = strings.TrimSpace(os.Getenv("MSG_OVERRIDE_DIR"))

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_DEFAULT_LEVEL")); v != "" {
		cfg.DefaultLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_TIME_LIMIT_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TimeLimit = time.Duration(n) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("ENGINE_QUERY_TIMEOUT_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EngineQueryTimeout = time.Duration(n) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("AUTOPLAY_MIN_DELAY_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AutoPlayMinDelay = time.Duration(n) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("AUTOPLAY_MAX_DELAY_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AutoPlayMaxDelay = time.Duration(n) * time.Millisecond
		}
	}

	if cfg.StockfishPath == "" {
		return nil, errors.New("STOCKFISH_PATH is required")
	}
	if cfg.AutoPlayMaxDelay < cfg.AutoPlayMinDelay {
		return nil, errors.New("AUTOPLAY_MAX_DELAY_MS must be >= AUTOPLAY_MIN_DELAY_MS")
	}

	return cfg, nil
}
