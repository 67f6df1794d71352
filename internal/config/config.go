package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Version is reported in the User-Agent header.
const Version = "0.4.0"

type AppConfig struct {
	LichessBaseURL   string
	LichessSocketURL string
	UserAgent        string

	Username string
	Password string

	HeartbeatInterval time.Duration
	SendQueueSize     int
	HTTPTimeout       time.Duration
	RenderInterval    time.Duration

	RedisURL    string
	DatabaseURL string
	MsgcatDir   string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		LichessBaseURL:    "https://lichess.org",
		LichessSocketURL:  "wss://socket.lichess.org",
		UserAgent:         "liru/" + Version,
		HeartbeatInterval: time.Second,
		SendQueueSize:     64,
		HTTPTimeout:       10 * time.Second,
		RenderInterval:    100 * time.Millisecond,
	}

	if v := strings.TrimSpace(os.Getenv("LICHESS_BASE_URL")); v != "" {
		cfg.LichessBaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(os.Getenv("LICHESS_SOCKET_URL")); v != "" {
		cfg.LichessSocketURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(os.Getenv("USER_AGENT")); v != "" {
		cfg.UserAgent = v
	}

	cfg.Username = strings.TrimSpace(os.Getenv("LICHESS_USERNAME"))
	cfg.Password = os.Getenv("LICHESS_PASSWORD")

	cfg.HeartbeatInterval = envMillis("HEARTBEAT_INTERVAL_MS", cfg.HeartbeatInterval)
	cfg.HTTPTimeout = envMillis("HTTP_TIMEOUT_MS", cfg.HTTPTimeout)
	cfg.RenderInterval = envMillis("RENDER_INTERVAL_MS", cfg.RenderInterval)
	if v := strings.TrimSpace(os.Getenv("SEND_QUEUE_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SendQueueSize = n
		}
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MsgcatDir = strings.TrimSpace(os.Getenv("MSGCAT_DIR"))

	if err := checkURL("LICHESS_BASE_URL", cfg.LichessBaseURL, "http", "https"); err != nil {
		return nil, err
	}
	if err := checkURL("LICHESS_SOCKET_URL", cfg.LichessSocketURL, "ws", "wss"); err != nil {
		return nil, err
	}
	if cfg.Password != "" && cfg.Username == "" {
		return nil, errors.New("LICHESS_PASSWORD set without LICHESS_USERNAME")
	}

	return cfg, nil
}

// Anonymous reports whether no credentials were configured.
func (c *AppConfig) Anonymous() bool { return c.Username == "" }

func envMillis(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Millisecond
}

func checkURL(key, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be a %s URL, got %q", key, strings.Join(schemes, "/"), raw)
}
