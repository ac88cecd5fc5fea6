package main

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rendis/flowcanvas/internal/validation"
)

// Config holds all flowcanvas configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	APIBaseURL     string            `json:"api_base_url"`
	DBPath         string            `json:"db_path"`
	LogLevel       string            `json:"log_level"`
	ListenAddr     string            `json:"listen_addr"`
	HitRadius      float64           `json:"hit_radius"`
	TargetPolicy   string            `json:"target_policy"`
	AutosaveCron   string            `json:"autosave_cron"`
	RequestTimeout time.Duration     `json:"-"`
	RetryAttempts  int               `json:"retry_attempts"`
	Rules          []validation.Rule `json:"rules,omitempty"`
}

// settingsFile mirrors Config with the timeout as a duration string.
type settingsFile struct {
	Config
	RequestTimeout string `json:"request_timeout"`
}

func defaultConfig() Config {
	return Config{
		APIBaseURL:     "http://localhost:4200/api/v1",
		DBPath:         filepath.Join(flowcanvasDir(), "flowcanvas.db"),
		LogLevel:       "info",
		ListenAddr:     ":4200",
		HitRadius:      80,
		TargetPolicy:   "nearest",
		AutosaveCron:   "@every 1m",
		RequestTimeout: 30 * time.Second,
		RetryAttempts:  3,
	}
}

func flowcanvasDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowcanvas"
	}
	return filepath.Join(home, ".flowcanvas")
}

func settingsPath() string {
	if v := os.Getenv("FLOWCANVAS_SETTINGS"); v != "" {
		return v
	}
	return filepath.Join(flowcanvasDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		sf := settingsFile{Config: cfg}
		if json.Unmarshal(data, &sf) == nil {
			cfg = sf.Config
			if d, err := time.ParseDuration(sf.RequestTimeout); err == nil {
				cfg.RequestTimeout = d
			}
		}
	}

	// Layer 3: env vars override.
	if v := os.Getenv("FLOWCANVAS_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("FLOWCANVAS_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FLOWCANVAS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLOWCANVAS_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FLOWCANVAS_HIT_RADIUS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.HitRadius = f
		}
	}
	if v := os.Getenv("FLOWCANVAS_TARGET_POLICY"); v != "" {
		cfg.TargetPolicy = v
	}
	if v := os.Getenv("FLOWCANVAS_AUTOSAVE_CRON"); v != "" {
		cfg.AutosaveCron = v
	}
	if v := os.Getenv("FLOWCANVAS_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RequestTimeout = d
		}
	}

	if v := os.Getenv("FLOWCANVAS_RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryAttempts = n
		}
	}

	return cfg
}

// bindFlags registers the shared flags on fs with cfg's values as defaults
// (layer 4). Rules are settings-file only.
func bindFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.APIBaseURL, "api", cfg.APIBaseURL, "workflow definition API base URL")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "local database path for drafts")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.Float64Var(&cfg.HitRadius, "hit-radius", cfg.HitRadius, "connection drop radius in logical units")
	fs.StringVar(&cfg.TargetPolicy, "target-policy", cfg.TargetPolicy, "drop target policy: nearest or first")
	fs.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "backend request timeout")
}

// dsn turns a db path into a libSQL data source name.
func dsn(path string) string {
	if hasScheme(path) {
		return path
	}
	return "file:" + path
}

func hasScheme(path string) bool {
	for _, scheme := range []string{"file:", "libsql:", "http:", "https:"} {
		if strings.HasPrefix(path, scheme) {
			return true
		}
	}
	return false
}
