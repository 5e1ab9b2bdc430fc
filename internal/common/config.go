package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/enricher/internal/models"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
	Browser     BrowserConfig    `toml:"browser"`
	Worker      WorkerConfig     `toml:"worker"`
	Enrichment  EnrichmentConfig `toml:"enrichment"`
	Retention   RetentionConfig  `toml:"retention"`

	// Selectors are the default extraction descriptors. Values supplied with an upload
	// override these field by field.
	Selectors models.SelectorConfig `toml:"selectors"`
}

type ServerConfig struct {
	Port             int    `toml:"port"`
	Host             string `toml:"host"`
	MaxUploadSize    int64  `toml:"max_upload_size"`    // bytes
	UploadsPerMinute int    `toml:"uploads_per_minute"` // 0 disables upload rate limiting
	UploadBurst      int    `toml:"upload_burst"`
}

type StorageConfig struct {
	Badger       BadgerConfig `toml:"badger"`
	ArtifactsDir string       `toml:"artifacts_dir"` // per-job input/output/status/signal files
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // default "15:04:05"
}

// BrowserConfig configures the worker's chromedp session
type BrowserConfig struct {
	Headless         bool   `toml:"headless"`
	ProfileDir       string `toml:"profile_dir"` // persistent profile, reused across jobs
	UserAgent        string `toml:"user_agent"`
	OperationTimeout string `toml:"operation_timeout"` // bound for any single browser operation
}

// WorkerConfig configures how the control process launches the worker
type WorkerConfig struct {
	Executable   string `toml:"executable"`    // defaults to the running binary
	LoginTimeout string `toml:"login_timeout"` // manual login wait, "0" waits forever
}

type EnrichmentConfig struct {
	PersonalDomains []string          `toml:"personal_domains"` // added to the built-in whitelist
	RateLimit       models.RatePolicy `toml:"rate_limit"`
}

// RetentionConfig controls pruning of old terminal jobs
type RetentionConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // cron with seconds
	MaxAge   string `toml:"max_age"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:             3000,
			Host:             "localhost",
			MaxUploadSize:    32 << 20,
			UploadsPerMinute: 30,
			UploadBurst:      5,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/db",
			},
			ArtifactsDir: "./data/jobs",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Browser: BrowserConfig{
			Headless:         false,
			ProfileDir:       "./data/browser_profile",
			UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			OperationTimeout: "60s",
		},
		Worker: WorkerConfig{
			LoginTimeout: "30m",
		},
		Enrichment: EnrichmentConfig{
			RateLimit: models.RatePolicy{Preset: models.RatePresetConservative},
		},
		Retention: RetentionConfig{
			Enabled:  true,
			Schedule: "0 0 * * * *", // hourly
			MaxAge:   "168h",
		},
		Selectors: models.SelectorConfig{
			SearchPageURL: "https://contactout.com/dashboard/search",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// CLI overrides are applied separately by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal merges over existing values, later files win
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Enrichment.RateLimit.Validate(); err != nil {
		return nil, fmt.Errorf("invalid enrichment.rate_limit: %w", err)
	}

	return config, nil
}

// applyEnvOverrides applies ENRICHER_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("ENRICHER_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("ENRICHER_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	} else if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("ENRICHER_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("ENRICHER_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if artifactsDir := os.Getenv("ENRICHER_ARTIFACTS_DIR"); artifactsDir != "" {
		config.Storage.ArtifactsDir = artifactsDir
	}

	// Logging configuration
	if level := os.Getenv("ENRICHER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("ENRICHER_LOG_OUTPUT"); output != "" {
		if outputs := splitList(output); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Browser configuration
	if headless := os.Getenv("ENRICHER_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if profileDir := os.Getenv("ENRICHER_BROWSER_PROFILE_DIR"); profileDir != "" {
		config.Browser.ProfileDir = profileDir
	}
	if userAgent := os.Getenv("ENRICHER_BROWSER_USER_AGENT"); userAgent != "" {
		config.Browser.UserAgent = userAgent
	}

	// Worker configuration
	if executable := os.Getenv("ENRICHER_WORKER_EXECUTABLE"); executable != "" {
		config.Worker.Executable = executable
	}
	if loginTimeout := os.Getenv("ENRICHER_WORKER_LOGIN_TIMEOUT"); loginTimeout != "" {
		config.Worker.LoginTimeout = loginTimeout
	}

	// Enrichment configuration
	if preset := os.Getenv("ENRICHER_RATE_LIMIT_PRESET"); preset != "" {
		config.Enrichment.RateLimit.Preset = preset
		config.Enrichment.RateLimit.Tiers = nil
	}
	if domains := os.Getenv("ENRICHER_PERSONAL_DOMAINS"); domains != "" {
		config.Enrichment.PersonalDomains = splitList(domains)
	}

	// Default search page, the rest of the selectors come from files or uploads
	if searchURL := os.Getenv("ENRICHER_SEARCH_PAGE_URL"); searchURL != "" {
		config.Selectors.SearchPageURL = searchURL
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ParseDuration parses a duration setting, falling back to def when empty or invalid.
func ParseDuration(value string, def time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	if value == "0" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
