// Package config loads formpilot settings from a YAML file, a .env file and FORMPILOT_ environment
// variables.
//
// Precedence, lowest first: built-in defaults, the YAML file (with ${VAR} placeholders expanded),
// then FORMPILOT_<SECTION>_<KEY> environment variables. The result is validated before use.
//
// A single process-wide Config is kept after LoadConfig; GetConfig returns it by value.
package config

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"formpilot/pkg/logx"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FORMPILOT_"

// Storage backends.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

//nolint:gochecknoglobals // Intentional singleton pattern for config management
var (
	config *Config
	logger *logx.Logger
	mu     sync.RWMutex
)

func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// TelegramConfig configures the chat transport.
type TelegramConfig struct {
	Token       string `yaml:"token"`
	PollTimeout int    `yaml:"poll_timeout"` // Long-poll timeout in seconds
	QueueSize   int    `yaml:"queue_size"`   // Pending updates buffered per user
	Debug       bool   `yaml:"debug"`
	// AllowedUsers restricts the bot to these user IDs. Empty allows everyone.
	AllowedUsers []int64 `yaml:"allowed_users"`
}

// RetryConfig defines how the browser relaunches after a failure.
type RetryConfig struct {
	MaxAttempts   int     `yaml:"max_attempts"`   // Maximum number of attempts (including initial)
	BackoffFactor float64 `yaml:"backoff_factor"` // Multiplier applied to the navigation timeout per attempt
}

// LimitsConfig caps how hard the shared browser is driven. Zero disables a limit.
type LimitsConfig struct {
	MaxOpenForms   int `yaml:"max_open_forms"`   // Forms open at the same time across all users
	OpensPerMinute int `yaml:"opens_per_minute"` // Form loads started per minute
}

// Selectors are the CSS selectors used to read a Google Form.
type Selectors struct {
	Question            string `yaml:"question"`
	Title               string `yaml:"title"`
	Description         string `yaml:"description"`
	Required            string `yaml:"required"`
	Next                string `yaml:"next"`
	Submit              string `yaml:"submit"`
	Textbox             string `yaml:"textbox"`
	Paragraph           string `yaml:"paragraph"`
	Radio               string `yaml:"radio"`
	Checkbox            string `yaml:"checkbox"`
	OtherInput          string `yaml:"other_input"`
	Dropdown            string `yaml:"dropdown"`
	DropdownMenu        string `yaml:"dropdown_menu"`
	DropdownPlaceholder string `yaml:"dropdown_placeholder"`
	GridContainer       string `yaml:"grid_container"`
	DateInput           string `yaml:"date_input"`
	Alert               string `yaml:"alert"` // Validation error shown after Next or Submit
}

// BrowserConfig configures the headless browser form driver.
type BrowserConfig struct {
	Headless          bool          `yaml:"headless"`
	Bin               string        `yaml:"bin"`         // Browser binary; empty downloads one
	ControlURL        string        `yaml:"control_url"` // Connect to a running browser instead of launching
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	Retry             RetryConfig   `yaml:"retry"`
	Limits            LimitsConfig  `yaml:"limits"`
	Selectors         Selectors     `yaml:"selectors"`
}

// StorageConfig selects where sessions and jobs are persisted.
type StorageConfig struct {
	Backend    string        `yaml:"backend"`
	SQLitePath string        `yaml:"sqlite_path"`
	RedisURL   string        `yaml:"redis_url"`
	KeyPrefix  string        `yaml:"key_prefix"`
	SessionTTL time.Duration `yaml:"session_ttl"` // Zero keeps sessions forever
}

// SchedulerConfig configures recurring submissions.
type SchedulerConfig struct {
	RestoreOnStart bool `yaml:"restore_on_start"`
}

// TraversalConfig bounds a single traversal.
type TraversalConfig struct {
	MaxQuestions int    `yaml:"max_questions"`
	AuditDir     string `yaml:"audit_dir"` // Directory for the daily submission log; empty disables it
}

// MetricsConfig configures the Prometheus and health endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Config is the complete formpilot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Browser   BrowserConfig   `yaml:"browser"`
	Storage   StorageConfig   `yaml:"storage"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Traversal TraversalConfig `yaml:"traversal"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       logx.Config     `yaml:"log"`
}

// GetConfig returns the current global config BY VALUE (copy, not reference).
// Must call LoadConfig first to initialize the global config.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return *config, nil
}

// SetConfigForTesting sets the global config for testing purposes. Pass nil to reset.
func SetConfigForTesting(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
}

// LoadConfig loads path (which may be empty) into the global singleton.
func LoadConfig(path string) error {
	loaded, err := Load(path)
	if err != nil {
		return err
	}
	mu.Lock()
	config = loaded
	mu.Unlock()
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{
			PollTimeout: 60,
			QueueSize:   16,
		},
		Browser: BrowserConfig{
			Headless:          true,
			NavigationTimeout: 8 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:   5,
				BackoffFactor: 1.5,
			},
			Limits: LimitsConfig{
				MaxOpenForms:   8,
				OpensPerMinute: 30,
			},
			Selectors: DefaultSelectors(),
		},
		Storage: StorageConfig{
			Backend:    StorageSQLite,
			SQLitePath: "formpilot.db",
			KeyPrefix:  "formpilot:",
		},
		Scheduler: SchedulerConfig{
			RestoreOnStart: true,
		},
		Traversal: TraversalConfig{
			MaxQuestions: 500,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  ":9090",
		},
		Log: logx.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// DefaultSelectors matches the public Google Forms viewer.
func DefaultSelectors() Selectors {
	return Selectors{
		Question:            "div[role='listitem']",
		Title:               "div[role='heading']",
		Description:         "div.gubaDc",
		Required:            "span[aria-label='Required question']",
		Next:                "div[role='button'][jsname='OCpkoe']",
		Submit:              "div[role='button'][jsname='M2UYVd']",
		Textbox:             "input[type='text'], input[type='email'], input[type='number'], input[type='url']",
		Paragraph:           "textarea",
		Radio:               "div[role='radio']",
		Checkbox:            "div[role='checkbox']",
		OtherInput:          "input[aria-label='Other response']",
		Dropdown:            "div[role='option']",
		DropdownMenu:        "div[role='listbox']",
		DropdownPlaceholder: "div[role='option'][data-value='']",
		GridContainer:       "div[role='radiogroup'], div[role='group']",
		DateInput:           "input[type='date']",
		Alert:               "div[role='alert']",
	}
}
