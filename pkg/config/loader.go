package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

var durationType = reflect.TypeOf(time.Duration(0))

// LoadDotEnv loads KEY=VALUE pairs from the given files into the environment. Missing files are
// ignored and variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
		getLogger().Info("📝 Loaded environment from %s", p)
	}
	return nil
}

// Load builds a Config from defaults, the YAML file at path (skipped when empty) and the
// environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		loaded, err := loadConfigFromFile(path, cfg)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadConfigFromFile overlays the YAML file on base.
func loadConfigFromFile(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Replace environment variable placeholders.
	expanded := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		if value := os.Getenv(match[2 : len(match)-1]); value != "" {
			return value
		}
		return match
	})

	cfg := *base
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML %s: %w", path, err)
	}
	getLogger().Info("📝 Loaded config from %s", path)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	v := reflect.ValueOf(cfg).Elem()
	applyEnvOverridesRecursive(v, v.Type(), EnvPrefix)
}

// applyEnvOverridesRecursive maps FORMPILOT_<SECTION>_<KEY> onto the field tagged yaml:"key" of
// section.
func applyEnvOverridesRecursive(v reflect.Value, t reflect.Type, prefix string) {
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		tag := fieldType.Tag.Get("yaml")
		if tag == "" || tag == "-" {
			continue
		}
		envKey := strings.ToUpper(prefix + strings.Split(tag, ",")[0])

		if field.Kind() == reflect.Struct && field.Type() != durationType {
			applyEnvOverridesRecursive(field, field.Type(), envKey+"_")
			continue
		}
		if envValue, ok := os.LookupEnv(envKey); ok && envValue != "" {
			if err := setFieldFromEnv(field, envValue); err != nil {
				getLogger().Warn("ignoring %s: %v", envKey, err)
			}
		}
	}
}

func setFieldFromEnv(field reflect.Value, envValue string) error {
	if !field.CanSet() {
		return nil
	}

	if field.Type() == durationType {
		d, err := time.ParseDuration(envValue)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Bool:
		b, err := strconv.ParseBool(envValue)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(envValue, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(envValue, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.Int64 {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		var ids []int64
		for _, part := range strings.Split(envValue, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return err
			}
			ids = append(ids, n)
		}
		field.Set(reflect.ValueOf(ids))
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// applyDefaults fills zero values left by a partial file or empty overrides.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Telegram.PollTimeout == 0 {
		cfg.Telegram.PollTimeout = def.Telegram.PollTimeout
	}
	if cfg.Telegram.QueueSize == 0 {
		cfg.Telegram.QueueSize = def.Telegram.QueueSize
	}
	if cfg.Browser.NavigationTimeout == 0 {
		cfg.Browser.NavigationTimeout = def.Browser.NavigationTimeout
	}
	if cfg.Browser.Retry.MaxAttempts == 0 {
		cfg.Browser.Retry.MaxAttempts = def.Browser.Retry.MaxAttempts
	}
	if cfg.Browser.Retry.BackoffFactor == 0 {
		cfg.Browser.Retry.BackoffFactor = def.Browser.Retry.BackoffFactor
	}
	fillSelectors(&cfg.Browser.Selectors, def.Browser.Selectors)
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = def.Storage.Backend
	}
	if cfg.Storage.KeyPrefix == "" {
		cfg.Storage.KeyPrefix = def.Storage.KeyPrefix
	}
	if cfg.Traversal.MaxQuestions == 0 {
		cfg.Traversal.MaxQuestions = def.Traversal.MaxQuestions
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = def.Metrics.Listen
	}
}

// fillSelectors copies every empty selector from def.
func fillSelectors(s *Selectors, def Selectors) {
	v := reflect.ValueOf(s).Elem()
	d := reflect.ValueOf(def)
	for i := 0; i < v.NumField(); i++ {
		if v.Field(i).String() == "" {
			v.Field(i).SetString(d.Field(i).String())
		}
	}
}

// Validate checks structural constraints only; credentials are checked by the command that needs
// them.
func (c *Config) Validate() error {
	if c.Telegram.PollTimeout < 0 {
		return fmt.Errorf("%w: telegram.poll_timeout must not be negative", ErrInvalidConfig)
	}
	if c.Telegram.QueueSize < 1 {
		return fmt.Errorf("%w: telegram.queue_size must be at least 1 (got %d)", ErrInvalidConfig, c.Telegram.QueueSize)
	}
	if c.Browser.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: browser.retry.max_attempts must be at least 1", ErrInvalidConfig)
	}
	if c.Browser.Retry.BackoffFactor < 1 {
		return fmt.Errorf("%w: browser.retry.backoff_factor must be at least 1 (got %g)", ErrInvalidConfig, c.Browser.Retry.BackoffFactor)
	}
	if c.Browser.Limits.MaxOpenForms < 0 || c.Browser.Limits.OpensPerMinute < 0 {
		return fmt.Errorf("%w: browser.limits must not be negative", ErrInvalidConfig)
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("%w: browser.navigation_timeout must be positive", ErrInvalidConfig)
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("%w: storage.sqlite_path is required for the sqlite backend", ErrInvalidConfig)
		}
	case StorageRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("%w: storage.redis_url is required for the redis backend", ErrInvalidConfig)
		}
		if !strings.HasPrefix(c.Storage.RedisURL, "redis://") && !strings.HasPrefix(c.Storage.RedisURL, "rediss://") {
			return fmt.Errorf("%w: storage.redis_url must start with 'redis://' or 'rediss://'", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage.backend %q", ErrInvalidConfig, c.Storage.Backend)
	}
	if c.Storage.SessionTTL < 0 {
		return fmt.Errorf("%w: storage.session_ttl must not be negative", ErrInvalidConfig)
	}

	if c.Traversal.MaxQuestions < 1 {
		return fmt.Errorf("%w: traversal.max_questions must be at least 1", ErrInvalidConfig)
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("%w: metrics.listen is required when metrics are enabled", ErrInvalidConfig)
	}

	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("%w: log.format must be json or console (got %q)", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}
