// Package config provides viper-based configuration for noah-server
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/noah-analytics/noah-server/internal/api"
	"github.com/noah-analytics/noah-server/internal/table"
)

// EnvPrefix prefixes every environment variable, e.g. NOAH_PORT
const EnvPrefix = "NOAH"

// Config is the complete server configuration
type Config struct {
	Environment    string        `mapstructure:"environment"`
	APIBaseURL     string        `mapstructure:"api_base_url"`
	Port           int           `mapstructure:"port"`
	DataDir        string        `mapstructure:"data_dir"`
	Variant        string        `mapstructure:"variant"`
	LogLevel       string        `mapstructure:"log_level"`
	QueryCacheSize int           `mapstructure:"query_cache_size"`
	StaleTime      time.Duration `mapstructure:"stale_time"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	ToastTTL       time.Duration `mapstructure:"toast_ttl"`
	TextDebounce   time.Duration `mapstructure:"text_debounce"`
}

// BaseURL resolves the data-service URL from the explicit URL or the
// environment.
func (c *Config) BaseURL() (string, error) {
	return api.ResolveBaseURL(api.Environment(c.Environment), c.APIBaseURL)
}

// PrefsPath is the bbolt file holding user preferences
func (c *Config) PrefsPath() string {
	return filepath.Join(c.DataDir, "prefs.db")
}

// NotesIndexDir is where the notes search index lives
func (c *Config) NotesIndexDir() string {
	return filepath.Join(c.DataDir, "notes", "index")
}

// Load reads the config file (when cfgFile is set or noah.yaml is found)
// and the NOAH_* environment, then validates the result.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("noah")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/noah")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", string(api.Development))
	v.SetDefault("api_base_url", "")
	v.SetDefault("port", 8080)
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("variant", string(table.VariantStandard))
	v.SetDefault("log_level", "info")
	v.SetDefault("query_cache_size", 512)
	v.SetDefault("stale_time", 30*time.Second)
	v.SetDefault("reconnect_delay", 3*time.Second)
	v.SetDefault("toast_ttl", 5*time.Second)
	v.SetDefault("text_debounce", table.TextDebounce)
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".noah")
	}
	return filepath.Join(".", "data")
}

// Validate checks every setting and reports all problems at once
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.BaseURL(); err != nil {
		errs = append(errs, err)
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	switch table.Variant(c.Variant) {
	case table.VariantStandard, table.VariantRealtime:
	default:
		errs = append(errs, fmt.Errorf("unknown variant %q", c.Variant))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.QueryCacheSize < 1 {
		errs = append(errs, fmt.Errorf("query_cache_size must be positive, got %d", c.QueryCacheSize))
	}
	for name, d := range map[string]time.Duration{
		"stale_time":      c.StaleTime,
		"reconnect_delay": c.ReconnectDelay,
		"toast_ttl":       c.ToastTTL,
		"text_debounce":   c.TextDebounce,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, d))
		}
	}
	return errors.Join(errs...)
}
