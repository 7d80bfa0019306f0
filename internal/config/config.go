// Package config loads and validates the daemon configuration with the
// precedence ENV > file > defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the fully resolved daemon configuration.
type Config struct {
	// Address is the OpenSong remote-control endpoint (host:port). Both the
	// websocket channel and the REST API live on this address.
	Address string

	// SubscribePath is the text frame sent after connecting to request
	// presentation notifications, e.g. "/ws/subscribe/presentation".
	SubscribePath string

	// RetryDelay is the fixed pause between reconnect attempts.
	RetryDelay time.Duration

	TitleFile string
	VerseFile string

	WSPath       string
	HTTPTimeout  time.Duration
	AtomicWrites bool

	// Listen enables the ops HTTP listener (healthz/readyz/metrics) when
	// non-empty.
	Listen string

	LogLevel string
}

// fileConfig mirrors the YAML file. Pointers distinguish "absent" from
// zero values so env overrides and defaults merge correctly.
type fileConfig struct {
	Address       *string `yaml:"address"`
	SubscribePath *string `yaml:"subscribe_path"`
	RetryDelay    *string `yaml:"retry_delay"`
	TitleFile     *string `yaml:"title_file"`
	VerseFile     *string `yaml:"verse_file"`
	WSPath        *string `yaml:"ws_path"`
	HTTPTimeout   *string `yaml:"http_timeout"`
	AtomicWrites  *bool   `yaml:"atomic_writes"`
	Listen        *string `yaml:"listen"`
	LogLevel      *string `yaml:"log_level"`
}

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath string
}

// NewLoader creates a new configuration loader.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load resolves the configuration: defaults, then the YAML file (if any),
// then OS2OBS_* environment overrides, then validation.
func (l *Loader) Load() (Config, error) {
	// LogLevel stays empty unless set explicitly, so the logger's LOG_LEVEL
	// fallback keeps working when neither the file nor OS2OBS_LOG_LEVEL
	// names a level.
	cfg := Config{
		WSPath:      "/ws",
		HTTPTimeout: 10 * time.Second,
	}

	if l.configPath != "" {
		fc, err := loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFile(&cfg, fc); err != nil {
			return cfg, fmt.Errorf("merge config file: %w", err)
		}
	}

	if err := mergeEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var fc fileConfig
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &fc, nil
}

func mergeFile(cfg *Config, fc *fileConfig) error {
	if fc.Address != nil {
		cfg.Address = *fc.Address
	}
	if fc.SubscribePath != nil {
		cfg.SubscribePath = *fc.SubscribePath
	}
	if fc.RetryDelay != nil {
		d, err := parseDelay(*fc.RetryDelay)
		if err != nil {
			return fmt.Errorf("retry_delay: %w", err)
		}
		cfg.RetryDelay = d
	}
	if fc.TitleFile != nil {
		cfg.TitleFile = *fc.TitleFile
	}
	if fc.VerseFile != nil {
		cfg.VerseFile = *fc.VerseFile
	}
	if fc.WSPath != nil {
		cfg.WSPath = *fc.WSPath
	}
	if fc.HTTPTimeout != nil {
		d, err := parseDelay(*fc.HTTPTimeout)
		if err != nil {
			return fmt.Errorf("http_timeout: %w", err)
		}
		cfg.HTTPTimeout = d
	}
	if fc.AtomicWrites != nil {
		cfg.AtomicWrites = *fc.AtomicWrites
	}
	if fc.Listen != nil {
		cfg.Listen = *fc.Listen
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	return nil
}

// parseDelay accepts Go duration strings ("2s", "500ms") and, for
// compatibility with older ini-style configs, bare numbers meaning seconds.
func parseDelay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	var secs float64
	if _, err := fmt.Sscanf(s, "%f", &secs); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("invalid duration %q", s)
}

// Validate fails fast on any missing or malformed required option.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Address) == "" {
		errs = append(errs, "address is required")
	} else if host, port, err := net.SplitHostPort(c.Address); err != nil || host == "" || port == "" {
		errs = append(errs, fmt.Sprintf("address %q must be host:port", c.Address))
	}
	if strings.TrimSpace(c.SubscribePath) == "" {
		errs = append(errs, "subscribe_path is required")
	}
	if c.RetryDelay <= 0 {
		errs = append(errs, "retry_delay must be a positive duration")
	}
	if strings.TrimSpace(c.TitleFile) == "" {
		errs = append(errs, "title_file is required")
	}
	if strings.TrimSpace(c.VerseFile) == "" {
		errs = append(errs, "verse_file is required")
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, "http_timeout must be a positive duration")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// BaseURL returns the REST endpoint derived from Address.
func (c *Config) BaseURL() string {
	return "http://" + c.Address
}

// WSURL returns the websocket endpoint derived from Address and WSPath.
func (c *Config) WSURL() string {
	path := c.WSPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "ws://" + c.Address + path
}
