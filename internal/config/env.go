package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment overrides take precedence over the config file. Every key is
// prefixed with OS2OBS_.
const envPrefix = "OS2OBS_"

func envLookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func mergeEnv(cfg *Config) error {
	if v, ok := envLookup("ADDRESS"); ok {
		cfg.Address = v
	}
	if v, ok := envLookup("SUBSCRIBE_PATH"); ok {
		cfg.SubscribePath = v
	}
	if v, ok := envLookup("RETRY_DELAY"); ok {
		d, err := parseDelay(v)
		if err != nil {
			return fmt.Errorf("%sRETRY_DELAY: %w", envPrefix, err)
		}
		cfg.RetryDelay = d
	}
	if v, ok := envLookup("TITLE_FILE"); ok {
		cfg.TitleFile = v
	}
	if v, ok := envLookup("VERSE_FILE"); ok {
		cfg.VerseFile = v
	}
	if v, ok := envLookup("WS_PATH"); ok {
		cfg.WSPath = v
	}
	if v, ok := envLookup("HTTP_TIMEOUT"); ok {
		d, err := parseDelay(v)
		if err != nil {
			return fmt.Errorf("%sHTTP_TIMEOUT: %w", envPrefix, err)
		}
		cfg.HTTPTimeout = d
	}
	if v, ok := envLookup("ATOMIC_WRITES"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sATOMIC_WRITES: %w", envPrefix, err)
		}
		cfg.AtomicWrites = b
	}
	if v, ok := envLookup("LISTEN"); ok {
		cfg.Listen = v
	}
	if v, ok := envLookup("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	return nil
}
