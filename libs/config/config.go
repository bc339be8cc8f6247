// Package config reads service settings from the environment, optionally layered over a config
// file named by CONFIG_FILE. Environment variables always win over file values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	once sync.Once
	v    *viper.Viper
)

func store() *viper.Viper {
	once.Do(func() {
		v = viper.New()
		v.AutomaticEnv()
		if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				fmt.Fprintf(os.Stderr, "config: failed to read %s: %v\n", path, err)
			}
		}
	})
	return v
}

func String(key, fallback string) string {
	s := strings.TrimSpace(store().GetString(key))
	if s == "" {
		return fallback
	}
	return s
}

func RequiredString(key string) (string, error) {
	s := String(key, "")
	if s == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}

func Port(key, fallback string) (string, error) {
	s := String(key, fallback)
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, s)
	}
	return s, nil
}

// Int returns fallback when the value is missing or not an integer.
func Int(key string, fallback int) int {
	s := String(key, "")
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func Bool(key string, fallback bool) bool {
	switch strings.ToLower(String(key, "")) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

// Duration accepts Go duration strings ("500ms", "2m") or a bare number of seconds.
func Duration(key string, fallback time.Duration) time.Duration {
	s := String(key, "")
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}

// List splits a comma separated value, dropping blanks.
func List(key, fallback string) []string {
	var out []string
	for _, part := range strings.Split(String(key, fallback), ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func Float(key string, fallback float64) float64 {
	s := String(key, "")
	if s == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}
