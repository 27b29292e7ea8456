package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// envReader reads typed environment values. Malformed values are collected
// instead of silently replaced by defaults.
type envReader struct {
	errs []error
}

func (r *envReader) str(key, defaultVal string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultVal
}

func (r *envReader) int(key string, defaultVal int) int {
	return parseEnv(r, key, defaultVal, strconv.Atoi)
}

func (r *envReader) bool(key string, defaultVal bool) bool {
	return parseEnv(r, key, defaultVal, strconv.ParseBool)
}

func (r *envReader) duration(key string, defaultVal time.Duration) time.Duration {
	return parseEnv(r, key, defaultVal, time.ParseDuration)
}

func (r *envReader) list(key string, defaults []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaults
	}
	parts := strings.Split(value, ",")
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) == 0 {
		return defaults
	}
	return filtered
}

func (r *envReader) err() error {
	return errors.Join(r.errs...)
}

func parseEnv[T any](r *envReader, key string, defaultVal T, parse func(string) (T, error)) T {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return defaultVal
	}
	v, err := parse(strings.TrimSpace(value))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s %q: %w", key, value, err))
		return defaultVal
	}
	return v
}
