package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// envInt returns the first positive integer found among keys.
func envInt(keys []string, defaultValue int) int {
	for _, key := range keys {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func envString(keys []string, defaultValue string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return defaultValue
}

func EnvDuration(keys []string, defaultValue time.Duration) time.Duration {
	for _, key := range keys {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
