// Package env reads the environment for bootstrap code that runs before
// configuration is loaded.
package env

import (
	"os"
	"strings"
)

// First returns the first non-blank value among keys, or fallback.
func First(fallback string, keys ...string) string {
	for _, key := range keys {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val
		}
	}
	return fallback
}
