// Package utils provides small shared helpers: environment-variable
// lookups with defaults and error wrapping.
package utils

import "os"

// EnvOrDefault returns the value of the environment variable key, or
// fallback when the variable is unset or empty. Empty is treated the same
// as unset so that `LVENC_ENV= lvencd start` does not select a blank
// network profile.
func EnvOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
