// Package instance names the running process in logs and lock tokens.
package instance

import "os"

const EnvInstanceID = "ORDERLEDGER_INSTANCE_ID"

// GetID prefers an explicit id, then the platform dyno name, then the host.
func GetID() string {
	for _, key := range []string{EnvInstanceID, "DYNO"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
