package instance

import (
	"os"
	"strings"
)

// ID names this process in lock owner tokens and logs. LOKRISE_WORKER_ID wins,
// then the hostname, then a fixed fallback.
func ID() string {
	if id := strings.TrimSpace(os.Getenv("LOKRISE_WORKER_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
