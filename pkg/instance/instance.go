package instance

import (
	"fmt"
	"os"
)

// GetID returns the worker instance identifier, falling back to a
// kind-derived default so the reconciler, publisher, archiver, and cron
// fleets stay distinguishable in logs.
func GetID(kind string) string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	if kind == "" {
		kind = "worker"
	}
	return fmt.Sprintf("%s-0", kind)
}
