package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds all configurable timeout values.
// These values can be customized via environment variables.
type Timeouts struct {
	Operation         time.Duration // Ceiling for a single cloud long-running operation
	Cluster           time.Duration // Cluster create/delete
	NodePool          time.Duration // Node pool create/update/delete
	Release           time.Duration // Helm install/upgrade with wait
	PodReady          time.Duration // Application and helper pod readiness
	ScaleDown         time.Duration // Workload scale to zero before restore
	Lock              time.Duration // Age after which a run lock is considered stale
	RetryMaxAttempts  int           // Maximum number of retry attempts for lookups
	RetryInitialDelay time.Duration // Initial delay between retries
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - GKE_TIMEOUT_OPERATION (default: 10m)
//   - GKE_TIMEOUT_CLUSTER (default: 30m)
//   - GKE_TIMEOUT_NODE_POOL (default: 20m)
//   - GKE_TIMEOUT_RELEASE (default: 10m)
//   - GKE_TIMEOUT_POD_READY (default: 5m)
//   - GKE_TIMEOUT_SCALE_DOWN (default: 3m)
//   - GKE_TIMEOUT_LOCK (default: 2h)
//   - GKE_RETRY_MAX_ATTEMPTS (default: 5)
//   - GKE_RETRY_INITIAL_DELAY (default: 1s)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		Operation:         parseDuration("GKE_TIMEOUT_OPERATION", 10*time.Minute),
		Cluster:           parseDuration("GKE_TIMEOUT_CLUSTER", 30*time.Minute),
		NodePool:          parseDuration("GKE_TIMEOUT_NODE_POOL", 20*time.Minute),
		Release:           parseDuration("GKE_TIMEOUT_RELEASE", 10*time.Minute),
		PodReady:          parseDuration("GKE_TIMEOUT_POD_READY", 5*time.Minute),
		ScaleDown:         parseDuration("GKE_TIMEOUT_SCALE_DOWN", 3*time.Minute),
		Lock:              parseDuration("GKE_TIMEOUT_LOCK", 2*time.Hour),
		RetryMaxAttempts:  parseInt("GKE_RETRY_MAX_ATTEMPTS", 5),
		RetryInitialDelay: parseDuration("GKE_RETRY_INITIAL_DELAY", 1*time.Second),
	}
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}

	return i
}
