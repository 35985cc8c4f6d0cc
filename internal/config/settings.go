package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Defaults of the run settings.
const (
	DefaultWorkers      = 32
	MaxWorkers          = 64
	DefaultDrainTimeout = 24 * time.Hour
	DefaultShortcutRate = 200
	DefaultLogFile      = "clubhouse-migration.log"
)

// IssueState selects which GitHub issues are migrated.
type IssueState string

const (
	IssueStateOpen   IssueState = "open"
	IssueStateClosed IssueState = "closed"
	IssueStateAll    IssueState = "all"
)

var validIssueStates = map[IssueState]bool{
	IssueStateOpen:   true,
	IssueStateClosed: true,
	IssueStateAll:    true,
}

// GetIssueState retrieves the GitHub issue state filter.
// Returns IssueStateOpen if not set or invalid, with a warning on stderr.
//
// Config key: state
func GetIssueState() IssueState {
	value := GetString("state")
	if value == "" {
		return IssueStateOpen
	}
	state := IssueState(strings.ToLower(strings.TrimSpace(value)))
	if !validIssueStates[state] {
		fmt.Fprintf(os.Stderr, "Warning: invalid state %q in config (valid: open, closed, all), using default 'open'\n", value)
		return IssueStateOpen
	}
	return state
}

// GetWorkers retrieves the worker pool size, clamped to [1, MaxWorkers].
//
// Config key: workers
func GetWorkers() int {
	n := GetInt("workers")
	switch {
	case n < 1:
		fmt.Fprintf(os.Stderr, "Warning: invalid workers %d in config, using 1\n", n)
		return 1
	case n > MaxWorkers:
		fmt.Fprintf(os.Stderr, "Warning: workers %d above maximum, using %d\n", n, MaxWorkers)
		return MaxWorkers
	}
	return n
}

// GetDrainTimeout retrieves the ceiling of the final wait of a pipeline.
// Non-positive values mean DefaultDrainTimeout.
//
// Config key: drain-timeout
func GetDrainTimeout() time.Duration {
	d := GetDuration("drain-timeout")
	if d <= 0 {
		return DefaultDrainTimeout
	}
	return d
}

// GetGithubRepo splits github.repo ("owner/name").
func GetGithubRepo() (owner, name string, err error) {
	value := strings.TrimSpace(GetString("github.repo"))
	parts := strings.Split(value, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid github.repo %q: want owner/name", value)
	}
	return parts[0], parts[1], nil
}

// Require returns the value of key or an error naming the environment
// variable that would set it.
func Require(key string) (string, error) {
	value := strings.TrimSpace(GetString(key))
	if value == "" {
		return "", fmt.Errorf("missing %s (set %s or the config file)", key, EnvVar(key))
	}
	return value, nil
}

// EnvVar returns the environment variable bound to key.
func EnvVar(key string) string {
	r := strings.NewReplacer(".", "_", "-", "_")
	return EnvPrefix + "_" + strings.ToUpper(r.Replace(key))
}
