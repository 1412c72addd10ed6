package models

import "strings"

// BatchMode is the concurrency policy of a bulk resolution.
type BatchMode string

const (
	// BatchParallel resolves every episode of a page at once and drops failures.
	BatchParallel BatchMode = "parallel"
	// BatchSequential resolves one episode at a time and keeps failures inline.
	BatchSequential BatchMode = "sequential"
)

// ParseBatchMode accepts the canonical names and the "fast"/"instant" aliases
// used by the download dialog.
func ParseBatchMode(value string) (BatchMode, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "parallel", "fast":
		return BatchParallel, true
	case "sequential", "instant":
		return BatchSequential, true
	default:
		return "", false
	}
}

// Trigger is how a client consumes batch links: opening each one in a new
// view, or downloading them in the background.
type Trigger string

const (
	TriggerOpen       Trigger = "open"
	TriggerBackground Trigger = "background"
)

// DefaultTrigger is the trigger used when a batch request names none.
func (m BatchMode) DefaultTrigger() Trigger {
	if m == BatchSequential {
		return TriggerBackground
	}
	return TriggerOpen
}

// ParseTrigger returns the trigger named by value, or fallback when value is
// empty or unknown.
func ParseTrigger(value string, fallback Trigger) Trigger {
	switch Trigger(strings.ToLower(strings.TrimSpace(value))) {
	case TriggerOpen:
		return TriggerOpen
	case TriggerBackground:
		return TriggerBackground
	default:
		return fallback
	}
}

// BatchEntry is one row of a bulk resolution result.
type BatchEntry struct {
	DisplayNumber string       `json:"episode"`
	Result        ResolvedLink `json:"result"`
}
