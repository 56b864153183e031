// Package router turns one utterance into exactly one reply. In ONLINE mode
// it asks the remote generation service and falls back to the offline
// classifier within the same call when that fails; in OFFLINE mode it
// classifies locally and dispatches the matched action.
package router

import (
	"time"

	"github.com/normanking/jarvis/internal/classifier"
	"github.com/normanking/jarvis/internal/convlog"
)

// State is the router's mode.
type State int

const (
	StateOffline State = iota
	StateOnline
)

// String returns "online" or "offline".
func (s State) String() string {
	if s == StateOnline {
		return "online"
	}
	return "offline"
}

// Mode converts the state to the conversation log's mode value.
func (s State) Mode() convlog.Mode {
	if s == StateOnline {
		return convlog.ModeOnline
	}
	return convlog.ModeOffline
}

// FallbackReason says why an online attempt was abandoned.
type FallbackReason string

const (
	FallbackProbe   FallbackReason = "probe"
	FallbackTimeout FallbackReason = "timeout"
	FallbackError   FallbackReason = "error"
	FallbackEmpty   FallbackReason = "empty"

	// FallbackCanceled means the caller gave up mid-call. The remote service
	// is not blamed and the state is kept.
	FallbackCanceled FallbackReason = "canceled"
)

// TierRemote marks replies produced by the remote service.
const TierRemote classifier.Tier = "remote"

// Response is the single reply to one utterance.
type Response struct {
	Text string       `json:"response"`
	Mode convlog.Mode `json:"mode"`
	// IntentID is empty for remote replies and unmatched utterances.
	IntentID   string          `json:"intent,omitempty"`
	Tier       classifier.Tier `json:"tier"`
	Confidence float64         `json:"confidence,omitempty"`

	// FellBack is set when the online attempt failed and the offline path
	// answered instead.
	FellBack       bool           `json:"fell_back,omitempty"`
	FallbackReason FallbackReason `json:"fallback_reason,omitempty"`
	// Notice is a system line for the front-end, e.g. a mode switch.
	Notice string `json:"notice,omitempty"`

	NoInput     bool          `json:"no_input,omitempty"`
	ActionError string        `json:"action_error,omitempty"`
	EntryID     string        `json:"entry_id,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// ToggleOutcome is the result of a manual toggle.
type ToggleOutcome string

const (
	ToggleSwitchedOnline  ToggleOutcome = "switched_online"
	ToggleSwitchedOffline ToggleOutcome = "switched_offline"
	ToggleCannotSwitch    ToggleOutcome = "cannot_switch"
)

// ToggleResult describes a toggle.
type ToggleResult struct {
	Outcome ToggleOutcome `json:"outcome"`
	State   State         `json:"-"`
	Mode    convlog.Mode  `json:"mode"`
	Message string        `json:"message"`
}

// Stats tracks routing counters for status displays.
type Stats struct {
	Total          int64                     `json:"total"`
	Online         int64                     `json:"online"`
	Offline        int64                     `json:"offline"`
	NoInput        int64                     `json:"no_input"`
	Fallbacks      map[FallbackReason]int64  `json:"fallbacks"`
	ByTier         map[classifier.Tier]int64 `json:"by_tier"`
	ActionFailures int64                     `json:"action_failures"`
	PersistErrors  int64                     `json:"persist_errors"`
	ToggledOnline  int64                     `json:"toggled_online"`
	ToggledOffline int64                     `json:"toggled_offline"`
	ToggleRejected int64                     `json:"toggle_rejected"`
	// AverageLatency is the running mean of Route durations.
	AverageLatency time.Duration `json:"average_latency"`
}

// FallbackCount returns the total number of fallbacks.
func (s *Stats) FallbackCount() int64 {
	var n int64
	for _, v := range s.Fallbacks {
		n += v
	}
	return n
}

func (s *Stats) clone() Stats {
	out := *s
	out.Fallbacks = make(map[FallbackReason]int64, len(s.Fallbacks))
	for k, v := range s.Fallbacks {
		out.Fallbacks[k] = v
	}
	out.ByTier = make(map[classifier.Tier]int64, len(s.ByTier))
	for k, v := range s.ByTier {
		out.ByTier[k] = v
	}
	return out
}
