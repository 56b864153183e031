package convlog

import "time"

// Mode records which path produced a response.
type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

// Entry is one completed exchange. Entries are never mutated after append.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	UserInput string    `json:"user_input"`
	Response  string    `json:"response"`
	Mode      Mode      `json:"mode"`
	// IntentID is empty when no intent matched; only labeled entries feed
	// retraining.
	IntentID string `json:"offline_command,omitempty"`
	// Tier is the classifier tier that handled an offline utterance.
	Tier string `json:"tier,omitempty"`
	// ActionError holds the backend failure text when the intent's action failed.
	ActionError string `json:"action_error,omitempty"`
}

// Labeled reports whether the entry carries an intent label.
func (e Entry) Labeled() bool {
	return e.IntentID != ""
}
