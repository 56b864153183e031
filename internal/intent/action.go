package intent

import (
	"errors"
	"fmt"
)

// ActionID names an effect the action backend knows how to perform.
// The set is closed: registries referencing anything else are rejected at load.
type ActionID string

const (
	ActionGetWeather       ActionID = "get_weather"
	ActionOpenBrowser      ActionID = "open_chrome"
	ActionOpenCamera       ActionID = "open_camera"
	ActionOpenFileExplorer ActionID = "open_file_explorer"
	ActionGetTime          ActionID = "get_time"
	ActionGetDate          ActionID = "get_date"
	ActionShutdown         ActionID = "shutdown_system"
	ActionRestart          ActionID = "restart_system"
	// ActionRespond only replies with one of the intent's templates.
	ActionRespond ActionID = "respond"
)

// ErrUnknownAction is returned for action ids outside the closed set.
var ErrUnknownAction = errors.New("unknown action")

// AllActions returns every valid ActionID in a stable order.
func AllActions() []ActionID {
	return []ActionID{
		ActionGetWeather,
		ActionOpenBrowser,
		ActionOpenCamera,
		ActionOpenFileExplorer,
		ActionGetTime,
		ActionGetDate,
		ActionShutdown,
		ActionRestart,
		ActionRespond,
	}
}

// ParseActionID validates s against the closed action set.
func ParseActionID(s string) (ActionID, error) {
	for _, a := range AllActions() {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Valid reports whether a is a member of the closed action set.
func (a ActionID) Valid() bool {
	_, err := ParseActionID(string(a))
	return err == nil
}
