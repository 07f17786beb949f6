package ui

import (
	"github.com/desertthunder/spotctl/internal/tasks"
)

// StatusLine renders a session update for the terminal. Observed updates that match the local state are not
// worth showing and return "".
func StatusLine(u tasks.StateUpdate) string {
	switch u.Phase {
	case tasks.Transition:
		return Styles.OK("● ") + u.Message
	case tasks.Observed:
		if u.Observed.String() == u.State.String() {
			return ""
		}
		return Styles.Help(u.Message)
	case tasks.Finished:
		return Styles.Title("✓ ") + u.Message
	case tasks.Failed:
		return Styles.Err("✗ ") + u.Message
	default:
		return ""
	}
}
