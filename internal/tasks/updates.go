package tasks

import (
	"fmt"

	"github.com/desertthunder/spotctl/internal/models"
)

// StateUpdate reports a session event to the CLI layer.
type StateUpdate struct {
	Phase    Phase              // Event kind
	State    SessionState       // Local session state after the event
	Observed models.PlayerState // Remote state, set for Observed updates
	Message  string             // Human-readable message for display
	Err      error              // Set for Failed updates
}

// Event kind enumeration
type Phase int

const (
	Transition Phase = iota
	Observed
	Finished
	Failed
)

func (p Phase) String() string {
	switch p {
	case Transition:
		return "transition"
	case Observed:
		return "observed"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

// sendUpdate never blocks; updates are dropped when nobody is reading.
func sendUpdate(updates chan<- StateUpdate, update StateUpdate) {
	if updates == nil {
		return
	}
	select {
	case updates <- update:
	default:
	}
}

func transitionUpdate(state SessionState, songID string) StateUpdate {
	return StateUpdate{
		Phase:   Transition,
		State:   state,
		Message: fmt.Sprintf("%s %s", state, songID),
	}
}

func observedUpdate(state SessionState, observed models.PlayerState) StateUpdate {
	return StateUpdate{
		Phase:    Observed,
		State:    state,
		Observed: observed,
		Message:  fmt.Sprintf("remote player is %s", observed),
	}
}

func finishedUpdate(songID string) StateUpdate {
	return StateUpdate{
		Phase:   Finished,
		State:   Done,
		Message: fmt.Sprintf("%s is no longer playing", songID),
	}
}

func failedUpdate(state SessionState, op string, err error) StateUpdate {
	return StateUpdate{
		Phase:   Failed,
		State:   state,
		Message: fmt.Sprintf("%s failed: %v", op, err),
		Err:     err,
	}
}
