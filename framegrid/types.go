package framegrid

import (
	"errors"
	"time"
)

var (
	ErrAlreadyStarted = errors.New("framegrid: attempt already running")
	ErrNotReady       = errors.New("framegrid: no image to accept")
	ErrClosed         = errors.New("framegrid: component is closed")
)

// Phase is where the current attempt is.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseAcquiring  Phase = "acquiring"
	PhaseRecording  Phase = "recording"
	PhaseProcessing Phase = "processing"
	PhaseReady      Phase = "ready"
	PhaseFailed     Phase = "failed"
	PhaseClosed     Phase = "closed"
)

// Terminal reports whether the phase waits for the user.
func (p Phase) Terminal() bool {
	return p == PhaseReady || p == PhaseFailed || p == PhaseClosed
}

// Action is a user action offered by the current phase.
type Action string

const (
	ActionRetry  Action = "retry"
	ActionAccept Action = "accept" // Use This Image
	ActionClose  Action = "close"
)

// Snapshot is the observable state of the component.
type Snapshot struct {
	AttemptID   string    `json:"attempt_id,omitempty"`
	Phase       Phase     `json:"phase"`
	Countdown   int       `json:"countdown"` // remaining seconds while recording, else 0
	FramesDone  int       `json:"frames_done"`
	FramesOK    int       `json:"frames_ok"`
	FramesTotal int       `json:"frames_total"`        // set once processing starts
	ImageURL    string    `json:"image_url,omitempty"` // set only in PhaseReady
	Error       string    `json:"error,omitempty"`     // user-facing message
	Category    string    `json:"category,omitempty"`
	Actions     []Action  `json:"actions"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Recording reports whether the countdown is running.
func (s Snapshot) Recording() bool { return s.Phase == PhaseRecording }

// Processing reports whether frames are being extracted.
func (s Snapshot) Processing() bool { return s.Phase == PhaseProcessing }

// Can reports whether a is currently offered.
func (s Snapshot) Can(a Action) bool {
	for _, x := range s.Actions {
		if x == a {
			return true
		}
	}
	return false
}

func actionsFor(p Phase) []Action {
	switch p {
	case PhaseReady:
		return []Action{ActionRetry, ActionAccept, ActionClose}
	case PhaseFailed:
		return []Action{ActionRetry, ActionClose}
	case PhaseClosed:
		return []Action{}
	default:
		return []Action{ActionClose}
	}
}
