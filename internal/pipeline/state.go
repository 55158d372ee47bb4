package pipeline

import (
	"context"
	"time"
)

// State is a step of the grading state machine.
type State string

const (
	StateUploading     State = "uploading"
	StateExtracting    State = "extracting"
	StateResolving     State = "resolving"
	StateDeduplicating State = "deduplicating"
	StateGrading       State = "grading"
	StatePersisting    State = "persisting"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// Terminal reports whether no further transitions follow.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Event describes one state transition of a run.
type Event struct {
	RunID   string    `json:"run_id"`
	State   State     `json:"state"`
	At      time.Time `json:"at"`
	Stage   State     `json:"stage,omitempty"`
	Kind    ErrorKind `json:"kind,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Observer receives transitions. Extracting and Resolving run in parallel,
// so implementations must be safe for concurrent use.
type Observer interface {
	Observe(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event Event)

func (f ObserverFunc) Observe(ctx context.Context, event Event) {
	f(ctx, event)
}

// Observers fans an event out to several observers in order.
type Observers []Observer

func (o Observers) Observe(ctx context.Context, event Event) {
	for _, observer := range o {
		if observer != nil {
			observer.Observe(ctx, event)
		}
	}
}
