package engine

import "time"

// Recorder receives world activity for metrics.
type Recorder interface {
	TickDone(elapsed time.Duration, liveEvents int)
	ActionApplied(kind string)
	ActionDropped(kind string)
	AgentFailed()
	InteractionTriggered()
}

type nopRecorder struct{}

func (nopRecorder) TickDone(time.Duration, int) {}
func (nopRecorder) ActionApplied(string)        {}
func (nopRecorder) ActionDropped(string)        {}
func (nopRecorder) AgentFailed()                {}
func (nopRecorder) InteractionTriggered()       {}
