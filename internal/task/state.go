package task

// State is a task's lifecycle position. Transitions only move forward:
// Created → Running → Stopping → Stopped, with Created → Stopped allowed for
// tasks stopped before they ever started.
type State int32

const (
	Created State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}
