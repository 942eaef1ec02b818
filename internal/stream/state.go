package stream

import "fmt"

type StateKind int

const (
	Connecting StateKind = iota
	Streaming
	Disconnected
	Error
)

func (k StateKind) String() string {
	switch k {
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Disconnected:
		return "disconnected"
	case Error:
		return "error"
	}
	return fmt.Sprintf("StateKind(%d)", int(k))
}

// State is a connection state event. Err is set only for Error. Session
// identifies the Start call that produced the event.
type State struct {
	Kind    StateKind
	Err     error
	Session uint64
}

func (s State) String() string {
	if s.Kind == Error && s.Err != nil {
		return fmt.Sprintf("error: %v", s.Err)
	}
	return s.Kind.String()
}
