package multipart

import (
	"github.com/abdul-hamid-achik/formstream/packages/body"
)

// State is the observable production state of a Producer
type State int

const (
	StateIdle State = iota
	StateProducing
	StateProducingAttachment
	StatePaused
	StateStopped
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProducing:
		return "producing"
	case StateProducingAttachment:
		return "producing-attachment"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// productionState is the internal sum type behind State. Only the idle
// and producing variants carry a pause flag and only attachmentState carries
// a delegate.
type productionState interface {
	public() State
}

// idleState: a pause taken before Start is applied when the task is
// scheduled.
type idleState struct {
	paused bool
}

// producingState: the scheduler task owns production control.
type producingState struct {
	paused bool
}

// attachmentState: the attachment body owns production control.
type attachmentState struct {
	index  int
	field  string
	body   body.Producer
	paused bool
}

type stoppedState struct{}

type finishedState struct {
	err error
}

func (idleState) public() State { return StateIdle }

func (s producingState) public() State {
	if s.paused {
		return StatePaused
	}
	return StateProducing
}

func (s attachmentState) public() State {
	if s.paused {
		return StatePaused
	}
	return StateProducingAttachment
}

func (stoppedState) public() State  { return StateStopped }
func (finishedState) public() State { return StateFinished }
