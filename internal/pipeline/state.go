package pipeline

import (
	"fmt"

	"github.com/roach88/otcore/internal/model"
)

// State is the lifecycle position of one submission.
//
//	Received -> Rebasing -> Committed
//	Received -> Committed
//	Received | Rebasing -> Rejected
//
// Committed and Rejected are terminal.
type State int

const (
	StateReceived State = iota + 1
	StateRebasing
	StateCommitted
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateRebasing:
		return "rebasing"
	case StateCommitted:
		return "committed"
	case StateRejected:
		return "rejected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRejected
}

// Transition is reported to the Observer on every state change.
type Transition struct {
	RequestID string
	ObjectID  model.ObjectID
	From      State // zero for the initial Received
	To        State
	Attempt   int
	Revision  int64 // set on Committed
	Err       error // set on Rejected
}

// Observer receives transitions synchronously on the submitting goroutine.
type Observer func(Transition)

// tracker walks one submission through the state machine.
type tracker struct {
	observer Observer
	t        Transition
}

func newTracker(obs Observer, requestID string, id model.ObjectID) *tracker {
	tr := &tracker{observer: obs, t: Transition{RequestID: requestID, ObjectID: id}}
	tr.move(StateReceived)
	return tr
}

func (tr *tracker) move(to State) {
	if tr.t.To == to || tr.t.To.Terminal() {
		return
	}
	tr.t.From, tr.t.To = tr.t.To, to
	if tr.observer != nil {
		tr.observer(tr.t)
	}
}

func (tr *tracker) attempt(n int) {
	tr.t.Attempt = n
}

func (tr *tracker) commit(rev int64) {
	tr.t.Revision = rev
	tr.move(StateCommitted)
}

func (tr *tracker) reject(err error) error {
	tr.t.Err = err
	tr.move(StateRejected)
	return err
}
