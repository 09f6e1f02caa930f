// Package worklist is the durable ledger of source objects a run still has to
// process.
//
// Every object key moves through Pending -> Claimed -> Done|Failed. The ledger
// lives in a small SQLite database next to the downloads so a crashed or
// interrupted run can be resumed: Done keys are never claimed again, and keys
// left Claimed by a crash stay visible until an operator requeues them.
package worklist

import (
	"time"

	"github.com/google/uuid"
	"gitlab.com/tozd/go/errors"
)

// State is the lifecycle state of a WorkItem.
type State string

const (
	StatePending State = "pending"
	StateClaimed State = "claimed"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// States lists every state in lifecycle order.
var States = []State{StatePending, StateClaimed, StateDone, StateFailed}

// Terminal reports whether s is Done or Failed.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// ErrInvalidTransition is returned when a state change does not follow the
// lifecycle, e.g. marking a Pending item Done or an unknown key Failed.
var ErrInvalidTransition = errors.Base("invalid work list transition")

// Item is one tracked source object.
type Item struct {
	Key       string
	State     State
	Reason    string // set for StateFailed
	BatchID   string // batch that last claimed the item
	UpdatedAt time.Time
}

// BatchRequest is an ordered set of keys claimed together.
type BatchRequest struct {
	ID   uuid.UUID
	Keys []string
}

// Empty reports whether nothing was claimed.
func (b BatchRequest) Empty() bool { return len(b.Keys) == 0 }
