package reorder

import "github.com/nhle/taskboard/internal/model"

// Outcome tags how a reorder finished.
type Outcome int

const (
	// OutcomeClean means only the moved task was written.
	OutcomeClean Outcome = iota
	// OutcomeRebalanced means the destination column was rewritten.
	OutcomeRebalanced
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClean:
		return "clean"
	case OutcomeRebalanced:
		return "rebalanced"
	default:
		return "unknown"
	}
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Reason says why a column was rebalanced.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonCollision: two tasks of the column share a rank after the write.
	ReasonCollision
	// ReasonRankLength: the computed rank grew past the length threshold.
	ReasonRankLength
	// ReasonDataIntegrity: stored ranks broke the rank contract.
	ReasonDataIntegrity
	// ReasonRequested: an explicit rebalance call.
	ReasonRequested
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonCollision:
		return "collision"
	case ReasonRankLength:
		return "rank_length"
	case ReasonDataIntegrity:
		return "data_integrity"
	case ReasonRequested:
		return "requested"
	default:
		return "unknown"
	}
}

// MarshalText encodes the reason by name.
func (r Reason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Request asks to move one task to Index of the Column it names.
type Request struct {
	TaskID string

	// Column is the destination. An empty ProjectID or Status falls back
	// to the task's current value.
	Column model.ColumnKey

	// Index is zero-based within the destination column with the moved
	// task left out. Values past the end append.
	Index int

	// RequesterID, when set, must own the task's project.
	RequesterID string
}

// Result is the moved task with its new rank plus every other task whose
// rank changed as a side effect.
type Result struct {
	Moved    model.Task   `json:"moved"`
	Affected []model.Task `json:"affected"`
	Outcome  Outcome      `json:"outcome"`
	Reason   Reason       `json:"reason"`
}
