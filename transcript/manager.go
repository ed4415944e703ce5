package transcript

import (
	"slices"
	"time"
)

// Manager records and retrieves execution transcripts.
type Manager interface {
	// StartRun begins recording. Starting an execution whose transcript was
	// saved earlier (a paused run being resumed) reopens it.
	StartRun(executionID string, meta RunMetadata) error
	RecordTurn(executionID string, turn Turn) error
	EndRun(executionID string, status RunStatus, err error) error

	Load(executionID string) (*Transcript, error)
	List(filter ListFilter) ([]Meta, error)
	Delete(executionID string) error
}

// ListFilter filters transcript listing.
type ListFilter struct {
	Graph  string
	Status RunStatus
	After  time.Time
	Before time.Time
	Limit  int
}

func (f ListFilter) match(m Meta) bool {
	if f.Graph != "" && m.Graph != f.Graph {
		return false
	}
	if f.Status != "" && m.Status != f.Status {
		return false
	}
	if !f.After.IsZero() && m.StartedAt.Before(f.After) {
		return false
	}
	if !f.Before.IsZero() && m.StartedAt.After(f.Before) {
		return false
	}
	return true
}

// finish sorts newest first and applies the limit.
func (f ListFilter) finish(metas []Meta) []Meta {
	slices.SortFunc(metas, func(a, b Meta) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if f.Limit > 0 && len(metas) > f.Limit {
		metas = metas[:f.Limit]
	}
	return metas
}
