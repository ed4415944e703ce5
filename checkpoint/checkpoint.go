package checkpoint

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"
)

// SnapshotVersion is the current Snapshot layout version.
const SnapshotVersion = 1

// Errors returned by stores.
var (
	ErrNotFound       = errors.New("checkpoint not found")
	ErrNoExecutionID  = errors.New("snapshot has no execution id")
	ErrUnknownBackend = errors.New("unknown checkpoint backend")
)

// Status is the lifecycle status recorded with a snapshot.
type Status string

// Status constants.
const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ErrorRecord is a serialized execution error.
type ErrorRecord struct {
	NodeID    string    `json:"node_id"`
	Attempt   int       `json:"attempt"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Fatal     bool      `json:"fatal"`
}

// Snapshot is everything needed to resume an execution.
//
// Values and Outputs are pre-encoded JSON so that stores never need to know
// the workflow's field types; the graph decodes them with its state schema.
type Snapshot struct {
	Version      int                   `json:"version"`
	ExecutionID  string                `json:"execution_id"`
	Graph        string                `json:"graph"`
	Values       map[string]RawMessage `json:"values"`
	Outputs      map[string]RawMessage `json:"outputs"`
	LastUpdated  time.Time             `json:"last_updated"`
	Queue        []string              `json:"queue"`
	LoopCounters map[string]int        `json:"loop_counters,omitempty"`
	Errors       []ErrorRecord         `json:"errors,omitempty"`
	Step         int                   `json:"step"`
	Status       Status                `json:"status"`

	// PausedAt is the id of the node that requested human input.
	PausedAt string `json:"paused_at,omitempty"`
	// Prompt is the question shown to the human when paused.
	Prompt  string    `json:"prompt,omitempty"`
	SavedAt time.Time `json:"saved_at"`
}

// Clone returns a deep copy. Resuming always works on a clone so a loaded
// snapshot is never modified.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Values = cloneRaw(s.Values)
	out.Outputs = cloneRaw(s.Outputs)
	out.Queue = slices.Clone(s.Queue)
	out.Errors = slices.Clone(s.Errors)
	if s.LoopCounters != nil {
		out.LoopCounters = maps.Clone(s.LoopCounters)
	}
	return &out
}

// Resumable reports whether the snapshot describes unfinished work. Failed
// and cancelled runs resume at the node that stopped them.
func (s *Snapshot) Resumable() bool {
	return s.Status != StatusCompleted
}

func cloneRaw(in map[string]RawMessage) map[string]RawMessage {
	if in == nil {
		return nil
	}
	out := make(map[string]RawMessage, len(in))
	for k, v := range in {
		out[k] = slices.Clone(v)
	}
	return out
}

// =============================================================================
// Store Interface
// =============================================================================

// Store persists snapshots keyed by execution id.
type Store interface {
	// Save writes the snapshot, replacing any previous one for the id.
	Save(ctx context.Context, executionID string, snap *Snapshot) error

	// Load returns the latest snapshot, or ErrNotFound.
	Load(ctx context.Context, executionID string) (*Snapshot, error)

	// List returns summaries of stored snapshots, newest first.
	List(ctx context.Context, filter ListFilter) ([]Info, error)

	// Delete removes a snapshot. Deleting a missing id is not an error.
	Delete(ctx context.Context, executionID string) error

	// Close releases resources held by the store.
	Close() error
}

// Info summarizes a stored snapshot.
type Info struct {
	ExecutionID string    `json:"execution_id"`
	Graph       string    `json:"graph"`
	Status      Status    `json:"status"`
	Step        int       `json:"step"`
	SavedAt     time.Time `json:"saved_at"`
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Graph  string
	Status Status
	Limit  int
}

func (f ListFilter) match(info Info) bool {
	if f.Graph != "" && info.Graph != f.Graph {
		return false
	}
	if f.Status != "" && info.Status != f.Status {
		return false
	}
	return true
}

func (s *Snapshot) info() Info {
	return Info{
		ExecutionID: s.ExecutionID,
		Graph:       s.Graph,
		Status:      s.Status,
		Step:        s.Step,
		SavedAt:     s.SavedAt,
	}
}

// finish sorts newest first and applies the filter limit.
func finish(infos []Info, filter ListFilter) []Info {
	slices.SortFunc(infos, func(a, b Info) int {
		if c := b.SavedAt.Compare(a.SavedAt); c != 0 {
			return c
		}
		if a.ExecutionID < b.ExecutionID {
			return -1
		}
		if a.ExecutionID > b.ExecutionID {
			return 1
		}
		return 0
	})
	if filter.Limit > 0 && len(infos) > filter.Limit {
		infos = infos[:filter.Limit]
	}
	return infos
}

// prepare stamps the snapshot before it is written.
func prepare(executionID string, snap *Snapshot) (*Snapshot, error) {
	if executionID == "" {
		return nil, ErrNoExecutionID
	}
	out := snap.Clone()
	out.ExecutionID = executionID
	if out.Version == 0 {
		out.Version = SnapshotVersion
	}
	if out.SavedAt.IsZero() {
		out.SavedAt = time.Now().UTC()
	}
	return out, nil
}
