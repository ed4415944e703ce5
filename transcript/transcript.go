package transcript

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/goccy/go-json"
)

// Transcript errors
var (
	ErrRunNotFound      = errors.New("transcript not found")
	ErrRunAlreadyExists = errors.New("transcript already active")
	ErrRunNotStarted    = errors.New("transcript not started")
)

// RunStatus indicates the status of a recorded execution.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Roles used in turns.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool_result"
)

// Transcript is the agent conversation recorded for one execution.
type Transcript struct {
	ExecutionID string `json:"executionId"`
	Metadata    Meta   `json:"metadata"`
	Turns       []Turn `json:"turns"`
}

// Meta summarizes a transcript.
type Meta struct {
	ExecutionID    string         `json:"executionId"`
	Graph          string         `json:"graph"`
	Input          map[string]any `json:"input,omitempty"`
	StartedAt      time.Time      `json:"startedAt"`
	EndedAt        time.Time      `json:"endedAt,omitempty"`
	Status         RunStatus      `json:"status"`
	TotalTokensIn  int            `json:"totalTokensIn"`
	TotalTokensOut int            `json:"totalTokensOut"`
	TurnCount      int            `json:"turnCount"`
	Error          string         `json:"error,omitempty"`
}

// Turn is one message in the conversation.
type Turn struct {
	ID         int        `json:"id"`
	NodeID     string     `json:"nodeId,omitempty"`
	Session    string     `json:"session,omitempty"`
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	TokensIn   int        `json:"tokensIn,omitempty"`
	TokensOut  int        `json:"tokensOut,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	DurationMs int64      `json:"durationMs,omitempty"`
}

// ToolCall records a tool invoked during a turn.
type ToolCall struct {
	ID     string         `json:"id,omitempty"`
	Name   string         `json:"name"`
	Input  map[string]any `json:"input,omitempty"`
	Output string         `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// RunMetadata is input for starting a transcript.
type RunMetadata struct {
	Graph string
	Input map[string]any
}

// New creates an empty running transcript.
func New(executionID string, meta RunMetadata) *Transcript {
	return &Transcript{
		ExecutionID: executionID,
		Metadata: Meta{
			ExecutionID: executionID,
			Graph:       meta.Graph,
			Input:       meta.Input,
			StartedAt:   time.Now(),
			Status:      RunStatusRunning,
		},
		Turns: make([]Turn, 0),
	}
}

// AddTurn appends a turn, numbering it and updating token totals.
func (t *Transcript) AddTurn(turn Turn) *Turn {
	turn.ID = len(t.Turns) + 1
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	switch turn.Role {
	case RoleUser, RoleSystem:
		t.Metadata.TotalTokensIn += turn.TokensIn
	case RoleAssistant:
		t.Metadata.TotalTokensOut += turn.TokensOut
	}

	t.Turns = append(t.Turns, turn)
	t.Metadata.TurnCount = len(t.Turns)
	return &t.Turns[len(t.Turns)-1]
}

// AddToolCall attaches a tool call to the last assistant turn.
func (t *Transcript) AddToolCall(tc ToolCall) bool {
	last := t.LastTurn()
	if last == nil || last.Role != RoleAssistant {
		return false
	}
	last.ToolCalls = append(last.ToolCalls, tc)
	return true
}

// Finish marks the transcript with a terminal or paused status.
func (t *Transcript) Finish(status RunStatus, err error) {
	t.Metadata.Status = status
	t.Metadata.EndedAt = time.Now()
	if err != nil {
		t.Metadata.Error = err.Error()
	}
}

// Reopen marks a paused transcript as running again.
func (t *Transcript) Reopen() {
	t.Metadata.Status = RunStatusRunning
	t.Metadata.EndedAt = time.Time{}
	t.Metadata.Error = ""
}

// Duration returns the run duration.
func (t *Transcript) Duration() time.Duration {
	if t.Metadata.EndedAt.IsZero() {
		return time.Since(t.Metadata.StartedAt)
	}
	return t.Metadata.EndedAt.Sub(t.Metadata.StartedAt)
}

// IsActive returns true while the run is in progress.
func (t *Transcript) IsActive() bool {
	return t.Metadata.Status == RunStatusRunning
}

// LastTurn returns the last turn or nil.
func (t *Transcript) LastTurn() *Turn {
	if len(t.Turns) == 0 {
		return nil
	}
	return &t.Turns[len(t.Turns)-1]
}

// TurnsByNode returns the turns recorded by one node.
func (t *Transcript) TurnsByNode(nodeID string) []Turn {
	var result []Turn
	for _, turn := range t.Turns {
		if turn.NodeID == nodeID {
			result = append(result, turn)
		}
	}
	return result
}

// Clone returns a deep copy.
func (t *Transcript) Clone() *Transcript {
	c := *t
	c.Turns = make([]Turn, len(t.Turns))
	for i, turn := range t.Turns {
		turn.ToolCalls = slices.Clone(turn.ToolCalls)
		c.Turns[i] = turn
	}
	return &c
}

// compressionThreshold is the size above which transcripts are gzipped.
const compressionThreshold = 100 * 1024

const (
	transcriptFile   = "transcript.json"
	transcriptFileGz = "transcript.json.gz"
)

// Save writes the transcript under dir/<executionID>/.
func (t *Transcript) Save(dir string) error {
	runDir := filepath.Join(dir, t.ExecutionID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}

	if len(data) > compressionThreshold {
		os.Remove(filepath.Join(runDir, transcriptFile))
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(data); err != nil {
			return err
		}
		if err := gz.Close(); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(runDir, transcriptFileGz), buf.Bytes(), 0o644)
	}

	os.Remove(filepath.Join(runDir, transcriptFileGz))
	return os.WriteFile(filepath.Join(runDir, transcriptFile), data, 0o644)
}

// Load reads a transcript saved under dir/<executionID>/.
func Load(dir, executionID string) (*Transcript, error) {
	runDir := filepath.Join(dir, executionID)

	data, err := readCompressed(filepath.Join(runDir, transcriptFileGz))
	if err != nil {
		data, err = os.ReadFile(filepath.Join(runDir, transcriptFile))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ErrRunNotFound
			}
			return nil, err
		}
	}

	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func readCompressed(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	return io.ReadAll(gz)
}
