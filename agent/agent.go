package agent

import (
	"context"
	"errors"
	"iter"
)

// Errors returned by sessions and providers.
var (
	// ErrNoProvider indicates an agent node ran without a session provider.
	ErrNoProvider = errors.New("no agent session provider configured")

	// ErrSessionClosed indicates use of a destroyed session.
	ErrSessionClosed = errors.New("agent session closed")

	// ErrMaxTurns indicates the session exhausted its configured turn budget.
	ErrMaxTurns = errors.New("agent session exceeded max turns")
)

// Role constants for Message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Config configures a new session.
type Config struct {
	Model         string `json:"model,omitempty" yaml:"model"`
	SystemPrompt  string `json:"system_prompt,omitempty" yaml:"system_prompt"`
	MaxTurns      int    `json:"max_turns,omitempty" yaml:"max_turns"`
	WorkDir       string `json:"work_dir,omitempty" yaml:"work_dir"`
	ContextWindow int    `json:"context_window,omitempty" yaml:"context_window"` // tokens; 0 = unknown
}

// Message is one completed exchange returned by Send.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Chunk is a piece of a streamed reply. The final chunk has Done set.
type Chunk struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
	Usage   *Usage `json:"usage,omitempty"` // set on the final chunk when known
}

// Usage tracks token consumption for a single reply or a whole session.
type Usage struct {
	InputTokens   int `json:"input_tokens"`
	OutputTokens  int `json:"output_tokens"`
	ContextTokens int `json:"context_tokens"`
	ContextWindow int `json:"context_window"`
	Turns         int `json:"turns"`
}

// Ratio returns the fraction of the context window in use, or 0 when the
// window is unknown.
func (u Usage) Ratio() float64 {
	if u.ContextWindow <= 0 {
		return 0
	}
	return float64(u.ContextTokens) / float64(u.ContextWindow)
}

// Add returns u with the reply usage r accumulated.
func (u Usage) Add(r Usage) Usage {
	u.InputTokens += r.InputTokens
	u.OutputTokens += r.OutputTokens
	if r.ContextTokens > 0 {
		u.ContextTokens = r.ContextTokens
	}
	u.Turns++
	return u
}

// =============================================================================
// Interfaces
// =============================================================================

// Session is a stateful conversation with an agent backend.
type Session interface {
	// Send delivers a prompt and waits for the full reply.
	Send(ctx context.Context, prompt string) (Message, error)

	// Stream delivers a prompt and yields reply chunks as they arrive.
	// The sequence ends after a Done chunk or an error.
	Stream(ctx context.Context, prompt string) iter.Seq2[Chunk, error]

	// Destroy releases the session. Further calls return ErrSessionClosed.
	Destroy(ctx context.Context) error
}

// UsageReporter is implemented by sessions that track context usage.
type UsageReporter interface {
	Usage() Usage
}

// Provider creates sessions.
type Provider interface {
	CreateSession(ctx context.Context, cfg Config) (Session, error)
}

// Collect drains a stream into a single Message.
func Collect(seq iter.Seq2[Chunk, error]) (Message, error) {
	msg := Message{Role: RoleAssistant}
	for chunk, err := range seq {
		if err != nil {
			return msg, err
		}
		msg.Content += chunk.Content
		if chunk.Usage != nil {
			msg.Usage = *chunk.Usage
		}
	}
	return msg, nil
}

func errSeq(err error) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		yield(Chunk{}, err)
	}
}
