package agent

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/randalmurphal/llmkit/claude"
)

// ClaudeProvider creates sessions backed by an llmkit Claude client.
//
// The client is stateless, so each session keeps its own message history and
// replays it on every turn.
type ClaudeProvider struct {
	client claude.Client
}

// NewClaudeProvider wraps an llmkit client.
func NewClaudeProvider(client claude.Client) *ClaudeProvider {
	return &ClaudeProvider{client: client}
}

// CreateSession implements Provider.
func (p *ClaudeProvider) CreateSession(_ context.Context, cfg Config) (Session, error) {
	if p.client == nil {
		return nil, ErrNoProvider
	}
	return &claudeSession{
		client: p.client,
		cfg:    cfg,
		usage:  Usage{ContextWindow: cfg.ContextWindow},
	}, nil
}

type claudeSession struct {
	client claude.Client
	cfg    Config

	mu      sync.Mutex
	history []claude.Message
	usage   Usage
	closed  bool
}

func (s *claudeSession) Send(ctx context.Context, prompt string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Message{}, ErrSessionClosed
	}
	if s.cfg.MaxTurns > 0 && s.usage.Turns >= s.cfg.MaxTurns {
		return Message{}, ErrMaxTurns
	}

	messages := append(append([]claude.Message(nil), s.history...),
		claude.Message{Role: claude.RoleUser, Content: prompt})

	result, err := s.client.Complete(ctx, claude.CompletionRequest{
		SystemPrompt: s.cfg.SystemPrompt,
		Messages:     messages,
	})
	if err != nil {
		return Message{}, fmt.Errorf("claude complete: %w", err)
	}

	s.history = append(messages, claude.Message{Role: claude.RoleAssistant, Content: result.Content})

	reply := Usage{
		InputTokens:   result.Usage.InputTokens,
		OutputTokens:  result.Usage.OutputTokens,
		ContextTokens: result.Usage.InputTokens + result.Usage.OutputTokens,
		ContextWindow: s.cfg.ContextWindow,
		Turns:         1,
	}
	s.usage = s.usage.Add(reply)

	return Message{Role: RoleAssistant, Content: result.Content, Usage: reply}, nil
}

// Stream delivers the reply as a single chunk. The client completes whole
// responses, so there is nothing finer to yield.
func (s *claudeSession) Stream(ctx context.Context, prompt string) iter.Seq2[Chunk, error] {
	msg, err := s.Send(ctx, prompt)
	if err != nil {
		return errSeq(err)
	}
	return func(yield func(Chunk, error) bool) {
		usage := msg.Usage
		yield(Chunk{Content: msg.Content, Done: true, Usage: &usage}, nil)
	}
}

func (s *claudeSession) Destroy(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.history = nil
	return nil
}

func (s *claudeSession) Usage() Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}
