package agent

import (
	"context"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
)

// Responder produces a reply for prompt. history holds the prior turns of the
// session, oldest first.
type Responder func(ctx context.Context, cfg Config, history []Message, prompt string) (string, error)

// FuncProvider builds sessions around a Responder. Token usage is estimated
// at four characters per token.
type FuncProvider struct {
	fn      Responder
	created atomic.Int64
}

// NewFuncProvider creates a provider that answers with fn.
func NewFuncProvider(fn Responder) *FuncProvider {
	return &FuncProvider{fn: fn}
}

// CreateSession implements Provider.
func (p *FuncProvider) CreateSession(_ context.Context, cfg Config) (Session, error) {
	p.created.Add(1)
	return &funcSession{fn: p.fn, cfg: cfg, usage: Usage{ContextWindow: cfg.ContextWindow}}, nil
}

// Created returns how many sessions the provider has created.
func (p *FuncProvider) Created() int {
	return int(p.created.Load())
}

type funcSession struct {
	fn  Responder
	cfg Config

	mu      sync.Mutex
	history []Message
	usage   Usage
	closed  bool
}

func (s *funcSession) Send(ctx context.Context, prompt string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Message{}, ErrSessionClosed
	}
	if s.cfg.MaxTurns > 0 && s.usage.Turns >= s.cfg.MaxTurns {
		return Message{}, ErrMaxTurns
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	content, err := s.fn(ctx, s.cfg, append([]Message(nil), s.history...), prompt)
	if err != nil {
		return Message{}, err
	}

	in := estimateTokens(s.cfg.SystemPrompt) + estimateTokens(prompt)
	for _, m := range s.history {
		in += estimateTokens(m.Content)
	}
	out := estimateTokens(content)
	reply := Usage{
		InputTokens:   in,
		OutputTokens:  out,
		ContextTokens: in + out,
		ContextWindow: s.cfg.ContextWindow,
		Turns:         1,
	}

	s.history = append(s.history,
		Message{Role: RoleUser, Content: prompt},
		Message{Role: RoleAssistant, Content: content, Usage: reply},
	)
	s.usage = s.usage.Add(reply)
	return Message{Role: RoleAssistant, Content: content, Usage: reply}, nil
}

// Stream yields the reply word by word.
func (s *funcSession) Stream(ctx context.Context, prompt string) iter.Seq2[Chunk, error] {
	msg, err := s.Send(ctx, prompt)
	if err != nil {
		return errSeq(err)
	}
	return func(yield func(Chunk, error) bool) {
		for _, word := range strings.SplitAfter(msg.Content, " ") {
			if word == "" {
				continue
			}
			if !yield(Chunk{Content: word}, nil) {
				return
			}
		}
		usage := msg.Usage
		yield(Chunk{Done: true, Usage: &usage}, nil)
	}
}

func (s *funcSession) Destroy(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *funcSession) Usage() Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}
