package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider creates sessions backed by the OpenAI chat completions API
// or any compatible endpoint.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*OpenAIProvider)

// WithDefaultModel sets the model used when a session Config names none.
func WithDefaultModel(model string) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.defaultModel = model
	}
}

// NewOpenAIProvider wraps a go-openai client.
func NewOpenAIProvider(client *openai.Client, opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{
		client:       client,
		defaultModel: openai.GPT4o,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CreateSession implements Provider.
func (p *OpenAIProvider) CreateSession(_ context.Context, cfg Config) (Session, error) {
	if p.client == nil {
		return nil, ErrNoProvider
	}
	model := cfg.Model
	if model == "" {
		model = p.defaultModel
	}

	s := &openAISession{
		client: p.client,
		model:  model,
		cfg:    cfg,
		usage:  Usage{ContextWindow: cfg.ContextWindow},
	}
	if cfg.SystemPrompt != "" {
		s.history = append(s.history, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: cfg.SystemPrompt,
		})
	}
	return s, nil
}

type openAISession struct {
	client *openai.Client
	model  string
	cfg    Config

	mu      sync.Mutex
	history []openai.ChatCompletionMessage
	usage   Usage
	closed  bool
}

// begin appends the user turn and returns the request messages.
// Caller holds s.mu.
func (s *openAISession) begin(prompt string) ([]openai.ChatCompletionMessage, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.cfg.MaxTurns > 0 && s.usage.Turns >= s.cfg.MaxTurns {
		return nil, ErrMaxTurns
	}
	return append(append([]openai.ChatCompletionMessage(nil), s.history...),
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt}), nil
}

// finish records the assistant turn. Caller holds s.mu.
func (s *openAISession) finish(messages []openai.ChatCompletionMessage, content string, u *openai.Usage) Usage {
	s.history = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: content,
	})
	reply := Usage{ContextWindow: s.cfg.ContextWindow, Turns: 1}
	if u != nil {
		reply.InputTokens = u.PromptTokens
		reply.OutputTokens = u.CompletionTokens
		reply.ContextTokens = u.TotalTokens
	}
	s.usage = s.usage.Add(reply)
	return reply
}

func (s *openAISession) Send(ctx context.Context, prompt string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages, err := s.begin(prompt)
	if err != nil {
		return Message{}, err
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: messages,
	})
	if err != nil {
		return Message{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Message{}, errors.New("openai chat completion: no choices returned")
	}

	content := resp.Choices[0].Message.Content
	usage := s.finish(messages, content, &resp.Usage)
	return Message{Role: RoleAssistant, Content: content, Usage: usage}, nil
}

func (s *openAISession) Stream(ctx context.Context, prompt string) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		s.mu.Lock()
		defer s.mu.Unlock()

		messages, err := s.begin(prompt)
		if err != nil {
			yield(Chunk{}, err)
			return
		}

		stream, err := s.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:         s.model,
			Messages:      messages,
			Stream:        true,
			StreamOptions: &openai.StreamOptions{IncludeUsage: true},
		})
		if err != nil {
			yield(Chunk{}, fmt.Errorf("openai chat stream: %w", err))
			return
		}
		defer stream.Close()

		var (
			content []byte
			usage   *openai.Usage
		)
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield(Chunk{}, fmt.Errorf("openai chat stream: %w", err))
				return
			}
			if resp.Usage != nil {
				usage = resp.Usage
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			content = append(content, delta...)
			if !yield(Chunk{Content: delta}, nil) {
				// Consumer stopped early; keep the partial reply in history.
				s.finish(messages, string(content), usage)
				return
			}
		}

		reply := s.finish(messages, string(content), usage)
		yield(Chunk{Done: true, Usage: &reply}, nil)
	}
}

func (s *openAISession) Destroy(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.history = nil
	return nil
}

func (s *openAISession) Usage() Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}
