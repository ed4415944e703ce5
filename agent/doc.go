// Package agent defines the session interfaces graph nodes use to talk to AI
// agent backends, plus adapters for concrete backends.
//
// Core types:
//   - Provider: creates sessions from a Config
//   - Session: a stateful conversation (Send, Stream, Destroy)
//   - UsageReporter: optional session capability reporting context usage
//
// Implementations:
//   - ClaudeProvider: llmkit claude.Client, conversation history kept locally
//   - OpenAIProvider: go-openai chat completions, with streaming
//   - FuncProvider: wraps a plain function, for tests and examples
//
// Example usage:
//
//	provider := agent.NewClaudeProvider(client)
//	session, err := provider.CreateSession(ctx, agent.Config{
//	    SystemPrompt:  "You are a careful reviewer.",
//	    ContextWindow: 200_000,
//	})
//	reply, err := session.Send(ctx, "Review this diff: ...")
package agent
