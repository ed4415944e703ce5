package graph

import (
	"fmt"
	"slices"

	"github.com/randalmurphal/agentgraph/state"
)

// InputMapper converts human input supplied on resume into a state update.
type InputMapper func(s state.State, input any) (map[string]any, error)

// WaitConfig configures a wait node.
type WaitConfig struct {
	// Prompt is shown to the human. PromptFunc, when set, takes precedence.
	Prompt     string
	PromptFunc func(s state.State) string

	// InputMapper merges the resume input. Without one the input is only
	// recorded as the node's output.
	InputMapper InputMapper
}

// WaitNode pauses the run until a human supplies input.
type WaitNode struct {
	nodeBase
	cfg WaitConfig
}

// Wait creates a node that pauses the run for human input.
func Wait(id string, cfg WaitConfig, opts ...NodeOption) *WaitNode {
	return &WaitNode{nodeBase: newBase(id, KindWait, opts), cfg: cfg}
}

// Execute implements Node. It returns no state update.
func (n *WaitNode) Execute(ec *ExecutionContext) (NodeResult, error) {
	prompt := n.cfg.Prompt
	if n.cfg.PromptFunc != nil {
		prompt = n.cfg.PromptFunc(ec.State)
	}
	return NodeResult{Signals: []Signal{HumanInput(prompt)}}, nil
}

func (n *WaitNode) mapInput(ec *ExecutionContext, input any) (map[string]any, error) {
	if n.cfg.InputMapper == nil {
		return nil, nil
	}
	return n.cfg.InputMapper(ec.State, input)
}

// AskUserConfig configures an ask-user node.
type AskUserConfig struct {
	Question     string
	QuestionFunc func(s state.State) string

	// Choices, when set, restricts the accepted answers.
	Choices []string

	// AnswerKey is the state field the answer is written to.
	AnswerKey string

	// InputMapper replaces the AnswerKey mapping.
	InputMapper InputMapper
}

// AskUserNode asks a question and pauses until it is answered.
type AskUserNode struct {
	nodeBase
	cfg AskUserConfig
}

// AskUser creates a node that renders a question with the "ask_user" prompt
// template and pauses for the answer.
func AskUser(id string, cfg AskUserConfig, opts ...NodeOption) *AskUserNode {
	return &AskUserNode{nodeBase: newBase(id, KindAskUser, opts), cfg: cfg}
}

// Execute implements Node.
func (n *AskUserNode) Execute(ec *ExecutionContext) (NodeResult, error) {
	question := n.cfg.Question
	if n.cfg.QuestionFunc != nil {
		question = n.cfg.QuestionFunc(ec.State)
	}
	text, err := ec.deps.prompts().LoadWithVars("ask_user", map[string]any{
		"Question": question,
		"Choices":  n.cfg.Choices,
	})
	if err != nil {
		return NodeResult{}, fmt.Errorf("render question: %w", err)
	}
	return NodeResult{Signals: []Signal{HumanInput(text)}}, nil
}

func (n *AskUserNode) mapInput(ec *ExecutionContext, input any) (map[string]any, error) {
	if len(n.cfg.Choices) > 0 {
		answer, _ := input.(string)
		if !slices.Contains(n.cfg.Choices, answer) {
			return nil, fmt.Errorf("%w: answer %v is not one of %v", ErrInvalidNode, input, n.cfg.Choices)
		}
	}
	if n.cfg.InputMapper != nil {
		return n.cfg.InputMapper(ec.State, input)
	}
	if n.cfg.AnswerKey == "" {
		return nil, nil
	}
	return map[string]any{n.cfg.AnswerKey: input}, nil
}

func (n *AskUserNode) validate() error {
	if n.cfg.Question == "" && n.cfg.QuestionFunc == nil {
		return fmt.Errorf("%w: ask_user %s has no question", ErrInvalidNode, n.id)
	}
	return nil
}
