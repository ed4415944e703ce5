package subagent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/randalmurphal/llmkit/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/agentgraph/agent"
)

// =============================================================================
// Model Selection Tests
// =============================================================================

func TestTierFor(t *testing.T) {
	tests := []struct {
		task TaskType
		want model.Tier
	}{
		{TaskInvestigate, model.TierThinking},
		{TaskJudge, model.TierThinking},
		{TaskReview, model.TierDefault},
		{TaskSummarize, model.TierFast},
		{TaskType("unknown"), model.TierDefault},
	}
	for _, tt := range tests {
		t.Run(string(tt.task), func(t *testing.T) {
			assert.Equal(t, tt.want, TierFor(tt.task))
		})
	}
}

func TestSelectModel(t *testing.T) {
	assert.Equal(t, model.ModelOpus, SelectModel(TaskArchitecture))
	assert.Equal(t, model.ModelSonnet, SelectModel(TaskFix))
	assert.Equal(t, model.ModelHaiku, SelectModel(TaskSearch))
	assert.Equal(t, model.ModelSonnet, SelectModel(TaskType("other")))
}

func TestModelFor(t *testing.T) {
	assert.Equal(t, "custom-model", ModelFor(Definition{Model: "custom-model", Task: TaskSearch}))
	assert.Equal(t, string(model.ModelHaiku), ModelFor(Definition{Task: TaskSearch}))
}

// =============================================================================
// Registry Tests
// =============================================================================

func TestMapRegistry(t *testing.T) {
	reg := NewMapRegistry(Definition{Name: "reviewer"}, Definition{Name: "fixer"})

	def, err := reg.Resolve("reviewer")
	require.NoError(t, err)
	assert.Equal(t, "reviewer", def.Name)

	_, err = reg.Resolve("ghost")
	assert.ErrorIs(t, err, ErrUnknownType)

	assert.Equal(t, []string{"fixer", "reviewer"}, reg.Names())
}

func TestMapRegistry_ZeroValue(t *testing.T) {
	var reg MapRegistry
	_, err := reg.Resolve("x")
	assert.ErrorIs(t, err, ErrUnknownType)

	reg.Register(Definition{Name: "x"})
	_, err = reg.Resolve("x")
	assert.NoError(t, err)
}

func TestParseRegistry(t *testing.T) {
	data := []byte(`
agents:
  - name: reviewer
    description: Reviews diffs
    task: review
    system_prompt: Be strict.
    tools: [read, grep]
    max_turns: 3
  - name: searcher
    task: search
`)
	reg, err := ParseRegistry(data)
	require.NoError(t, err)

	def, err := reg.Resolve("reviewer")
	require.NoError(t, err)
	assert.Equal(t, TaskReview, def.Task)
	assert.Equal(t, []string{"read", "grep"}, def.Tools)
	assert.Equal(t, 3, def.MaxTurns)
	assert.Equal(t, "Be strict.", def.SystemPrompt)
}

func TestParseRegistry_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing name": "agents:\n  - task: review\n",
		"duplicate":    "agents:\n  - name: a\n  - name: a\n",
		"bad yaml":     "agents: [",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRegistry([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agents:\n  - name: a\n"), 0644))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, reg.Names())

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// =============================================================================
// SessionBridge Tests
// =============================================================================

func TestSessionBridge_Spawn(t *testing.T) {
	var gotCfg agent.Config
	var gotPrompt string
	provider := agent.NewFuncProvider(func(_ context.Context, cfg agent.Config, _ []agent.Message, p string) (string, error) {
		gotCfg = cfg
		gotPrompt = p
		return "done", nil
	})

	bridge := NewSessionBridge(provider)
	res, err := bridge.Spawn(context.Background(), Spec{
		Definition: Definition{Name: "reviewer", Task: TaskReview, SystemPrompt: "strict"},
		Prompt:     "check foo.go",
	})
	require.NoError(t, err)

	assert.Equal(t, "done", res.Output)
	assert.Equal(t, "reviewer", res.Type)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, string(model.ModelSonnet), gotCfg.Model)
	assert.Equal(t, "strict", gotCfg.SystemPrompt)
	assert.Contains(t, gotPrompt, "check foo.go")
	assert.Contains(t, gotPrompt, "reviewer sub-agent")
}

func TestSessionBridge_SpawnParallelPreservesOrder(t *testing.T) {
	provider := agent.NewFuncProvider(func(_ context.Context, _ agent.Config, _ []agent.Message, p string) (string, error) {
		// Earlier tasks finish later so completion order differs from input order.
		switch {
		case strings.Contains(p, "task-0"):
			time.Sleep(30 * time.Millisecond)
		case strings.Contains(p, "task-1"):
			time.Sleep(15 * time.Millisecond)
		}
		if strings.Contains(p, "task-2") {
			return "", errors.New("boom")
		}
		for i := 0; i < 4; i++ {
			if strings.Contains(p, fmt.Sprintf("task-%d", i)) {
				return fmt.Sprintf("out-%d", i), nil
			}
		}
		return "", errors.New("unexpected prompt")
	})

	specs := make([]Spec, 4)
	for i := range specs {
		specs[i] = Spec{
			ID:         fmt.Sprintf("id-%d", i),
			Definition: Definition{Name: "worker"},
			Prompt:     fmt.Sprintf("task-%d", i),
		}
	}

	results, err := NewSessionBridge(provider).SpawnParallel(context.Background(), specs)
	require.NoError(t, err)
	require.Len(t, results, 4)

	for i, res := range results {
		assert.Equal(t, fmt.Sprintf("id-%d", i), res.ID)
		if i == 2 {
			assert.True(t, res.Failed())
			continue
		}
		assert.NoError(t, res.Err)
		assert.Equal(t, fmt.Sprintf("out-%d", i), res.Output)
	}
}

func TestSessionBridge_ConcurrencyLimit(t *testing.T) {
	var running, peak atomic.Int32
	provider := agent.NewFuncProvider(func(context.Context, agent.Config, []agent.Message, string) (string, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return "ok", nil
	})

	specs := make([]Spec, 6)
	for i := range specs {
		specs[i] = Spec{Definition: Definition{Name: "w"}, Prompt: "x"}
	}

	_, err := NewSessionBridge(provider, WithConcurrency(2)).SpawnParallel(context.Background(), specs)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestSessionBridge_Cancelled(t *testing.T) {
	provider := agent.NewFuncProvider(func(ctx context.Context, _ agent.Config, _ []agent.Message, _ string) (string, error) {
		return "ok", nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := NewSessionBridge(provider).SpawnParallel(ctx, []Spec{{Definition: Definition{Name: "w"}}})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
	assert.True(t, results[0].Failed())
}

func TestSessionBridge_NoProvider(t *testing.T) {
	_, err := NewSessionBridge(nil).Spawn(context.Background(), Spec{Definition: Definition{Name: "w"}})
	assert.ErrorIs(t, err, agent.ErrNoProvider)
}
