package graph

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/agentgraph/checkpoint"
	"github.com/randalmurphal/agentgraph/notify"
	"github.com/randalmurphal/agentgraph/state"
	"github.com/randalmurphal/agentgraph/testutil"
)

func decisionGraph(t *testing.T) *CompiledGraph {
	t.Helper()
	big := func(s state.State) bool { return state.Int(s, "x") > 10 }
	return mustCompile(t, NewBuilder("decide", counterSchema()).
		Start(noop("start")).
		Then(Decision("decide", When(big, "A"), Otherwise("B"))).
		Add(appendLog("A")).
		Add(appendLog("B")).
		Add(noop("end")).Cursor("end").End().
		Connect("A", "end").
		Connect("B", "end"))
}

func TestRun_DecisionRouting(t *testing.T) {
	g := decisionGraph(t)

	steps, err := collect(t, g, map[string]any{"x": 20})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "decide", "A", "end"}, nodeIDs(steps))

	last := steps[len(steps)-1]
	assert.Equal(t, StatusCompleted, last.Status)
	assert.True(t, last.State.HasOutput("A"))
	assert.False(t, last.State.HasOutput("B"))
	out, _ := last.State.Output("decide")
	assert.Equal(t, "A", out)

	steps, err = collect(t, g, map[string]any{"x": 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "decide", "B", "end"}, nodeIDs(steps))
}

func TestRun_Result(t *testing.T) {
	g := decisionGraph(t)

	res, err := g.Run(t.Context(), map[string]any{"x": 20}, WithExecutionID("exec-1"))
	require.NoError(t, err)
	assert.Equal(t, "exec-1", res.ExecutionID)
	assert.Equal(t, "exec-1", res.State.ExecutionID)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 4, res.Steps)
	assert.Nil(t, res.Snapshot)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{"A"}, state.Get[[]string](res.State, "log"))
	assert.False(t, res.State.LastUpdated.IsZero())
}

func TestRun_GeneratesExecutionID(t *testing.T) {
	g := decisionGraph(t)

	a, err := g.Run(t.Context(), nil)
	require.NoError(t, err)
	b, err := g.Run(t.Context(), nil)
	require.NoError(t, err)

	assert.NotEmpty(t, a.ExecutionID)
	assert.NotEqual(t, a.ExecutionID, b.ExecutionID)
}

func TestRun_UnknownInputKey(t *testing.T) {
	g := decisionGraph(t)

	_, err := g.Run(t.Context(), map[string]any{"nope": 1})
	var unknown *state.UnknownFieldError
	assert.ErrorAs(t, err, &unknown)
}

func TestRun_Deterministic(t *testing.T) {
	g := mustCompile(t, NewBuilder("det", counterSchema()).
		Start(appendLog("a")).
		Parallel("fan", [][]Node{
			{slowLog("b1", 20*time.Millisecond), appendLog("b2")},
			{appendLog("c1")},
		}, ParallelConfig{Strategy: StrategyAll}).
		Loop([]Node{inc("tick")}, LoopConfig{MaxIterations: 3}).
		Then(appendLog("done")).End())

	first, err := collect(t, g, nil, WithExecutionID("same"))
	require.NoError(t, err)
	second, err := collect(t, g, nil, WithExecutionID("same"))
	require.NoError(t, err)

	assert.Equal(t, nodeIDs(first), nodeIDs(second))
	for i := range first {
		assert.Equal(t, first[i].Status, second[i].Status)
		assert.Equal(t, first[i].State.Values, second[i].State.Values)
	}
	final := first[len(first)-1].State
	assert.Equal(t, []string{"a", "b1", "b2", "c1", "done"}, state.Get[[]string](final, "log"))
	assert.Equal(t, 3, state.Int(final, "count"))
}

func TestRun_Loop(t *testing.T) {
	t.Run("until", func(t *testing.T) {
		g := mustCompile(t, NewBuilder("loop", counterSchema()).
			Start(noop("s")).
			Loop([]Node{inc("tick")}, LoopConfig{
				Until: func(s state.State) bool { return state.Int(s, "count") >= 3 },
			}).
			Then(noop("done")).End())

		res, err := g.Run(t.Context(), nil)
		require.NoError(t, err)
		assert.Equal(t, 3, state.Int(res.State, "count"))
		assert.Equal(t, 5, res.Steps)
		assert.Empty(t, res.Errors)
	})

	t.Run("max iterations without condition", func(t *testing.T) {
		g := mustCompile(t, NewBuilder("loop", counterSchema()).
			Start(noop("s")).
			Loop([]Node{inc("tick")}, LoopConfig{MaxIterations: 10}).
			Then(noop("done")).End())

		res, err := g.Run(t.Context(), nil)
		require.NoError(t, err)
		assert.Equal(t, 10, state.Int(res.State, "count"))
		assert.Empty(t, res.Errors)
	})

	t.Run("max iterations reached before condition", func(t *testing.T) {
		g := mustCompile(t, NewBuilder("loop", counterSchema()).
			Start(noop("s")).
			Loop([]Node{inc("tick")}, LoopConfig{
				Until:         func(state.State) bool { return false },
				MaxIterations: 10,
			}).
			Then(noop("done")).End())

		res, err := g.Run(t.Context(), nil)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, res.Status)
		assert.Equal(t, 10, state.Int(res.State, "count"))
		require.Len(t, res.Errors, 1)
		assert.Equal(t, ErrorKindLoopLimit, res.Errors[0].Kind)
		assert.Equal(t, "tick", res.Errors[0].NodeID)
		assert.False(t, res.Errors[0].Fatal)
	})

	t.Run("multi node body", func(t *testing.T) {
		g := mustCompile(t, NewBuilder("loop", counterSchema()).
			Start(noop("s")).
			Loop([]Node{appendLog("impl"), inc("review")}, LoopConfig{
				Until: func(s state.State) bool { return state.Int(s, "count") >= 2 },
			}).
			Then(noop("done")).End())

		res, err := g.Run(t.Context(), nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"impl", "impl"}, state.Get[[]string](res.State, "log"))
	})
}

func TestRun_Retry(t *testing.T) {
	boom := errors.New("boom")

	t.Run("succeeds after failures", func(t *testing.T) {
		var calls atomic.Int32
		flaky := Tool("flaky", func(*ExecutionContext) (map[string]any, error) {
			if calls.Add(1) < 3 {
				return nil, boom
			}
			return map[string]any{"count": 1}, nil
		}, WithRetry(RetryPolicy{MaxAttempts: 3, Backoff: 10 * time.Millisecond, Multiplier: 2}))

		g := mustCompile(t, NewBuilder("retry", counterSchema()).Start(flaky).End())

		start := time.Now()
		res, err := g.Run(t.Context(), nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
		assert.Equal(t, int32(3), calls.Load())
		assert.Equal(t, 1, state.Int(res.State, "count"))

		require.Len(t, res.Errors, 2)
		for i, e := range res.Errors {
			assert.Equal(t, i+1, e.Attempt)
			assert.Equal(t, ErrorKindNode, e.Kind)
			assert.False(t, e.Fatal)
		}
	})

	t.Run("exhausted", func(t *testing.T) {
		var calls atomic.Int32
		failing := Tool("failing", func(*ExecutionContext) (map[string]any, error) {
			calls.Add(1)
			return nil, boom
		}, WithRetry(RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}))

		g := mustCompile(t, NewBuilder("retry", counterSchema()).Start(failing).End())

		res, err := g.Run(t.Context(), nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, int32(3), calls.Load())

		var runErr *RunError
		require.ErrorAs(t, err, &runErr)
		assert.Equal(t, "failing", runErr.NodeID)
		assert.Equal(t, 3, runErr.Attempts())
		require.Len(t, runErr.Errors, 3)
		assert.True(t, runErr.Errors[2].Fatal)

		var nodeErr *NodeExecutionError
		require.ErrorAs(t, err, &nodeErr)
		assert.Equal(t, 3, nodeErr.Attempts)

		assert.Equal(t, StatusFailed, res.Status)
		require.NotNil(t, res.Snapshot)
		assert.Equal(t, checkpoint.StatusFailed, res.Snapshot.Status)
		assert.Equal(t, []string{"failing"}, res.Snapshot.Queue)
	})

	t.Run("graph default policy", func(t *testing.T) {
		var calls atomic.Int32
		failing := Tool("failing", func(*ExecutionContext) (map[string]any, error) {
			calls.Add(1)
			return nil, boom
		})
		g := mustCompile(t, NewBuilder("retry", counterSchema()).Start(failing).End(),
			WithDefaultRetry(RetryPolicy{MaxAttempts: 2}))

		_, err := g.Run(t.Context(), nil)
		require.Error(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Backoff: 100 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 400*time.Millisecond, p.Delay(3))

	flat := RetryPolicy{Backoff: 50 * time.Millisecond}
	assert.Equal(t, 50*time.Millisecond, flat.Delay(3))
	assert.Equal(t, 1, flat.Attempts())
	assert.Zero(t, RetryPolicy{}.Delay(1))
}

func TestRun_Panic(t *testing.T) {
	bad := Tool("bad", func(*ExecutionContext) (map[string]any, error) {
		panic("kaboom")
	})
	g := mustCompile(t, NewBuilder("panic", nil).Start(bad).End())

	_, err := g.Run(t.Context(), nil)
	var p *PanicError
	require.ErrorAs(t, err, &p)
	assert.Equal(t, "kaboom", p.Value)
	assert.NotEmpty(t, p.Stack)

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, ErrorKindPanic, runErr.Errors[0].Kind)
}

func TestRun_Catch(t *testing.T) {
	boom := errors.New("boom")
	failing := Tool("failing", func(*ExecutionContext) (map[string]any, error) { return nil, boom })
	handler := Tool("handler", func(ec *ExecutionContext) (map[string]any, error) {
		last, ok := ec.LastError()
		if !ok {
			return nil, errors.New("no error recorded")
		}
		return map[string]any{"log": "handled " + last.NodeID}, nil
	})
	rec := &testutil.RecordingNotifier{}

	g := mustCompile(t, NewBuilder("catch", counterSchema()).
		Start(failing).Then(appendLog("next")).End().
		Catch(handler).End(),
		WithRuntimeDependencies(RuntimeDependencies{Notifier: rec}))

	steps, err := collect(t, g, nil)
	require.NoError(t, err)
	require.Len(t, steps, 2)

	assert.Equal(t, "failing", steps[0].NodeID)
	assert.Equal(t, StatusFailed, steps[0].Status)
	assert.ErrorIs(t, steps[0].Err, boom)

	assert.Equal(t, "handler", steps[1].NodeID)
	assert.Equal(t, StatusCompleted, steps[1].Status)
	assert.Equal(t, []string{"handled failing"}, state.Get[[]string](steps[1].State, "log"))
	assert.Contains(t, rec.Types(), notify.EventNodeFailed)
}

func TestRun_CatchKeepsPendingWork(t *testing.T) {
	boom := errors.New("boom")
	fan := Func("fan", func(*ExecutionContext) (NodeResult, error) {
		return Goto("a", "b"), nil
	}, WithGotoTargets("a", "b"))
	failing := Tool("a", func(*ExecutionContext) (map[string]any, error) { return nil, boom })
	handler := Tool("handler", func(ec *ExecutionContext) (map[string]any, error) {
		return map[string]any{"log": "handled"}, nil
	})

	g := mustCompile(t, NewBuilder("catch-fan", counterSchema()).
		Start(fan).
		Add(failing).Add(appendLog("b")).
		Cursor("a").End().
		Cursor("b").End().
		Catch(handler).End())

	res, err := g.Run(t.Context(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, []string{"handled", "b"}, state.Get[[]string](res.State, "log"))
	assert.True(t, res.State.HasOutput("b"))
	assert.Equal(t, 4, res.Steps)
}

func TestRun_CatchHandlerFails(t *testing.T) {
	boom := errors.New("boom")
	fail := func(id string) *ToolNode {
		return Tool(id, func(*ExecutionContext) (map[string]any, error) { return nil, boom })
	}
	g := mustCompile(t, NewBuilder("catch", nil).
		Start(fail("failing")).End().
		Catch(fail("handler")).End())

	_, err := g.Run(t.Context(), nil)
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "handler", runErr.NodeID)
	assert.Len(t, runErr.Errors, 2)
}

func TestRun_StepLimit(t *testing.T) {
	g := mustCompile(t, NewBuilder("runaway", counterSchema()).
		Start(noop("s")).
		Loop([]Node{inc("tick")}, LoopConfig{MaxIterations: 100}).
		Then(noop("done")).End(),
		WithMaxSteps(5))

	res, err := g.Run(t.Context(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStepLimit)

	var limit *StepLimitError
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, 5, limit.Limit)
	assert.Equal(t, "tick", limit.NodeID)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 5, res.Steps)
	assert.Equal(t, 4, state.Int(res.State, "count"))
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, ErrorKindStepLimit, res.Errors[len(res.Errors)-1].Kind)
}

func TestRun_NoMatchingRoute(t *testing.T) {
	never := func(state.State) bool { return false }
	g := mustCompile(t, NewBuilder("stuck", nil).
		Start(noop("a")).
		Add(noop("b")).Cursor("b").End().
		Connect("a", "b", WithCondition(never)))

	_, err := g.Run(t.Context(), nil)
	assert.ErrorIs(t, err, ErrNoMatchingRoute)
}

func TestRun_EdgePriority(t *testing.T) {
	always := func(state.State) bool { return true }
	g := mustCompile(t, NewBuilder("priority", counterSchema()).
		Start(noop("a")).
		Add(appendLog("low")).Add(appendLog("high")).Add(appendLog("fallback")).
		Connect("a", "low", WithCondition(always), WithPriority(1)).
		Connect("a", "high", WithCondition(always), WithPriority(5)).
		Connect("a", "fallback").
		Cursor("low").End().
		Cursor("high").End().
		Cursor("fallback").End())

	res, err := g.Run(t.Context(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"high"}, state.Get[[]string](res.State, "log"))
}

func TestRun_GotoFanOut(t *testing.T) {
	fan := Func("fan", func(*ExecutionContext) (NodeResult, error) {
		return Goto("b", "c", "b"), nil
	}, WithGotoTargets("b", "c"))

	g := mustCompile(t, NewBuilder("goto", counterSchema()).
		Start(fan).
		Add(appendLog("b")).Add(appendLog("c")).
		Cursor("b").End().
		Cursor("c").End())

	steps, err := collect(t, g, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"fan", "b", "c"}, nodeIDs(steps))
	assert.Equal(t, []string{"b", "c"}, state.Get[[]string](steps[2].State, "log"))
}

func TestRun_GotoUnknownTarget(t *testing.T) {
	bad := Func("bad", func(*ExecutionContext) (NodeResult, error) {
		return Goto("ghost"), nil
	})
	g := mustCompile(t, NewBuilder("goto", nil).Start(bad).End())

	_, err := g.Run(t.Context(), nil)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestRun_StateError(t *testing.T) {
	bad := Tool("bad", func(*ExecutionContext) (map[string]any, error) {
		return map[string]any{"undeclared": true}, nil
	})
	g := mustCompile(t, NewBuilder("state", counterSchema()).Start(bad).End())

	_, err := g.Run(t.Context(), nil)
	var unknown *state.UnknownFieldError
	require.ErrorAs(t, err, &unknown)

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, ErrorKindState, runErr.Errors[0].Kind)
}

func TestRun_Cancellation(t *testing.T) {
	t.Run("between nodes", func(t *testing.T) {
		ctx, cancel := testutil.CancelableContext(t)
		first := Tool("first", func(*ExecutionContext) (map[string]any, error) {
			cancel()
			return map[string]any{"count": 1}, nil
		})
		g := mustCompile(t, NewBuilder("cancel", counterSchema()).
			Start(first).Then(inc("second")).End())

		res, err := g.Run(ctx, nil)
		var cancelled *CancelledError
		require.ErrorAs(t, err, &cancelled)
		assert.Equal(t, "second", cancelled.NodeID)
		assert.False(t, cancelled.WasExecuting)
		assert.ErrorIs(t, err, context.Canceled)

		assert.Equal(t, StatusCancelled, res.Status)
		require.NotNil(t, res.Snapshot)
		assert.Equal(t, []string{"second"}, res.Snapshot.Queue)

		resumed, err := g.Resume(t.Context(), res.Snapshot, nil)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, resumed.Status)
		assert.Equal(t, 2, state.Int(resumed.State, "count"))
	})

	t.Run("during node", func(t *testing.T) {
		ctx, cancel := testutil.CancelableContext(t)
		blocking := Tool("blocking", func(ec *ExecutionContext) (map[string]any, error) {
			cancel()
			<-ec.Done()
			return nil, ec.Err()
		}, WithRetry(RetryPolicy{MaxAttempts: 5}))
		g := mustCompile(t, NewBuilder("cancel", nil).Start(blocking).End())

		res, err := g.Run(ctx, nil)
		var cancelled *CancelledError
		require.ErrorAs(t, err, &cancelled)
		assert.Equal(t, "blocking", cancelled.NodeID)
		assert.True(t, cancelled.WasExecuting)
		assert.Equal(t, StatusCancelled, res.Status)
		assert.Equal(t, []string{"blocking"}, res.Snapshot.Queue)
	})
}

func TestStream_ConsumedOnce(t *testing.T) {
	g := decisionGraph(t)
	seq := g.Stream(t.Context(), nil)

	count := 0
	for _, err := range seq {
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 4, count)

	for _, err := range seq {
		assert.ErrorIs(t, err, ErrStreamConsumed)
	}
}

func TestStream_FinalErrorElement(t *testing.T) {
	boom := errors.New("boom")
	g := mustCompile(t, NewBuilder("fail", nil).
		Start(noop("a")).
		Then(Tool("b", func(*ExecutionContext) (map[string]any, error) { return nil, boom })).
		End())

	var last StepResult
	var lastErr error
	for step, err := range g.Stream(t.Context(), nil) {
		if err == nil {
			require.Nil(t, lastErr, "no steps after the error element")
		}
		last, lastErr = step, err
	}
	require.ErrorIs(t, lastErr, boom)
	assert.Equal(t, "b", last.NodeID)
	assert.Equal(t, StatusFailed, last.Status)
}

func TestStream_BreakEarly(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	g := mustCompile(t, NewBuilder("early", counterSchema()).
		Start(inc("a")).Then(inc("b")).Then(inc("c")).End(),
		WithCheckpointStore(store))

	for step, err := range g.Stream(t.Context(), nil, WithExecutionID("early-1")) {
		require.NoError(t, err)
		if step.NodeID == "a" {
			break
		}
	}

	snap, err := store.Load(t.Context(), "early-1")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusRunning, snap.Status)
	assert.Equal(t, []string{"b"}, snap.Queue)

	res, err := g.ResumeFromStore(t.Context(), "early-1", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 3, state.Int(res.State, "count"))
	assert.Equal(t, 3, res.Steps)
}

func TestRun_CheckpointSignal(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	save := Func("save", func(*ExecutionContext) (NodeResult, error) {
		return NodeResult{Update: map[string]any{"count": 1}, Signals: []Signal{CheckpointRequested()}}, nil
	})
	var midRun *checkpoint.Snapshot
	after := Tool("after", func(ec *ExecutionContext) (map[string]any, error) {
		snap, err := store.Load(ec, ec.ExecutionID)
		if err != nil {
			return nil, err
		}
		midRun = snap
		return map[string]any{"count": 1}, nil
	})
	g := mustCompile(t, NewBuilder("save", counterSchema()).
		Start(save).Then(after).End(),
		WithCheckpointStore(store))

	_, err := g.Run(t.Context(), nil, WithExecutionID("cp-1"))
	require.NoError(t, err)

	require.NotNil(t, midRun)
	assert.Equal(t, checkpoint.StatusRunning, midRun.Status)
	assert.Equal(t, 1, midRun.Step)
	assert.Equal(t, []string{"after"}, midRun.Queue)

	final, err := store.Load(t.Context(), "cp-1")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusCompleted, final.Status, "finished runs replace their running snapshot")
	assert.Equal(t, 2, final.Step)
}

func TestStream_BreakOnFinalStep(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	save := Func("save", func(*ExecutionContext) (NodeResult, error) {
		return NodeResult{Signals: []Signal{CheckpointRequested()}}, nil
	})
	g := mustCompile(t, NewBuilder("final", counterSchema()).
		Start(save).Then(inc("last")).End(),
		WithCheckpointStore(store))

	for step, err := range g.Stream(t.Context(), nil, WithExecutionID("final-1")) {
		require.NoError(t, err)
		if step.Status == StatusCompleted {
			break
		}
	}

	snap, err := store.Load(t.Context(), "final-1")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusCompleted, snap.Status)
	assert.Empty(t, snap.Queue)
	assert.False(t, snap.Resumable())
}

func TestRun_AutoCheckpointWithoutStore(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	g := mustCompile(t, NewBuilder("nostore", counterSchema()).
		Start(inc("a")).Then(inc("b")).Then(inc("c")).End(),
		WithAutoCheckpoint(true),
		WithRuntimeDependencies(RuntimeDependencies{Logger: logger}))

	res, err := g.Run(t.Context(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 1, strings.Count(buf.String(), "no store configured"))
}

func TestRun_AutoCheckpoint(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	g := mustCompile(t, NewBuilder("auto", counterSchema()).
		Start(inc("a")).Then(inc("b")).End(),
		WithCheckpointStore(store), WithAutoCheckpoint(true))

	_, err := g.Run(t.Context(), nil, WithExecutionID("auto-1"))
	require.NoError(t, err)

	snap, err := store.Load(t.Context(), "auto-1")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.Step)
	assert.Empty(t, snap.Queue)

	_, err = g.Resume(t.Context(), snap, nil)
	assert.ErrorIs(t, err, ErrNotResumable)
}

func TestRun_Notifications(t *testing.T) {
	rec := &testutil.RecordingNotifier{}
	g := decisionGraph(t)

	_, err := g.Run(t.Context(), nil, WithDependencies(RuntimeDependencies{Notifier: rec}))
	require.NoError(t, err)
	assert.Equal(t, []notify.EventType{notify.EventRunStarted, notify.EventRunCompleted}, rec.Types())
	for _, e := range rec.Events() {
		assert.Equal(t, "decide", e.Graph)
	}
}

// slowLog appends id to log after d.
func slowLog(id string, d time.Duration) *ToolNode {
	return Tool(id, func(ec *ExecutionContext) (map[string]any, error) {
		select {
		case <-time.After(d):
			return map[string]any{"log": id}, nil
		case <-ec.Done():
			return nil, ec.Err()
		}
	})
}
