package graph

import (
	"context"
	"errors"
	"runtime/debug"
	"slices"
	"time"

	"github.com/randalmurphal/agentgraph/observability"
	"github.com/randalmurphal/agentgraph/state"
)

func (r *run) policy(n Node) RetryPolicy {
	if p, ok := n.base().Retry(); ok {
		return p
	}
	return r.g.config.DefaultRetry
}

// execute runs a node with its retry policy. It returns the execution
// errors recorded along the way, one per failed attempt.
func (r *run) execute(ctx context.Context, n Node, st state.State, prior []ExecutionError) (NodeResult, []ExecutionError, error) {
	policy := r.policy(n)
	var recorded []ExecutionError

	for attempt := 1; ; attempt++ {
		seen := append(slices.Clone(prior), recorded...)
		res, nested, err := r.attempt(ctx, n, st, seen, attempt)
		recorded = append(recorded, nested...)
		if err == nil {
			return res, recorded, nil
		}
		if ctx.Err() != nil {
			return NodeResult{}, recorded, err
		}

		var limit *StepLimitError
		isLimit := errors.As(err, &limit)
		exhausted := isLimit || attempt >= policy.Attempts()
		recorded = append(recorded, ExecutionError{
			NodeID:    n.ID(),
			Attempt:   attempt,
			Kind:      errorKind(err),
			Message:   err.Error(),
			Timestamp: time.Now().UTC(),
			Fatal:     exhausted,
		})
		if isLimit {
			return NodeResult{}, recorded, err
		}
		if exhausted {
			return NodeResult{}, recorded, &NodeExecutionError{NodeID: n.ID(), Attempts: attempt, Err: err}
		}

		delay := policy.Delay(attempt)
		r.tel.RecordRetry(ctx, n.ID())
		r.logger.Warn("node failed, retrying",
			"execution_id", r.executionID,
			"node_id", n.ID(),
			"attempt", attempt,
			"max_attempts", policy.Attempts(),
			"delay", delay,
			"error", err,
		)
		if err := sleep(ctx, delay); err != nil {
			return NodeResult{}, recorded, err
		}
	}
}

// attempt runs a node once, converting a panic into a PanicError.
func (r *run) attempt(ctx context.Context, n Node, st state.State, prior []ExecutionError, attempt int) (res NodeResult, nested []ExecutionError, err error) {
	nctx, span := r.tel.StartNode(ctx, n.ID(), string(n.Kind()), attempt)
	ec := r.newContext(nctx, n, st, prior, attempt)
	start := time.Now()

	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{NodeID: n.ID(), Value: v, Stack: string(debug.Stack())}
		}
		nested = ec.takeNested()
		elapsed := time.Since(start)
		r.tel.RecordNode(ctx, n.ID(), elapsed, err)

		status := string(StatusCompleted)
		if err != nil {
			status = string(StatusFailed)
		}
		observability.EndSpan(span, status, err)
		r.logger.Debug("node attempt finished",
			"execution_id", r.executionID,
			"node_id", n.ID(),
			"attempt", attempt,
			"duration_ms", elapsed.Milliseconds(),
			"status", status,
		)
	}()

	res, err = n.Execute(ec)
	res.Signals = append(res.Signals, ec.drainSignals()...)
	return res, nil, err
}

func errorKind(err error) ErrorKind {
	var p *PanicError
	var limit *StepLimitError
	switch {
	case errors.As(err, &p):
		return ErrorKindPanic
	case errors.As(err, &limit):
		return ErrorKindStepLimit
	default:
		return ErrorKindNode
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}
