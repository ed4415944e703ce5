package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/agentgraph/state"
)

// forkResult carries the outcome of a parallel node's branches back to the
// main loop, which merges them into run state.
type forkResult struct {
	branches []branchRun // merged branches, declaration order
	steps    []StepResult
}

// branchRun is one branch executed on its own copy of state.
type branchRun struct {
	head    string
	records []branchRecord
	steps   []StepResult
	errs    []ExecutionError
	err     error
}

type branchRecord struct {
	nodeID string
	result NodeResult
}

// fork runs the branches of p concurrently and joins them by p's strategy.
// Updates are merged later in declaration order, never completion order.
func (r *run) fork(ec *ExecutionContext, p *ParallelNode) (NodeResult, error) {
	ctx, cancel := context.WithCancel(ec)
	defer cancel()

	var budget int64
	if max := r.g.config.MaxSteps; max > 0 {
		budget = int64(max - r.step - 1)
		if budget <= 0 {
			return NodeResult{}, &StepLimitError{Limit: max, NodeID: p.heads[0]}
		}
	}
	var used atomic.Int64

	runs := make([]branchRun, len(p.heads))
	var winner atomic.Int32
	winner.Store(-1)

	group, gctx := errgroup.WithContext(ctx)
	if limit := r.g.config.ParallelLimit; limit > 0 {
		group.SetLimit(limit)
	}
	for i, head := range p.heads {
		group.Go(func() error {
			runs[i] = r.runBranch(gctx, p, head, ec.State, ec.Errors, budget, &used)
			switch p.strategy {
			case StrategyAll:
				return runs[i].err
			case StrategyRace:
				if runs[i].err == nil && winner.CompareAndSwap(-1, int32(i)) {
					cancel()
				}
			}
			return nil
		})
	}
	groupErr := group.Wait()

	for _, b := range runs {
		ec.addNested(b.errs)
	}
	if err := ec.Err(); err != nil {
		return NodeResult{}, context.Cause(ec)
	}

	var merged []branchRun
	switch p.strategy {
	case StrategyAll:
		if groupErr != nil {
			return NodeResult{}, firstBranchError(runs, groupErr)
		}
		merged = runs
	case StrategyAny:
		for _, b := range runs {
			if b.err == nil {
				merged = append(merged, b)
			}
		}
		if len(merged) == 0 {
			return NodeResult{}, joinBranchErrors(runs)
		}
	case StrategyRace:
		w := winner.Load()
		if w < 0 {
			return NodeResult{}, joinBranchErrors(runs)
		}
		merged = []branchRun{runs[w]}
	}

	fr := &forkResult{branches: merged}
	heads := make([]string, len(merged))
	for i, b := range merged {
		heads[i] = b.head
		fr.steps = append(fr.steps, b.steps...)
	}
	return NodeResult{Goto: []string{p.join}, Output: heads, fork: fr}, nil
}

// runBranch drives one branch from head until it reaches the join node or
// an end node.
func (r *run) runBranch(ctx context.Context, p *ParallelNode, head string, st state.State, prior []ExecutionError, budget int64, used *atomic.Int64) branchRun {
	b := branchRun{head: head}
	loops := make(map[string]int)
	fail := func(id string, err error) branchRun {
		b.err = fmt.Errorf("branch %s at %s: %w", head, id, err)
		return b
	}

	for cur := head; cur != p.join; {
		if err := ctx.Err(); err != nil {
			return fail(cur, context.Cause(ctx))
		}
		if budget > 0 && used.Add(1) > budget {
			b.err = &StepLimitError{Limit: r.g.config.MaxSteps, NodeID: cur}
			return b
		}

		n := r.g.nodes[cur]
		res, errs, err := r.execute(ctx, n, st, append(slices.Clone(prior), b.errs...))
		b.errs = append(b.errs, errs...)
		if err != nil {
			var limit *StepLimitError
			if errors.As(err, &limit) {
				b.err = err
				return b
			}
			return fail(cur, err)
		}
		if _, ok := res.signal(SignalHumanInputRequired); ok {
			return fail(cur, fmt.Errorf("%w: human input requested inside a branch", ErrInvalidParallel))
		}

		next, err := r.merge(st, cur, res)
		if err != nil {
			return fail(cur, err)
		}
		st = next
		b.records = append(b.records, branchRecord{nodeID: cur, result: res})
		if res.fork != nil {
			b.steps = append(b.steps, res.fork.steps...)
		}
		stepRes := res
		stepRes.fork = nil
		b.steps = append(b.steps, StepResult{
			NodeID: cur,
			Kind:   n.Kind(),
			State:  st,
			Result: &stepRes,
			Status: StatusRunning,
			Branch: p.id,
		})
		r.observeSignals(ctx, n, res)

		targets, loopErr, err := r.next(n, res, st, loops)
		if loopErr != nil {
			b.errs = append(b.errs, *loopErr)
		}
		if err != nil {
			return fail(cur, err)
		}
		switch len(targets) {
		case 0:
			return b
		case 1:
			cur = targets[0]
		default:
			return fail(cur, fmt.Errorf("%w: %v", ErrBranchDiverged, targets))
		}
	}
	return b
}

func firstBranchError(runs []branchRun, fallback error) error {
	for _, b := range runs {
		if b.err != nil && !errors.Is(b.err, context.Canceled) {
			return b.err
		}
	}
	return fallback
}

func joinBranchErrors(runs []branchRun) error {
	errs := make([]error, 0, len(runs))
	for _, b := range runs {
		if b.err != nil {
			errs = append(errs, b.err)
		}
	}
	return fmt.Errorf("%w: %w", ErrAllBranchesFailed, errors.Join(errs...))
}
