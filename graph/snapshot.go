package graph

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/randalmurphal/agentgraph/checkpoint"
	"github.com/randalmurphal/agentgraph/state"
)

// snapshot captures everything needed to resume the run.
func (r *run) snapshot(status Status) (*checkpoint.Snapshot, error) {
	values, err := r.g.schema.Encode(r.state.Values)
	if err != nil {
		return nil, err
	}
	outputs := make(map[string]checkpoint.RawMessage, len(r.state.Outputs))
	for id, v := range r.state.Outputs {
		data, err := checkpoint.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode output of %s: %w", id, err)
		}
		outputs[id] = data
	}

	records := make([]checkpoint.ErrorRecord, len(r.errors))
	for i, e := range r.errors {
		records[i] = checkpoint.ErrorRecord{
			NodeID:    e.NodeID,
			Attempt:   e.Attempt,
			Kind:      string(e.Kind),
			Message:   e.Message,
			Timestamp: e.Timestamp,
			Fatal:     e.Fatal,
		}
	}

	return &checkpoint.Snapshot{
		Version:      checkpoint.SnapshotVersion,
		ExecutionID:  r.executionID,
		Graph:        r.g.name,
		Values:       values,
		Outputs:      outputs,
		LastUpdated:  r.state.LastUpdated,
		Queue:        slices.Clone(r.queue),
		LoopCounters: maps.Clone(r.loops),
		Errors:       records,
		Step:         r.step,
		Status:       checkpoint.Status(status),
		PausedAt:     r.pausedAt,
		Prompt:       r.prompt,
	}, nil
}

// checkpoint builds a snapshot and saves it when a store is configured.
func (r *run) checkpoint(ctx context.Context, status Status) (*checkpoint.Snapshot, error) {
	snap, err := r.snapshot(status)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	if r.store == nil {
		return snap, nil
	}
	if err := r.store.Save(context.WithoutCancel(ctx), r.executionID, snap); err != nil {
		return snap, fmt.Errorf("save checkpoint: %w", err)
	}
	r.saved = true
	r.logger.Debug("checkpoint saved",
		"execution_id", r.executionID,
		"step", r.step,
		"status", status,
	)
	return snap, nil
}

// restore loads snapshot contents into the run. snap must already be a
// copy owned by the run.
func (r *run) restore(snap *checkpoint.Snapshot) error {
	values, err := r.g.schema.Decode(snap.Values)
	if err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	outputs := make(map[string]any, len(snap.Outputs))
	for id, raw := range snap.Outputs {
		var v any
		if len(raw) > 0 {
			if err := checkpoint.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("decode output of %s: %w", id, err)
			}
		}
		outputs[id] = v
	}
	for _, id := range snap.Queue {
		if _, ok := r.g.nodes[id]; !ok {
			return fmt.Errorf("%w: queued node %s", ErrNodeNotFound, id)
		}
	}

	r.executionID = snap.ExecutionID
	r.state = state.State{
		ExecutionID: snap.ExecutionID,
		LastUpdated: snap.LastUpdated,
		Outputs:     outputs,
		Values:      values,
	}
	r.queue = snap.Queue
	r.loops = snap.LoopCounters
	if r.loops == nil {
		r.loops = make(map[string]int)
	}
	r.step = snap.Step
	r.errors = make([]ExecutionError, len(snap.Errors))
	for i, e := range snap.Errors {
		r.errors[i] = ExecutionError{
			NodeID:    e.NodeID,
			Attempt:   e.Attempt,
			Kind:      ErrorKind(e.Kind),
			Message:   e.Message,
			Timestamp: e.Timestamp,
			Fatal:     e.Fatal,
		}
	}
	return nil
}
