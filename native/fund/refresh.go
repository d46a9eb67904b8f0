package fund

import (
	"context"

	"basketfund/core/events"
)

// RefreshResult summarizes a snapshot refresh pass.
type RefreshResult struct {
	WorkflowID string
	Updated    int
	Failed     int
	Snapshot   *Snapshot
}

// Refresh re-reads every venue deposit balance and overwrites the cached
// snapshot. Positions whose query failed keep their previous value.
// Any caller may refresh; access control belongs to the transport.
func (e *Engine) Refresh(ctx context.Context) (*RefreshResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInitialized(); err != nil {
		return nil, err
	}
	workflowID := e.newID()
	started := e.now()
	updated, failed := e.refreshSnapshotLocked(ctx, workflowID)
	result := &RefreshResult{
		WorkflowID: workflowID,
		Updated:    updated,
		Failed:     failed,
		Snapshot:   e.snapshot.Clone(),
	}
	e.record(ctx, WorkflowRecord{
		ID:         workflowID,
		Kind:       WorkflowRefresh,
		Status:     StatusCompleted,
		StartedAt:  started,
		FinishedAt: e.now(),
	})
	return result, nil
}

// refreshSnapshotLocked runs the balance fan-out and folds the joined
// legs into the cached snapshot. This is the only code path that writes
// the snapshot; workflow continuations read it but never mutate it
// themselves. Callers hold the engine lock.
func (e *Engine) refreshSnapshotLocked(ctx context.Context, workflowID string) (updated, failed int) {
	legs := e.depositBalances(ctx)
	for _, leg := range legs {
		if leg.err != nil {
			failed++
			e.logger.Warn("deposit balance query failed",
				"position", leg.index, "workflowId", workflowID, "err", leg.err)
			continue
		}
		if err := e.snapshot.setPosition(leg.index, leg.balance); err != nil {
			failed++
			e.logger.Warn("snapshot update rejected",
				"position", leg.index, "workflowId", workflowID, "err", err)
			continue
		}
		updated++
	}
	if err := e.state.PutSnapshot(e.snapshot.Values()); err != nil {
		e.logger.Warn("snapshot persistence failed", "workflowId", workflowID, "err", err)
	}
	e.emitter.Emit(events.SnapshotRefreshed{
		Updated:    updated,
		Failed:     failed,
		WorkflowID: workflowID,
	})
	e.logger.Info("snapshot refreshed",
		"updated", updated, "failed", failed, "workflowId", workflowID)
	return updated, failed
}
