// Package retention prunes stored conversation history down to the retained window.
package retention

import (
	"context"
	"log/slog"
	"time"
)

// Pruner deletes all but the latest keep turns per user.
type Pruner interface {
	PruneTurns(ctx context.Context, keep int) (int64, error)
}

// StartWorker prunes once immediately and then on every interval until ctx is
// done. The returned channel closes when the worker exits.
func StartWorker(ctx context.Context, pruner Pruner, interval time.Duration, keep int) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", interval, "keep_turns", keep)

		PruneOnce(ctx, pruner, keep)
		for {
			select {
			case <-ticker.C:
				PruneOnce(ctx, pruner, keep)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

// PruneOnce runs a single pruning pass and returns how many turns it removed.
func PruneOnce(ctx context.Context, pruner Pruner, keep int) int64 {
	removed, err := pruner.PruneTurns(ctx, keep)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("Retention pass interrupted", "error", err)
			return 0
		}
		slog.Error("Retention worker failed to prune turns", "error", err)
		return 0
	}
	if removed > 0 {
		slog.Info("Retention worker pruned turns", "removed", removed, "keep_turns", keep)
	}
	return removed
}
