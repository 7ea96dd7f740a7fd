package backtest

import (
	"context"
	"fmt"
	"log/slog"

	"bytra_go/internal/event"
	"bytra_go/internal/position"
	"bytra_go/internal/storage"
)

// RestorePosition rebuilds tracker state from the journal: accepted order
// placements are tracked again and executions re-applied in journal order.
// It returns the number of entries applied.
func RestorePosition(ctx context.Context, j *storage.Journal, tr *position.Tracker) (int, error) {
	entries, err := j.Load(ctx, 1)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, e := range entries {
		ev, err := e.Event()
		if err != nil {
			return applied, fmt.Errorf("restore: %w", err)
		}
		switch v := ev.(type) {
		case *event.OrderAction:
			if v.Action != "place" || v.Error != "" {
				continue
			}
			tr.Track(v.Request, v.Handle)
			applied++
		case *event.ExecutionEvent:
			for _, ex := range v.Executions {
				ok, err := tr.Apply(ex)
				if err != nil {
					slog.Warn("Restore skipped execution",
						slog.String("order_id", ex.OrderID),
						slog.Any("error", err))
					continue
				}
				if ok {
					applied++
				}
			}
		}
	}

	slog.Info("Position restored from journal",
		slog.Int("entries", len(entries)),
		slog.Int("applied", applied),
		slog.String("side", string(tr.Position().Side)))
	return applied, nil
}
