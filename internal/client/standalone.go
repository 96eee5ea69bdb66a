package client

import (
	"fmt"
	"log/slog"

	"github.com/ezeslucky/drawio/internal/models"
	"github.com/ezeslucky/drawio/internal/replica"
)

// SnapshotStore persists the local replica in standalone mode.
type SnapshotStore interface {
	LoadCanvas() ([]models.Shape, error)
	SaveCanvas(shapes []models.Shape) error
}

// OpenStandalone loads the persisted canvas into the replica and wires
// it so every accepted mutation is written back. Standalone mode has no
// server: the replica is the only authority.
func OpenStandalone(store SnapshotStore, rep *replica.Replica) error {
	shapes, err := store.LoadCanvas()
	if err != nil {
		return fmt.Errorf("failed to load canvas snapshot: %w", err)
	}
	if len(shapes) > 0 {
		rep.ApplyBatch(shapes)
	}

	rep.SetOnChange(func(shapes []models.Shape) {
		if err := store.SaveCanvas(shapes); err != nil {
			slog.Error("failed to save canvas snapshot", "error", err)
		}
	})

	return nil
}
