// Package position computes pixel coordinates from grid coordinates, and
// searches for a free grid slot near a target when placing a single
// vertex relative to its already-placed neighbours.
package position

import (
	"context"

	"github.com/citegraph/layout-engine/internal/graphstore"
	"github.com/citegraph/layout-engine/pkg/model"
)

// Coordinates maps (layer, level) to (x, y) using the fixed spacing
// constants. Pure function, no perturbation.
func Coordinates(layer, level int) (x, y float64) {
	return float64(layer) * model.LayerSpacing, float64(level) * model.LevelSpacing
}

// OptimalPosition finds where a single vertex (identified by its direct
// neighbours' uids) should be placed: the rounded average position of its
// already-placed neighbours if any exist, otherwise the given fallback.
func OptimalPosition(ctx context.Context, store graphstore.Store, neighborUIDs []string, fallbackLayer, fallbackLevel int) (layer, level int, err error) {
	avgLayer, avgLevel, ok, err := store.AverageNeighborPosition(ctx, neighborUIDs)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return fallbackLayer, fallbackLevel, nil
	}
	return avgLayer, avgLevel, nil
}

// FreeSlot finds an unoccupied (layer, level) near (targetLayer,
// targetLevel): it tries the exact slot first, then creates a fresh level
// one above the current maximum level occupied in that layer. Levels are
// intentionally unbounded.
func FreeSlot(ctx context.Context, store graphstore.Store, targetLayer, targetLevel int) (layer, level int, err error) {
	occupied, err := store.SlotOccupied(ctx, targetLayer, targetLevel)
	if err != nil {
		return 0, 0, err
	}
	if !occupied {
		return targetLayer, targetLevel, nil
	}

	maxLevel, err := store.MaxLevelInLayer(ctx, targetLayer)
	if err != nil {
		return 0, 0, err
	}
	return targetLayer, maxLevel + 1, nil
}
