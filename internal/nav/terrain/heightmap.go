// Package terrain derives standable surfaces from a block scan.
package terrain

import (
	"sort"

	"voxelscout.ai/internal/nav/classify"
	"voxelscout.ai/internal/nav/voxel"
)

// Heightmap maps a column to the elevation of its standable surface.
// Columns with no standable surface in the scanned volume are absent.
type Heightmap map[voxel.Column]int

type Options struct {
	// PreferNearY selects the candidate surface closest to this elevation
	// instead of the topmost one. Indoors the scan sees both the roof and
	// the floor under the agent; preferring the agent's own elevation keeps
	// the floor.
	PreferNearY *int
}

// Build scans each column from highest to lowest and keeps the first cell
// that is a walkable surface with head room above it. Rebuilt fresh from
// every scan; the result is independent of map iteration order.
func Build(scan voxel.Scan, table classify.Table, opts Options) Heightmap {
	byCol := make(map[voxel.Column][]voxel.Block)
	for _, b := range scan {
		col := b.Pos.Column()
		byCol[col] = append(byCol[col], b)
	}

	hm := make(Heightmap, len(byCol))
	for col, blocks := range byCol {
		sort.Slice(blocks, func(i, j int) bool { return blocks[i].Pos.Y > blocks[j].Pos.Y })

		if opts.PreferNearY == nil {
			for _, b := range blocks {
				if standable(scan, table, b) {
					hm[col] = b.Pos.Y
					break
				}
			}
			continue
		}

		prefer := *opts.PreferNearY
		best, bestDiff := 0, -1
		for _, b := range blocks {
			if !standable(scan, table, b) {
				continue
			}
			diff := b.Pos.Y - prefer
			if diff < 0 {
				diff = -diff
			}
			// Highest-first iteration keeps the upper candidate on ties.
			if bestDiff < 0 || diff < bestDiff {
				best, bestDiff = b.Pos.Y, diff
			}
		}
		if bestDiff >= 0 {
			hm[col] = best
		}
	}
	return hm
}

func standable(scan voxel.Scan, table classify.Table, b voxel.Block) bool {
	if !table.Classify(b.Code, b.Solid).WalkableSurface {
		return false
	}
	above, ok := scan[voxel.Pos{X: b.Pos.X, Y: b.Pos.Y + 1, Z: b.Pos.Z}]
	if !ok {
		return true
	}
	return !table.Classify(above.Code, above.Solid).SolidForMovement
}
