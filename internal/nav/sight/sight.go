// Package sight reduces a block scan to the subset an observer can actually
// see. Occlusion is decided per block by walking the ray from the eye to
// the block center across every grid cell it crosses; a solid cell strictly
// between the two ends hides the target.
package sight

import (
	"math"
	"sort"

	"voxelscout.ai/internal/nav/classify"
	"voxelscout.ai/internal/nav/voxel"
)

const DefaultEyeHeight = 1.5

type Options struct {
	// EyeHeight is added to the observer's Y before casting rays.
	// Zero means DefaultEyeHeight.
	EyeHeight float64

	// AllCandidates keeps passable blocks that float without support.
	// Default behavior drops them: loose foliage mid-air is noise, while
	// plants resting on the ground are terrain worth reporting.
	AllCandidates bool
}

// FilterVisible returns every block position with unobstructed line of
// sight from the observer's eye point, in ascending (x, y, z) order.
// An empty scan yields an empty result.
func FilterVisible(observer voxel.Point, scan voxel.Scan, table classify.Table, opts Options) []voxel.Pos {
	if len(scan) == 0 {
		return nil
	}
	eyeHeight := opts.EyeHeight
	if eyeHeight == 0 {
		eyeHeight = DefaultEyeHeight
	}
	eye := voxel.Point{X: observer.X, Y: observer.Y + eyeHeight, Z: observer.Z}

	flags := make(map[voxel.Pos]classify.Flags, len(scan))
	solid := make(map[voxel.Pos]bool, len(scan))
	for p, b := range scan {
		f := table.Classify(b.Code, b.Solid)
		flags[p] = f
		if f.SolidForMovement {
			solid[p] = true
		}
	}

	out := make([]voxel.Pos, 0, len(scan))
	for p := range scan {
		f := flags[p]
		if !opts.AllCandidates && !f.SolidForMovement && !f.Hazard {
			below, ok := flags[voxel.Pos{X: p.X, Y: p.Y - 1, Z: p.Z}]
			if !ok || !below.SolidForMovement {
				continue
			}
		}
		if rayReaches(eye, p, solid) {
			out = append(out, p)
		}
	}
	sortPositions(out)
	return out
}

// SurfaceOnly keeps blocks with at least one exposed face: a face neighbor
// absent from the scan or not solid for movement. The result is always a
// subset of the input, order preserved.
func SurfaceOnly(visible []voxel.Pos, scan voxel.Scan, table classify.Table) []voxel.Pos {
	faces := [6]voxel.Pos{
		{X: 1}, {X: -1},
		{Y: 1}, {Y: -1},
		{Z: 1}, {Z: -1},
	}

	out := make([]voxel.Pos, 0, len(visible))
	for _, p := range visible {
		if !scan.Has(p) {
			continue
		}
		for _, d := range faces {
			n := voxel.Pos{X: p.X + d.X, Y: p.Y + d.Y, Z: p.Z + d.Z}
			nb, ok := scan[n]
			if !ok || !table.Classify(nb.Code, nb.Solid).SolidForMovement {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// rayReaches walks the eye-to-center ray with the incremental voxel
// traversal: keep the parametric distance to the next x, y and z cell
// boundary, advance along the smallest, and advance tied axes together.
// The eye's own cell never occludes, nor does the target cell itself.
func rayReaches(eye voxel.Point, target voxel.Pos, solid map[voxel.Pos]bool) bool {
	cur := voxel.CellOf(eye)
	if cur == target {
		return true
	}

	tc := target.Center()
	dx := tc.X - eye.X
	dy := tc.Y - eye.Y
	dz := tc.Z - eye.Z
	dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
	if dist == 0 {
		return true
	}

	stepX, tMaxX, tDeltaX := axisSetup(eye.X, dx/dist)
	stepY, tMaxY, tDeltaY := axisSetup(eye.Y, dy/dist)
	stepZ, tMaxZ, tDeltaZ := axisSetup(eye.Z, dz/dist)

	x, y, z := cur.X, cur.Y, cur.Z
	for {
		traveled := math.Min(tMaxX, math.Min(tMaxY, tMaxZ))
		if traveled > dist {
			return true
		}
		if tMaxX == traveled {
			x += stepX
			tMaxX += tDeltaX
		}
		if tMaxY == traveled {
			y += stepY
			tMaxY += tDeltaY
		}
		if tMaxZ == traveled {
			z += stepZ
			tMaxZ += tDeltaZ
		}
		cell := voxel.Pos{X: x, Y: y, Z: z}
		if cell == target {
			return true
		}
		if traveled > 0 && solid[cell] {
			return false
		}
	}
}

// axisSetup returns the step direction, the ray distance to the first cell
// boundary on this axis, and the ray distance between boundaries. A zero
// direction component never advances (infinite boundary distance).
func axisSetup(origin, dir float64) (step int, tMax, tDelta float64) {
	switch {
	case dir > 0:
		return 1, (math.Floor(origin) + 1 - origin) / dir, 1 / dir
	case dir < 0:
		return -1, (origin - math.Floor(origin)) / -dir, 1 / -dir
	default:
		return 0, math.Inf(1), math.Inf(1)
	}
}

func sortPositions(ps []voxel.Pos) {
	sort.Slice(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
}
