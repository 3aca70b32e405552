// Package navtest builds terrain fixtures for navigation tests. A Harness
// starts from an empty scan and the default block table; tests stack
// floors, walls and single blocks onto it and then run routes against the
// result.
package navtest

import (
	"testing"

	"voxelscout.ai/internal/nav/classify"
	"voxelscout.ai/internal/nav/route"
	"voxelscout.ai/internal/nav/terrain"
	"voxelscout.ai/internal/nav/voxel"
)

type Harness struct {
	T     *testing.T
	Table classify.Table
	Scan  voxel.Scan
}

func New(t *testing.T) *Harness {
	t.Helper()
	return &Harness{T: t, Table: classify.DefaultTable(), Scan: voxel.Scan{}}
}

// Floor fills the rectangle [x1..x2] x [z1..z2] at height y with solid
// blocks of the given code.
func (h *Harness) Floor(x1, z1, x2, z2, y int, code string) *Harness {
	return h.Box(x1, y, z1, x2, y, z2, code)
}

// Box fills the inclusive volume between the two corners with solid blocks.
func (h *Harness) Box(x1, y1, z1, x2, y2, z2 int, code string) *Harness {
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	if z2 < z1 {
		z1, z2 = z2, z1
	}
	for x := x1; x <= x2; x++ {
		for y := y1; y <= y2; y++ {
			for z := z1; z <= z2; z++ {
				h.Block(x, y, z, code, true)
			}
		}
	}
	return h
}

// Block places a single block with an explicit engine solidity flag.
func (h *Harness) Block(x, y, z int, code string, solid bool) *Harness {
	h.Scan.Add(voxel.Block{Pos: voxel.Pos{X: x, Y: y, Z: z}, Code: code, Solid: solid})
	return h
}

// Clear removes the block at the given cell, digging holes into fixtures.
func (h *Harness) Clear(x, y, z int) *Harness {
	delete(h.Scan, voxel.Pos{X: x, Y: y, Z: z})
	return h
}

func (h *Harness) Heightmap() terrain.Heightmap {
	return terrain.Build(h.Scan, h.Table, terrain.Options{})
}

// Route runs a default-profile search between two standing cells.
func (h *Harness) Route(start, target voxel.Pos) route.Result {
	return route.Find(route.Request{
		Start:  start,
		Target: target,
		Scan:   h.Scan,
		Table:  h.Table,
	})
}

// RouteWith runs a search with an explicit profile and budget.
func (h *Harness) RouteWith(start, target voxel.Pos, prof route.Profile, bud route.Budget) route.Result {
	return route.Find(route.Request{
		Start:   start,
		Target:  target,
		Scan:    h.Scan,
		Table:   h.Table,
		Profile: prof,
		Budget:  bud,
	})
}

// MustRoute fails the test unless the search produced a usable path.
func (h *Harness) MustRoute(start, target voxel.Pos) route.Result {
	h.T.Helper()
	res := h.Route(start, target)
	if res.Code != "" {
		h.T.Fatalf("route %v -> %v failed: %s (%s)", start, target, res.Code, res.Reason)
	}
	if len(res.Waypoints) == 0 {
		h.T.Fatalf("route %v -> %v returned no waypoints", start, target)
	}
	return res
}
