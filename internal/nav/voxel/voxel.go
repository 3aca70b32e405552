// Package voxel holds the grid model shared by the nav packages: integer
// cell addresses, sub-voxel points and immutable block observations.
package voxel

import (
	"fmt"
	"math"
)

// Pos is a voxel cell address. Y is vertical.
type Pos struct {
	X int
	Y int
	Z int
}

// Point is a continuous position (observer eyes, entity feet).
type Point struct {
	X float64
	Y float64
	Z float64
}

// Column identifies the cells sharing an (x, z).
type Column struct {
	X int
	Z int
}

func (p Pos) Column() Column { return Column{X: p.X, Z: p.Z} }

func (p Pos) String() string { return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z) }

// Center is the geometric center of the cell.
func (p Pos) Center() Point {
	return Point{X: float64(p.X) + 0.5, Y: float64(p.Y) + 0.5, Z: float64(p.Z) + 0.5}
}

// CellOf maps a continuous point to the cell containing it.
func CellOf(pt Point) Pos {
	return Pos{
		X: int(math.Floor(pt.X)),
		Y: int(math.Floor(pt.Y)),
		Z: int(math.Floor(pt.Z)),
	}
}

func (a Point) DistTo(b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// HorizDist is the straight-line distance between two columns.
func HorizDist(a, b Column) float64 {
	dx := float64(a.X - b.X)
	dz := float64(a.Z - b.Z)
	return math.Sqrt(dx*dx + dz*dz)
}

// Block is a single observed cell: an opaque code plus the engine-reported
// solidity. The engine flag is not authoritative; see the classify package.
type Block struct {
	Pos   Pos
	Code  string
	Solid bool
}

// Scan is a set of observed blocks keyed by cell. Positions are unique and
// records are never mutated after insertion; the nav packages treat a scan
// as read-only input.
type Scan map[Pos]Block

func (s Scan) Add(b Block) { s[b.Pos] = b }

func (s Scan) Has(p Pos) bool {
	_, ok := s[p]
	return ok
}
