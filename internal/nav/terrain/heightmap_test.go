package terrain

import (
	"reflect"
	"testing"

	"voxelscout.ai/internal/nav/classify"
	"voxelscout.ai/internal/nav/voxel"
)

func soil(x, y, z int) voxel.Block {
	return voxel.Block{Pos: voxel.Pos{X: x, Y: y, Z: z}, Code: "soil-medium-normal", Solid: true}
}

func TestBuildPicksTopmostStandable(t *testing.T) {
	scan := voxel.Scan{}
	scan.Add(soil(0, 10, 0))
	scan.Add(soil(0, 11, 0))
	scan.Add(soil(0, 12, 0))

	hm := Build(scan, classify.DefaultTable(), Options{})
	if y, ok := hm[voxel.Column{X: 0, Z: 0}]; !ok || y != 12 {
		t.Fatalf("surface = %d (ok=%v), want 12", y, ok)
	}
}

func TestBuildRequiresHeadRoom(t *testing.T) {
	scan := voxel.Scan{}
	scan.Add(soil(0, 10, 0))
	scan.Add(soil(0, 11, 0)) // roof directly above the floor candidate

	hm := Build(scan, classify.DefaultTable(), Options{})
	// 11 carries the column: nothing above it in the scan. 10 is roofed.
	if y := hm[voxel.Column{X: 0, Z: 0}]; y != 11 {
		t.Fatalf("surface = %d, want 11", y)
	}

	scan.Add(voxel.Block{Pos: voxel.Pos{X: 0, Y: 12, Z: 0}, Code: "chest-east", Solid: true})
	hm = Build(scan, classify.DefaultTable(), Options{})
	if _, ok := hm[voxel.Column{X: 0, Z: 0}]; ok {
		t.Fatalf("roofed column must have no surface, got %v", hm)
	}
}

func TestBuildExcludesHiddenCollisionTops(t *testing.T) {
	scan := voxel.Scan{}
	scan.Add(voxel.Block{Pos: voxel.Pos{X: 0, Y: 10, Z: 0}, Code: "fence-oak", Solid: false})
	scan.Add(voxel.Block{Pos: voxel.Pos{X: 1, Y: 10, Z: 0}, Code: "chest-east", Solid: true})
	scan.Add(voxel.Block{Pos: voxel.Pos{X: 2, Y: 10, Z: 0}, Code: "water-still-7", Solid: false})

	hm := Build(scan, classify.DefaultTable(), Options{})
	if len(hm) != 0 {
		t.Fatalf("no column here is standable, got %v", hm)
	}
}

func TestBuildFoliageIsNotASurface(t *testing.T) {
	scan := voxel.Scan{}
	scan.Add(soil(0, 10, 0))
	scan.Add(voxel.Block{Pos: voxel.Pos{X: 0, Y: 11, Z: 0}, Code: "leaves-oak-grown", Solid: true})

	hm := Build(scan, classify.DefaultTable(), Options{})
	// Leaves neither carry the column nor roof the soil below them.
	if y := hm[voxel.Column{X: 0, Z: 0}]; y != 10 {
		t.Fatalf("surface = %d, want 10", y)
	}
}

func TestBuildPreferNearY(t *testing.T) {
	scan := voxel.Scan{}
	scan.Add(soil(0, 10, 0)) // floor
	scan.Add(soil(0, 20, 0)) // roof walkable from above

	top := Build(scan, classify.DefaultTable(), Options{})
	if y := top[voxel.Column{X: 0, Z: 0}]; y != 20 {
		t.Fatalf("topmost surface = %d, want 20", y)
	}

	near := 11
	indoor := Build(scan, classify.DefaultTable(), Options{PreferNearY: &near})
	if y := indoor[voxel.Column{X: 0, Z: 0}]; y != 10 {
		t.Fatalf("preferred surface = %d, want 10", y)
	}
}

func TestBuildIdempotent(t *testing.T) {
	scan := voxel.Scan{}
	for x := 0; x < 4; x++ {
		for z := 0; z < 4; z++ {
			scan.Add(soil(x, 10, z))
			if (x+z)%2 == 0 {
				scan.Add(soil(x, 11, z))
			}
		}
	}
	tb := classify.DefaultTable()
	a := Build(scan, tb, Options{})
	b := Build(scan, tb, Options{})
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("heightmap differs across identical builds:\n%v\n%v", a, b)
	}
}
