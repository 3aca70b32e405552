package sight

import (
	"testing"

	"voxelscout.ai/internal/nav/classify"
	"voxelscout.ai/internal/nav/voxel"
)

var table = classify.DefaultTable()

func soil(x, y, z int) voxel.Block {
	return voxel.Block{Pos: voxel.Pos{X: x, Y: y, Z: z}, Code: "soil-medium-normal", Solid: true}
}

func contains(ps []voxel.Pos, p voxel.Pos) bool {
	for _, q := range ps {
		if q == p {
			return true
		}
	}
	return false
}

// Observer feet at (0.5, 10, 0.5): eye ends up mid-cell at (0.5, 11.5, 0.5).
var observer = voxel.Point{X: 0.5, Y: 10, Z: 0.5}

func TestOcclusionAlongSharedRay(t *testing.T) {
	scan := voxel.Scan{}
	scan.Add(soil(2, 11, 0)) // wall cell on the ray
	scan.Add(soil(4, 11, 0)) // behind it

	vis := FilterVisible(observer, scan, table, Options{})
	if !contains(vis, voxel.Pos{X: 2, Y: 11, Z: 0}) {
		t.Fatalf("occluding block itself must be visible, got %v", vis)
	}
	if contains(vis, voxel.Pos{X: 4, Y: 11, Z: 0}) {
		t.Fatalf("block behind a solid block must be hidden, got %v", vis)
	}
}

func TestHiddenCollisionOccludes(t *testing.T) {
	scan := voxel.Scan{}
	scan.Add(voxel.Block{Pos: voxel.Pos{X: 2, Y: 11, Z: 0}, Code: "door-plank-closed", Solid: false})
	scan.Add(soil(4, 11, 0))

	vis := FilterVisible(observer, scan, table, Options{})
	if !contains(vis, voxel.Pos{X: 2, Y: 11, Z: 0}) {
		t.Fatalf("closed door must be visible, got %v", vis)
	}
	if contains(vis, voxel.Pos{X: 4, Y: 11, Z: 0}) {
		t.Fatalf("closed door must hide what is behind it, got %v", vis)
	}
}

func TestDegenerateRayIsVisible(t *testing.T) {
	scan := voxel.Scan{}
	scan.Add(soil(0, 11, 0)) // the eye's own cell

	vis := FilterVisible(observer, scan, table, Options{})
	if !contains(vis, voxel.Pos{X: 0, Y: 11, Z: 0}) {
		t.Fatalf("block sharing the eye cell must be visible, got %v", vis)
	}
}

func TestEmptyScanYieldsEmptyResult(t *testing.T) {
	if vis := FilterVisible(observer, voxel.Scan{}, table, Options{}); len(vis) != 0 {
		t.Fatalf("empty scan produced %v", vis)
	}
}

func TestUnsupportedFoliageIsDropped(t *testing.T) {
	scan := voxel.Scan{}
	scan.Add(soil(3, 10, 0))
	scan.Add(voxel.Block{Pos: voxel.Pos{X: 3, Y: 11, Z: 0}, Code: "flower-poppy", Solid: false})
	scan.Add(voxel.Block{Pos: voxel.Pos{X: 5, Y: 15, Z: 2}, Code: "flower-poppy", Solid: false})

	vis := FilterVisible(observer, scan, table, Options{})
	if !contains(vis, voxel.Pos{X: 3, Y: 11, Z: 0}) {
		t.Fatalf("grounded flower must be reported, got %v", vis)
	}
	if contains(vis, voxel.Pos{X: 5, Y: 15, Z: 2}) {
		t.Fatalf("floating flower must be dropped, got %v", vis)
	}

	all := FilterVisible(observer, scan, table, Options{AllCandidates: true})
	if !contains(all, voxel.Pos{X: 5, Y: 15, Z: 2}) {
		t.Fatalf("AllCandidates must keep the floating flower, got %v", all)
	}
}

func TestLiquidsAreCandidatesWithoutSupport(t *testing.T) {
	scan := voxel.Scan{}
	scan.Add(voxel.Block{Pos: voxel.Pos{X: 2, Y: 12, Z: 2}, Code: "water-still-7", Solid: false})

	vis := FilterVisible(observer, scan, table, Options{})
	if !contains(vis, voxel.Pos{X: 2, Y: 12, Z: 2}) {
		t.Fatalf("water must be reported, got %v", vis)
	}
}

func TestSurfaceOnlySubsetAndExposure(t *testing.T) {
	scan := voxel.Scan{}
	center := voxel.Pos{X: 10, Y: 10, Z: 10}
	scan.Add(voxel.Block{Pos: center, Code: "soil-medium-normal", Solid: true})
	for _, d := range []voxel.Pos{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}, {Z: 1}, {Z: -1}} {
		scan.Add(soil(center.X+d.X, center.Y+d.Y, center.Z+d.Z))
	}

	input := make([]voxel.Pos, 0, len(scan))
	for p := range scan {
		input = append(input, p)
	}

	surf := SurfaceOnly(input, scan, table)
	for _, p := range surf {
		if !contains(input, p) {
			t.Fatalf("surface result %v not in input", p)
		}
	}
	if contains(surf, center) {
		t.Fatalf("fully enclosed block kept as surface: %v", surf)
	}
	if len(surf) != len(input)-1 {
		t.Fatalf("all six neighbors are exposed, got %d of %d", len(surf), len(input)-1)
	}
}

func TestSurfaceOnlyCountsNonSolidNeighborsAsExposure(t *testing.T) {
	scan := voxel.Scan{}
	center := voxel.Pos{X: 10, Y: 10, Z: 10}
	scan.Add(voxel.Block{Pos: center, Code: "soil-medium-normal", Solid: true})
	for _, d := range []voxel.Pos{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}, {Z: 1}} {
		scan.Add(soil(center.X+d.X, center.Y+d.Y, center.Z+d.Z))
	}
	scan.Add(voxel.Block{Pos: voxel.Pos{X: 10, Y: 10, Z: 9}, Code: "leaves-oak", Solid: true})

	surf := SurfaceOnly([]voxel.Pos{center}, scan, table)
	if !contains(surf, center) {
		t.Fatalf("leafy face must count as exposed, got %v", surf)
	}
}

func TestVisibleOutputIsSorted(t *testing.T) {
	scan := voxel.Scan{}
	for x := 0; x < 4; x++ {
		for z := 0; z < 4; z++ {
			scan.Add(soil(x, 9, z))
		}
	}

	vis := FilterVisible(observer, scan, table, Options{})
	for i := 1; i < len(vis); i++ {
		a, b := vis[i-1], vis[i]
		if a.X > b.X || (a.X == b.X && a.Y > b.Y) || (a.X == b.X && a.Y == b.Y && a.Z >= b.Z) {
			t.Fatalf("output not in ascending order at %d: %v", i, vis)
		}
	}
}
