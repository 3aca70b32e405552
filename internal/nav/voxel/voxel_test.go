package voxel

import "testing"

func TestCellOfFloorsNegatives(t *testing.T) {
	cases := []struct {
		pt   Point
		want Pos
	}{
		{Point{X: 0.2, Y: 10.9, Z: 3.0}, Pos{X: 0, Y: 10, Z: 3}},
		{Point{X: -0.2, Y: -1.5, Z: -3.0}, Pos{X: -1, Y: -2, Z: -3}},
		{Point{X: 5.999, Y: 0, Z: -0.001}, Pos{X: 5, Y: 0, Z: -1}},
	}
	for _, c := range cases {
		if got := CellOf(c.pt); got != c.want {
			t.Fatalf("CellOf(%v) = %v, want %v", c.pt, got, c.want)
		}
	}
}

func TestCenterRoundTrips(t *testing.T) {
	p := Pos{X: -3, Y: 12, Z: 7}
	if got := CellOf(p.Center()); got != p {
		t.Fatalf("CellOf(Center(%v)) = %v", p, got)
	}
}

func TestHorizDist(t *testing.T) {
	if d := HorizDist(Column{X: 0, Z: 0}, Column{X: 3, Z: 4}); d != 5 {
		t.Fatalf("HorizDist = %v, want 5", d)
	}
}

func TestScanAddHas(t *testing.T) {
	s := Scan{}
	b := Block{Pos: Pos{X: 1, Y: 2, Z: 3}, Code: "soil", Solid: true}
	s.Add(b)
	if !s.Has(b.Pos) {
		t.Fatalf("scan missing %v after Add", b.Pos)
	}
	if s.Has(Pos{X: 9, Y: 9, Z: 9}) {
		t.Fatalf("scan reports a block it never saw")
	}
}
