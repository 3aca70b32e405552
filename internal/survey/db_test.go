package survey

import (
	"path/filepath"
	"testing"
	"time"
)

func TestIndexRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "survey.db")

	idx, err := OpenIndex(path)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	idx.WriteScan(ScanRow{TakenAt: now, Agent: "scout", Radius: 24, Blocks: 120, Digest: "aaa"})
	idx.WriteScan(ScanRow{TakenAt: now, Agent: "scout", Radius: 8, Blocks: 40, Digest: "bbb"})
	idx.WriteRoute(RouteRow{
		RequestedAt: now, Agent: "scout",
		SX: 0, SY: 11, SZ: 0, TX: 4, TY: 11, TZ: 4,
		Waypoints: 9, Expanded: 25,
	})
	idx.WriteRoute(RouteRow{
		RequestedAt: now, Agent: "scout",
		SX: 0, SY: 11, SZ: 0, TX: 20, TY: 11, TZ: 0,
		Partial: true, Waypoints: 5, Expanded: 18,
		Reason: "target beyond scanned terrain",
	})
	idx.WriteRoute(RouteRow{
		RequestedAt: now, Agent: "scout",
		SX: 0, SY: 11, SZ: 0, TX: 9, TY: 11, TZ: 9,
		Status: "E_NO_ROUTE", Expanded: 40,
		Reason: "target unreachable within scan",
	})
	if err := idx.RecordCatalog("catdigest"); err != nil {
		t.Fatalf("RecordCatalog: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx, err = OpenIndex(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = idx.Close() }()

	scans, err := idx.RecentScans(10)
	if err != nil {
		t.Fatalf("RecentScans: %v", err)
	}
	if len(scans) != 2 {
		t.Fatalf("scans=%d want=2", len(scans))
	}
	if scans[0].Digest != "bbb" || scans[0].Radius != 8 {
		t.Fatalf("newest scan wrong: %+v", scans[0])
	}
	if scans[1].Digest != "aaa" || scans[1].Blocks != 120 {
		t.Fatalf("older scan wrong: %+v", scans[1])
	}

	routes, err := idx.RecentRoutes(10)
	if err != nil {
		t.Fatalf("RecentRoutes: %v", err)
	}
	if len(routes) != 3 {
		t.Fatalf("routes=%d want=3", len(routes))
	}
	if routes[0].Status != "E_NO_ROUTE" || routes[0].Reason != "target unreachable within scan" {
		t.Fatalf("newest route wrong: %+v", routes[0])
	}
	if !routes[1].Partial || routes[1].Waypoints != 5 {
		t.Fatalf("partial route wrong: %+v", routes[1])
	}
	if routes[2].Status != "" || routes[2].Waypoints != 9 {
		t.Fatalf("success route wrong: %+v", routes[2])
	}

	got, err := idx.RouteByID(routes[2].ID)
	if err != nil {
		t.Fatalf("RouteByID: %v", err)
	}
	if got.TX != 4 || got.TZ != 4 || got.Expanded != 25 {
		t.Fatalf("RouteByID=%+v", got)
	}
	if _, err := idx.RouteByID(routes[0].ID + 1000); err == nil {
		t.Fatalf("RouteByID on missing id should fail")
	}

	cats, err := idx.Catalogs()
	if err != nil {
		t.Fatalf("Catalogs: %v", err)
	}
	if len(cats) != 1 || cats[0].Digest != "catdigest" {
		t.Fatalf("catalogs=%+v", cats)
	}
}

func TestIndexQueueDropStats(t *testing.T) {
	s := &Index{ch: make(chan req, 1)}
	s.ch <- req{kind: reqScan, scan: ScanRow{Digest: "queued"}}

	s.WriteScan(ScanRow{Digest: "dropped"})
	s.WriteRoute(RouteRow{})

	st := s.Stats()
	if st.DropScanTotal != 1 {
		t.Fatalf("DropScanTotal=%d want=1", st.DropScanTotal)
	}
	if st.DropRouteTotal != 1 {
		t.Fatalf("DropRouteTotal=%d want=1", st.DropRouteTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestIndexWriteAfterClose(t *testing.T) {
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "survey.db"))
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Late writes must not panic or block.
	idx.WriteScan(ScanRow{Digest: "late"})
	idx.WriteRoute(RouteRow{})
	if err := idx.Close(); err != nil {
		t.Fatalf("double Close: %v", err)
	}
}
