package survey

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"voxelscout.ai/internal/protocol"
)

func readAllEntries(t *testing.T, dir string) [][]byte {
	t.Helper()
	files, err := JournalFiles(dir)
	if err != nil {
		t.Fatalf("JournalFiles: %v", err)
	}
	var lines [][]byte
	for _, path := range files {
		if err := ReadJournal(path, func(line []byte) error {
			cp := make([]byte, len(line))
			copy(cp, line)
			lines = append(lines, cp)
			return nil
		}); err != nil {
			t.Fatalf("ReadJournal: %v", err)
		}
	}
	return lines
}

func TestJournalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir)

	blocks := []protocol.BlockRec{
		{X: 0, Y: 10, Z: 0, Code: "soil-low-normal", Solid: true},
		{X: 1, Y: 10, Z: 0, Code: "rock-granite", Solid: true},
	}
	scan := ScanEntry{
		ScanFrame: protocol.ScanFrame{
			Type: protocol.TypeScan, Seq: 1, At: "2026-01-02T03:04:05Z",
			Radius: 24, Count: len(blocks), Digest: protocol.DigestBlocks(blocks),
		},
		Origin: protocol.CellRef{X: 0, Y: 11, Z: 0},
		Blocks: blocks,
	}
	route := protocol.RouteFrame{
		Type: protocol.TypeRoute, Seq: 2, At: "2026-01-02T03:04:06Z",
		Start:  protocol.CellRef{Y: 11},
		Target: protocol.CellRef{X: 1, Y: 11},
		Waypoints: []protocol.CellRef{
			{Y: 11},
			{X: 1, Y: 11},
		},
	}
	state := protocol.StateFrame{Type: protocol.TypeState, Seq: 3, At: "2026-01-02T03:04:07Z", State: protocol.StateMoving}

	for _, v := range []any{scan, route, state} {
		if err := j.Write(v); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readAllEntries(t, dir)
	if len(lines) != 3 {
		t.Fatalf("entries=%d want=3", len(lines))
	}
	wantTypes := []string{protocol.TypeScan, protocol.TypeRoute, protocol.TypeState}
	for i, want := range wantTypes {
		if got := EntryType(lines[i]); got != want {
			t.Fatalf("EntryType[%d]=%q want=%q", i, got, want)
		}
	}

	var backScan ScanEntry
	if err := json.Unmarshal(lines[0], &backScan); err != nil {
		t.Fatalf("unmarshal scan: %v", err)
	}
	if len(backScan.Blocks) != 2 || backScan.Blocks[1].Code != "rock-granite" {
		t.Fatalf("scan blocks did not survive: %+v", backScan.Blocks)
	}
	if backScan.Origin != scan.Origin {
		t.Fatalf("origin=%+v want=%+v", backScan.Origin, scan.Origin)
	}
	if backScan.Digest != protocol.DigestBlocks(backScan.Blocks) {
		t.Fatalf("digest no longer matches blocks after round trip")
	}

	var backRoute protocol.RouteFrame
	if err := json.Unmarshal(lines[1], &backRoute); err != nil {
		t.Fatalf("unmarshal route: %v", err)
	}
	if len(backRoute.Waypoints) != 2 || backRoute.Waypoints[1].X != 1 {
		t.Fatalf("route waypoints did not survive: %+v", backRoute.Waypoints)
	}
}

func TestJournalAppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	j := NewJournal(dir)
	if err := j.Write(protocol.StateFrame{Type: protocol.TypeState, Seq: 1, State: protocol.StateIdle}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	j = NewJournal(dir)
	if err := j.Write(protocol.StateFrame{Type: protocol.TypeState, Seq: 2, State: protocol.StateMoving}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readAllEntries(t, dir)
	if len(lines) != 2 {
		t.Fatalf("entries=%d want=2", len(lines))
	}
	var last protocol.StateFrame
	if err := json.Unmarshal(lines[len(lines)-1], &last); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if last.Seq != 2 || last.State != protocol.StateMoving {
		t.Fatalf("last=%+v want seq=2 moving", last)
	}
}

func TestJournalFilesSkipsStrays(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "survey-0000-00-00-00.jsonl.zst"), 0o755); err != nil {
		t.Fatal(err)
	}

	j := NewJournal(dir)
	if err := j.Write(protocol.ScanFrame{Type: protocol.TypeScan, Seq: 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := JournalFiles(dir)
	if err != nil {
		t.Fatalf("JournalFiles: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("files=%v want exactly the journal file", files)
	}
}
