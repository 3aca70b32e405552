package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"voxelscout.ai/internal/nav/classify"
	"voxelscout.ai/internal/nav/route"
	"voxelscout.ai/internal/nav/voxel"
	"voxelscout.ai/internal/protocol"
	"voxelscout.ai/internal/survey"
	"voxelscout.ai/internal/tuning"
)

// Replays a survey journal: recomputes every scan digest and re-runs every
// recorded route over the scan that preceded it, failing on the first
// divergence. A clean pass means the journal, the catalog and the tuning
// still describe the same navigation behavior.
func main() {
	var (
		journalDir = flag.String("journal", "", "journal dir containing survey-*.jsonl.zst")
		configDir  = flag.String("configs", "./configs", "config directory")
		fromSeq    = flag.Uint64("from", 0, "verify from frame seq (inclusive, optional)")
		toSeq      = flag.Uint64("to", 0, "stop after frame seq (inclusive, optional)")
	)
	flag.Parse()

	if *journalDir == "" {
		fmt.Fprintln(os.Stderr, "missing -journal")
		os.Exit(2)
	}

	table, tune := loadNavConfig(*configDir)

	files, err := survey.JournalFiles(*journalDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list journal:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files found in", *journalDir)
		os.Exit(1)
	}

	v := &verifier{table: table, tune: tune, from: *fromSeq, to: *toSeq}
	for _, path := range files {
		if err := v.replayFile(path); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
		if v.stopped {
			break
		}
	}
	fmt.Printf("replay ok: scans=%d routes=%d states=%d files=%d\n", v.scans, v.routes, v.states, len(files))
}

type verifier struct {
	table classify.Table
	tune  tuning.Tuning
	from  uint64
	to    uint64

	// Most recent scan; routes are journaled after the scan they used.
	scan    voxel.Scan
	scanSeq uint64

	stopped bool
	scans   uint64
	routes  uint64
	states  uint64
}

func (v *verifier) inRange(seq uint64) bool {
	return seq >= v.from && (v.to == 0 || seq <= v.to)
}

func (v *verifier) replayFile(path string) error {
	return survey.ReadJournal(path, func(line []byte) error {
		if v.stopped {
			return nil
		}
		switch survey.EntryType(line) {
		case protocol.TypeScan:
			var entry survey.ScanEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			if v.to != 0 && entry.Seq > v.to {
				v.stopped = true
				return nil
			}
			return v.checkScan(entry)
		case protocol.TypeRoute:
			var frame protocol.RouteFrame
			if err := json.Unmarshal(line, &frame); err != nil {
				return fmt.Errorf("route: %w", err)
			}
			if v.to != 0 && frame.Seq > v.to {
				v.stopped = true
				return nil
			}
			if !v.inRange(frame.Seq) {
				return nil
			}
			return v.checkRoute(frame)
		case protocol.TypeState:
			v.states++
		}
		return nil
	})
}

// checkScan always rebuilds the scan so a later route can use it, but only
// verifies and counts the digest inside the requested range.
func (v *verifier) checkScan(entry survey.ScanEntry) error {
	if v.inRange(entry.Seq) {
		got := protocol.DigestBlocks(entry.Blocks)
		if entry.Digest != "" && got != entry.Digest {
			return fmt.Errorf("scan seq=%d digest mismatch: got=%s want=%s", entry.Seq, got, entry.Digest)
		}
		v.scans++
	}

	sc := make(voxel.Scan, len(entry.Blocks))
	for _, b := range entry.Blocks {
		x, y, z := b.Cell()
		sc.Add(voxel.Block{Pos: voxel.Pos{X: x, Y: y, Z: z}, Code: b.Code, Solid: b.Solid})
	}
	v.scan = sc
	v.scanSeq = entry.Seq
	return nil
}

func (v *verifier) checkRoute(frame protocol.RouteFrame) error {
	if v.scan == nil {
		return fmt.Errorf("route seq=%d: no scan recorded before it", frame.Seq)
	}

	prof := v.tune.Nav.Profile()
	if frame.AllowHazards {
		prof.AllowHazards = true
	}
	res := route.Find(route.Request{
		Start:   voxel.Pos{X: frame.Start.X, Y: frame.Start.Y, Z: frame.Start.Z},
		Target:  voxel.Pos{X: frame.Target.X, Y: frame.Target.Y, Z: frame.Target.Z},
		Scan:    v.scan,
		Table:   v.table,
		Profile: prof,
		Budget:  v.tune.Nav.Budget(),
		Costs:   v.tune.Nav.Costs(),
	})

	if res.Code != frame.Code {
		return fmt.Errorf("route seq=%d code mismatch: got=%q want=%q (scan seq=%d)", frame.Seq, res.Code, frame.Code, v.scanSeq)
	}
	if res.Partial != frame.Partial {
		return fmt.Errorf("route seq=%d partial mismatch: got=%t want=%t (scan seq=%d)", frame.Seq, res.Partial, frame.Partial, v.scanSeq)
	}
	if len(res.Waypoints) != len(frame.Waypoints) {
		return fmt.Errorf("route seq=%d waypoint count mismatch: got=%d want=%d (scan seq=%d)", frame.Seq, len(res.Waypoints), len(frame.Waypoints), v.scanSeq)
	}
	for i, wp := range res.Waypoints {
		want := frame.Waypoints[i]
		if wp.X != want.X || wp.Y != want.Y || wp.Z != want.Z {
			return fmt.Errorf("route seq=%d waypoint %d mismatch: got=%s want=(%d,%d,%d)", frame.Seq, i+1, wp, want.X, want.Y, want.Z)
		}
	}
	v.routes++
	return nil
}

func loadNavConfig(configDir string) (classify.Table, tuning.Tuning) {
	table, err := classify.Load(configDir)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load block catalog:", err)
			os.Exit(1)
		}
		table = classify.DefaultTable()
	}
	tune, err := tuning.Load(filepath.Join(configDir, "tuning.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}
	return table, tune
}
