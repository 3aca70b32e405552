// Package scout runs the perception loop for one live agent: pull terrain
// from the game, classify and filter it, compute routes over it, and fan
// the results out to watchers and the survey record.
package scout

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"voxelscout.ai/internal/gameapi"
	"voxelscout.ai/internal/nav/classify"
	"voxelscout.ai/internal/nav/route"
	"voxelscout.ai/internal/nav/sight"
	"voxelscout.ai/internal/nav/voxel"
	"voxelscout.ai/internal/protocol"
	"voxelscout.ai/internal/survey"
	"voxelscout.ai/internal/tuning"
	"voxelscout.ai/internal/watch"
)

// recentRoutesMax bounds the in-memory route history kept for snapshots.
const recentRoutesMax = 32

type Config struct {
	API    *gameapi.Client
	Table  classify.Table
	Tuning tuning.Tuning
	Agent  string
	Logger *log.Logger

	// Optional collaborators; nil disables the concern.
	Index   *survey.Index
	Journal *survey.Journal
	Watch   *watch.Server
}

type Engine struct {
	api   *gameapi.Client
	table classify.Table
	tun   tuning.Tuning
	agent string
	log   *log.Logger

	index   *survey.Index
	journal *survey.Journal
	watch   *watch.Server

	seq atomic.Uint64

	mu       sync.Mutex
	lastScan *scanState
	routes   []protocol.RouteFrame

	scans        atomic.Uint64
	routesTotal  atomic.Uint64
	routesFailed atomic.Uint64
	gotos        atomic.Uint64
	pollTicks    atomic.Uint64
}

type scanState struct {
	takenAt string
	origin  voxel.Pos
	radius  int
	digest  string
	scan    voxel.Scan
}

func New(cfg Config) (*Engine, error) {
	if cfg.API == nil {
		return nil, fmt.Errorf("nil game api client")
	}
	if cfg.Agent == "" {
		cfg.Agent = "scout"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	return &Engine{
		api:     cfg.API,
		table:   cfg.Table,
		tun:     cfg.Tuning,
		agent:   cfg.Agent,
		log:     cfg.Logger,
		index:   cfg.Index,
		journal: cfg.Journal,
		watch:   cfg.Watch,
	}, nil
}

func (e *Engine) Agent() string { return e.agent }

func (e *Engine) Status(ctx context.Context) (protocol.StatusMsg, error) {
	return e.api.Status(ctx)
}

func (e *Engine) Observe(ctx context.Context) (protocol.ObserveMsg, error) {
	return e.api.Observe(ctx)
}

func (e *Engine) Inbox(ctx context.Context) ([]protocol.ChatLine, error) {
	return e.api.Inbox(ctx)
}

func (e *Engine) Say(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("empty message")
	}
	return e.api.Say(ctx, message)
}

func (e *Engine) Stop(ctx context.Context) error {
	return e.api.Stop(ctx)
}

func (e *Engine) MovementStatus(ctx context.Context) (protocol.MovementMsg, error) {
	return e.api.MovementStatus(ctx)
}

type GotoArgs struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (e *Engine) Goto(ctx context.Context, args GotoArgs) error {
	if err := e.api.Goto(ctx, args.X, args.Y, args.Z); err != nil {
		return err
	}
	e.gotos.Add(1)
	e.log.Printf("goto (%d,%d,%d)", args.X, args.Y, args.Z)
	return nil
}

type BlocksArgs struct {
	Radius      int    `json:"radius,omitempty"`
	SurfaceOnly bool   `json:"surface_only,omitempty"`
	Filter      string `json:"filter,omitempty"`
}

// BlockInfo is one visible block with its classified movement properties.
// Solid reports the classifier's verdict, not the raw engine flag.
type BlockInfo struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Z      int    `json:"z"`
	Code   string `json:"code"`
	Solid  bool   `json:"solid"`
	Hazard bool   `json:"hazard,omitempty"`
}

type BlocksResult struct {
	Origin  protocol.CellRef `json:"origin"`
	Radius  int              `json:"radius"`
	Total   int              `json:"total"`
	Visible int              `json:"visible"`
	Digest  string           `json:"digest"`
	Blocks  []BlockInfo      `json:"blocks"`
}

// Blocks scans the terrain around the agent and returns the subset the
// agent can actually see. The full raw scan is recorded regardless of the
// filters applied to the reply.
func (e *Engine) Blocks(ctx context.Context, args BlocksArgs) (BlocksResult, error) {
	radius := args.Radius
	if radius <= 0 {
		radius = e.tun.ScanRadius
	}

	obs, err := e.api.Observe(ctx)
	if err != nil {
		return BlocksResult{}, err
	}
	scan, err := e.api.Blocks(ctx, radius)
	if err != nil {
		return BlocksResult{}, err
	}

	observer := voxel.Point{X: obs.Pos.X, Y: obs.Pos.Y, Z: obs.Pos.Z}
	visible := sight.FilterVisible(observer, scan, e.table, sight.Options{EyeHeight: e.tun.EyeHeight})
	if args.SurfaceOnly {
		visible = sight.SurfaceOnly(visible, scan, e.table)
	}

	keywords := filterKeywords(args.Filter)
	blocks := make([]BlockInfo, 0, len(visible))
	for _, p := range visible {
		b := scan[p]
		if !codeMatches(b.Code, keywords) {
			continue
		}
		f := e.table.Classify(b.Code, b.Solid)
		blocks = append(blocks, BlockInfo{X: p.X, Y: p.Y, Z: p.Z, Code: b.Code, Solid: f.SolidForMovement, Hazard: f.Hazard})
	}

	origin := voxel.CellOf(observer)
	digest := e.recordScan(origin, radius, scan)

	return BlocksResult{
		Origin:  protocol.CellRef{X: origin.X, Y: origin.Y, Z: origin.Z},
		Radius:  radius,
		Total:   len(scan),
		Visible: len(blocks),
		Digest:  digest,
		Blocks:  blocks,
	}, nil
}

// filterKeywords parses the comma-separated code filter.
func filterKeywords(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if kw := strings.ToLower(strings.TrimSpace(part)); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// codeMatches reports whether the code contains any of the keywords. An
// empty keyword list matches everything.
func codeMatches(code string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lc := strings.ToLower(code)
	for _, kw := range keywords {
		if strings.Contains(lc, kw) {
			return true
		}
	}
	return false
}

type RouteArgs struct {
	X            int  `json:"x"`
	Y            int  `json:"y"`
	Z            int  `json:"z"`
	Radius       int  `json:"radius,omitempty"`
	AllowHazards bool `json:"allow_hazards,omitempty"`
}

// Route scans fresh terrain and computes a walking route from the agent's
// standing cell to the target cell. Navigation verdicts, including
// failures, come back in the frame; the error return is reserved for
// upstream trouble.
func (e *Engine) Route(ctx context.Context, args RouteArgs) (protocol.RouteFrame, error) {
	radius := args.Radius
	if radius <= 0 {
		radius = e.tun.ScanRadius
	}

	obs, err := e.api.Observe(ctx)
	if err != nil {
		return protocol.RouteFrame{}, err
	}
	scan, err := e.api.Blocks(ctx, radius)
	if err != nil {
		return protocol.RouteFrame{}, err
	}

	observer := voxel.Point{X: obs.Pos.X, Y: obs.Pos.Y, Z: obs.Pos.Z}
	start := voxel.CellOf(observer)
	target := voxel.Pos{X: args.X, Y: args.Y, Z: args.Z}

	e.recordScan(start, radius, scan)

	prof := e.tun.Nav.Profile()
	if args.AllowHazards {
		prof.AllowHazards = true
	}

	res := route.Find(route.Request{
		Start:   start,
		Target:  target,
		Scan:    scan,
		Table:   e.table,
		Profile: prof,
		Budget:  e.tun.Nav.Budget(),
		Costs:   e.tun.Nav.Costs(),
	})

	now := time.Now().UTC().Format(time.RFC3339Nano)
	frame := protocol.RouteFrame{
		Type:            protocol.TypeRoute,
		ProtocolVersion: protocol.Version,
		Seq:             e.seq.Add(1),
		At:              now,
		Start:           protocol.CellRef{X: start.X, Y: start.Y, Z: start.Z},
		Target:          protocol.CellRef{X: target.X, Y: target.Y, Z: target.Z},
		AllowHazards:    args.AllowHazards,
		Code:            res.Code,
		Reason:          res.Reason,
		Partial:         res.Partial,
		TargetReached:   res.TargetReached,
		Distance:        res.Distance,
		Expanded:        res.Stats.Expanded,
	}
	for _, wp := range res.Waypoints {
		frame.Waypoints = append(frame.Waypoints, protocol.CellRef{X: wp.X, Y: wp.Y, Z: wp.Z})
	}

	e.routesTotal.Add(1)
	if res.Code != "" {
		e.routesFailed.Add(1)
	}

	e.mu.Lock()
	e.routes = append(e.routes, frame)
	if len(e.routes) > recentRoutesMax {
		e.routes = e.routes[len(e.routes)-recentRoutesMax:]
	}
	e.mu.Unlock()

	if e.watch != nil {
		e.watch.Broadcast(frame)
	}
	if e.journal != nil {
		if err := e.journal.Write(frame); err != nil {
			e.log.Printf("journal route: %v", err)
		}
	}
	e.index.WriteRoute(survey.RouteRow{
		RequestedAt: now,
		Agent:       e.agent,
		SX:          start.X, SY: start.Y, SZ: start.Z,
		TX: target.X, TY: target.Y, TZ: target.Z,
		Status:    res.Code,
		Partial:   res.Partial,
		Waypoints: len(res.Waypoints),
		Expanded:  res.Stats.Expanded,
		Reason:    res.Reason,
	})

	if res.Code != "" {
		e.log.Printf("route %s -> %s: %s (%s)", start, target, res.Code, res.Reason)
	} else {
		e.log.Printf("route %s -> %s: %d waypoints partial=%t expanded=%d", start, target, len(res.Waypoints), res.Partial, res.Stats.Expanded)
	}
	return frame, nil
}

// recordScan caches the scan, bumps counters, and fans the frame out.
// Returns the scan digest.
func (e *Engine) recordScan(origin voxel.Pos, radius int, scan voxel.Scan) string {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	recs := make([]protocol.BlockRec, 0, len(scan))
	for p, b := range scan {
		recs = append(recs, protocol.BlockRec{X: p.X, Y: p.Y, Z: p.Z, Code: b.Code, Solid: b.Solid})
	}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	digest := protocol.DigestBlocks(recs)

	e.scans.Add(1)
	e.mu.Lock()
	e.lastScan = &scanState{takenAt: now, origin: origin, radius: radius, digest: digest, scan: scan}
	e.mu.Unlock()

	frame := protocol.ScanFrame{
		Type:   protocol.TypeScan,
		Seq:    e.seq.Add(1),
		At:     now,
		Radius: radius,
		Count:  len(recs),
		Digest: digest,
	}
	if e.watch != nil {
		e.watch.Broadcast(frame)
	}
	if e.journal != nil {
		entry := survey.ScanEntry{
			ScanFrame: frame,
			Origin:    protocol.CellRef{X: origin.X, Y: origin.Y, Z: origin.Z},
			Blocks:    recs,
		}
		if err := e.journal.Write(entry); err != nil {
			e.log.Printf("journal scan: %v", err)
		}
	}
	e.index.WriteScan(survey.ScanRow{TakenAt: now, Agent: e.agent, Radius: radius, Blocks: len(recs), Digest: digest})
	return digest
}

// RunPoller samples movement state at the tuned interval and broadcasts a
// STATE frame per sample. The journal only gets state transitions; steady
// states would flood it. Blocks until ctx is done.
func (e *Engine) RunPoller(ctx context.Context) {
	interval := time.Duration(e.tun.PollIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	var lastState string
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		e.pollTicks.Add(1)

		mv, err := e.api.MovementStatus(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.log.Printf("poll movement: %v", err)
			continue
		}
		st, err := e.api.Status(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.log.Printf("poll status: %v", err)
			continue
		}

		frame := protocol.StateFrame{
			Type:            protocol.TypeState,
			ProtocolVersion: protocol.Version,
			Seq:             e.seq.Add(1),
			At:              time.Now().UTC().Format(time.RFC3339Nano),
			State:           mv.State,
			Pos:             st.Pos,
			Target:          mv.Target,
			QueueLen:        mv.QueueLen,
		}
		if e.watch != nil {
			e.watch.Broadcast(frame)
		}
		if e.journal != nil && mv.State != lastState {
			if err := e.journal.Write(frame); err != nil {
				e.log.Printf("journal state: %v", err)
			}
		}
		lastState = mv.State
	}
}

type Metrics struct {
	Scans        uint64
	Routes       uint64
	RoutesFailed uint64
	Gotos        uint64
	PollTicks    uint64
	WatchClients int
	Index        survey.Stats
}

func (e *Engine) Metrics() Metrics {
	m := Metrics{
		Scans:        e.scans.Load(),
		Routes:       e.routesTotal.Load(),
		RoutesFailed: e.routesFailed.Load(),
		Gotos:        e.gotos.Load(),
		PollTicks:    e.pollTicks.Load(),
	}
	if e.watch != nil {
		m.WatchClients = e.watch.ClientCount()
	}
	if e.index != nil {
		m.Index = e.index.Stats()
	}
	return m
}

// Snapshot captures the session for writing at shutdown.
func (e *Engine) Snapshot() survey.SessionV1 {
	s := survey.SessionV1{
		Header: survey.SessionHeader{
			Version: 1,
			Agent:   e.agent,
			SavedAt: time.Now().UTC().Format(time.RFC3339Nano),
		},
		CatalogDigest: e.table.Digest(),
		Counters: survey.SessionCountersV1{
			Scans:        e.scans.Load(),
			Routes:       e.routesTotal.Load(),
			RoutesFailed: e.routesFailed.Load(),
			Gotos:        e.gotos.Load(),
			PollTicks:    e.pollTicks.Load(),
		},
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if ls := e.lastScan; ls != nil {
		snap := &survey.ScanSnapV1{
			TakenAt: ls.takenAt,
			Origin:  [3]int{ls.origin.X, ls.origin.Y, ls.origin.Z},
			Radius:  ls.radius,
			Digest:  ls.digest,
		}
		ps := make([]voxel.Pos, 0, len(ls.scan))
		for p := range ls.scan {
			ps = append(ps, p)
		}
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
		for _, p := range ps {
			b := ls.scan[p]
			snap.Blocks = append(snap.Blocks, survey.BlockSnapV1{Pos: [3]int{p.X, p.Y, p.Z}, Code: b.Code, Solid: b.Solid})
		}
		s.LastScan = snap
	}
	for _, rf := range e.routes {
		s.Routes = append(s.Routes, survey.RouteSnapV1{
			RequestedAt: rf.At,
			Start:       [3]int{rf.Start.X, rf.Start.Y, rf.Start.Z},
			Target:      [3]int{rf.Target.X, rf.Target.Y, rf.Target.Z},
			Code:        rf.Code,
			Partial:     rf.Partial,
			Waypoints:   len(rf.Waypoints),
			Expanded:    rf.Expanded,
		})
	}
	return s
}

// Resume warms the engine from a previous session snapshot.
func (e *Engine) Resume(s survey.SessionV1) {
	e.scans.Store(s.Counters.Scans)
	e.routesTotal.Store(s.Counters.Routes)
	e.routesFailed.Store(s.Counters.RoutesFailed)
	e.gotos.Store(s.Counters.Gotos)
	e.pollTicks.Store(s.Counters.PollTicks)

	if ls := s.LastScan; ls != nil {
		scan := make(voxel.Scan, len(ls.Blocks))
		for _, b := range ls.Blocks {
			scan.Add(voxel.Block{Pos: voxel.Pos{X: b.Pos[0], Y: b.Pos[1], Z: b.Pos[2]}, Code: b.Code, Solid: b.Solid})
		}
		e.mu.Lock()
		e.lastScan = &scanState{
			takenAt: ls.TakenAt,
			origin:  voxel.Pos{X: ls.Origin[0], Y: ls.Origin[1], Z: ls.Origin[2]},
			radius:  ls.Radius,
			digest:  ls.Digest,
			scan:    scan,
		}
		e.mu.Unlock()
	}
	e.log.Printf("resumed session from %s: scans=%d routes=%d", s.Header.SavedAt, s.Counters.Scans, s.Counters.Routes)
}
