// Package route computes walkable waypoint sequences over scanned terrain.
// The search runs on columns: each (x, z) contributes at most one standable
// surface from the heightmap, and steps between adjacent columns must obey
// the step-height, clearance, hazard and pit-escape rules. Everything here
// is a pure computation over caller-owned input; concurrent calls on
// separate requests are safe.
package route

import (
	"container/heap"
	"fmt"

	"voxelscout.ai/internal/nav/classify"
	"voxelscout.ai/internal/nav/terrain"
	"voxelscout.ai/internal/nav/voxel"
	"voxelscout.ai/internal/protocol"
)

// Profile describes the traveling body.
type Profile struct {
	// BodyHeight is the number of free cells needed above a surface.
	BodyHeight int
	// MaxStepUp bounds how far a single step may climb.
	MaxStepUp int
	// MaxStepDown bounds how far a single step may drop.
	MaxStepDown int
	// DoorwayWidth below 2 accepts 1-wide slots. At 2 a step into a column
	// walled on both sides at body elevation is rejected; the engine does
	// not reliably fit an agent through those.
	DoorwayWidth int
	// AllowHazards permits standing on or in hazard blocks.
	AllowHazards bool
}

func DefaultProfile() Profile {
	return Profile{BodyHeight: 2, MaxStepUp: 1, MaxStepDown: 2, DoorwayWidth: 2}
}

func (p Profile) normalized() Profile {
	if p == (Profile{}) {
		return DefaultProfile()
	}
	if p.BodyHeight <= 0 {
		p.BodyHeight = 2
	}
	if p.MaxStepUp < 0 {
		p.MaxStepUp = 0
	}
	if p.MaxStepDown < 0 {
		p.MaxStepDown = 0
	}
	return p
}

// Budget bounds the two expansions in a call. Both caps are tuned numbers,
// not derived ones; the tuning file carries them.
type Budget struct {
	// MaxExpand caps outer search expansions.
	MaxExpand int
	// EscapeProbe caps columns visited per pit-escape probe.
	EscapeProbe int
}

func DefaultBudget() Budget { return Budget{MaxExpand: 4096, EscapeProbe: 16} }

func (b Budget) normalized() Budget {
	if b.MaxExpand <= 0 {
		b.MaxExpand = DefaultBudget().MaxExpand
	}
	if b.EscapeProbe <= 0 {
		b.EscapeProbe = DefaultBudget().EscapeProbe
	}
	return b
}

// Costs weight step edges. Ascending and descending cost more than flat
// travel so routes prefer level ground.
type Costs struct {
	Straight float64
	Ascend   float64
	Descend  float64
}

func DefaultCosts() Costs { return Costs{Straight: 1.0, Ascend: 1.3, Descend: 1.1} }

func (c Costs) normalized() Costs {
	if c.Straight <= 0 {
		c.Straight = DefaultCosts().Straight
	}
	if c.Ascend <= 0 {
		c.Ascend = DefaultCosts().Ascend
	}
	if c.Descend <= 0 {
		c.Descend = DefaultCosts().Descend
	}
	return c
}

// Request carries one pathfinding call. Start and Target are standing
// cells (the cell an agent occupies, one above the surface). Heightmap may
// be nil; it is then built from Scan for the duration of the call.
type Request struct {
	Start  voxel.Pos
	Target voxel.Pos

	Scan      voxel.Scan
	Heightmap terrain.Heightmap
	Table     classify.Table

	Profile Profile
	Budget  Budget
	Costs   Costs
}

// Stats counts work done by a call. ProbesExhausted counts pit probes that
// hit the node cap without an answer; those reject the drop just like a
// probe that ran out of reachable columns.
type Stats struct {
	Expanded        int
	ProbesRun       int
	ProbesExhausted int
}

// Result is the outcome of a Find call. An empty Code means a usable path
// was produced; Partial marks a path that stops at the frontier of known
// terrain instead of the target.
type Result struct {
	Waypoints     []voxel.Pos
	Partial       bool
	TargetReached bool
	Code          string
	Reason        string
	// Distance is the horizontal distance from the final waypoint to the
	// target column.
	Distance float64
	Stats    Stats
}

// Fixed expansion order keeps equal-cost paths identical across runs.
var dirs = [4]voxel.Column{{X: 1}, {X: -1}, {Z: 1}, {Z: -1}}

var startOffsets = [9]voxel.Column{
	{},
	{X: 1}, {X: -1}, {Z: 1}, {Z: -1},
	{X: 1, Z: 1}, {X: 1, Z: -1}, {X: -1, Z: 1}, {X: -1, Z: -1},
}

// Find computes a waypoint path from Start toward Target.
func Find(req Request) Result {
	prof := req.Profile.normalized()
	bud := req.Budget.normalized()
	costs := req.Costs.normalized()

	if len(req.Scan) == 0 {
		return fail(protocol.ErrEmptyScan, "no blocks in scan")
	}

	hm := req.Heightmap
	if hm == nil {
		hm = terrain.Build(req.Scan, req.Table, terrain.Options{})
	}
	if len(hm) == 0 {
		return fail(protocol.ErrStartUnplaced, "no walkable surfaces in scan")
	}

	env := &searchEnv{
		scan:   req.Scan,
		hm:     hm,
		table:  req.Table,
		prof:   prof,
		budget: bud,
		flags:  make(map[voxel.Pos]classify.Flags, len(req.Scan)),
		stats:  &Stats{},
	}

	startCol, ok := placeStart(hm, req.Start, prof.MaxStepDown)
	if !ok {
		return fail(protocol.ErrStartUnplaced, "start column has no known surface")
	}

	targetCol := req.Target.Column()
	goal, exact, haveGoal := resolveGoal(hm, targetCol)

	gScore := map[voxel.Column]float64{startCol: 0}
	cameFrom := make(map[voxel.Column]voxel.Column)
	closed := make(map[voxel.Column]bool)

	open := &pathQueue{}
	heap.Init(open)
	seq := 0
	heap.Push(open, &qnode{col: startCol, f: voxel.HorizDist(startCol, targetCol), seq: seq})

	bestCol := startCol
	bestH := voxel.HorizDist(startCol, targetCol)

	for open.Len() > 0 {
		cur := heap.Pop(open).(*qnode)
		if closed[cur.col] {
			continue
		}
		if haveGoal && cur.col == goal {
			wps := env.waypoints(cameFrom, cur.col)
			return Result{
				Waypoints:     wps,
				TargetReached: exact,
				Distance:      voxel.HorizDist(cur.col, targetCol),
				Stats:         *env.stats,
			}
		}
		if env.stats.Expanded >= bud.MaxExpand {
			r := fail(protocol.ErrBudgetExceeded, fmt.Sprintf("search stopped after %d expansions", env.stats.Expanded))
			r.Stats = *env.stats
			return r
		}
		closed[cur.col] = true
		env.stats.Expanded++

		if h := voxel.HorizDist(cur.col, targetCol); h < bestH {
			bestH = h
			bestCol = cur.col
		}

		curY := hm[cur.col]
		for _, d := range dirs {
			nb := voxel.Column{X: cur.col.X + d.X, Z: cur.col.Z + d.Z}
			if closed[nb] {
				continue
			}
			nbY, known := hm[nb]
			if !known {
				continue
			}
			if !env.stepAllowed(cur.col, curY, nb, nbY, d) {
				continue
			}
			cost := costs.Straight
			if nbY > curY {
				cost = costs.Ascend
			} else if nbY < curY {
				cost = costs.Descend
			}
			g := gScore[cur.col] + cost
			if old, seen := gScore[nb]; seen && old <= g {
				continue
			}
			gScore[nb] = g
			cameFrom[nb] = cur.col
			seq++
			heap.Push(open, &qnode{col: nb, g: g, f: g + voxel.HorizDist(nb, targetCol), seq: seq})
		}
	}

	stats := *env.stats
	if !haveGoal {
		if bestCol != startCol {
			wps := env.waypoints(cameFrom, bestCol)
			return Result{
				Waypoints: wps,
				Partial:   true,
				Reason:    "target beyond scanned terrain",
				Distance:  voxel.HorizDist(bestCol, targetCol),
				Stats:     stats,
			}
		}
		r := fail(protocol.ErrNoRoute, "blocked immediately at start")
		r.Stats = stats
		return r
	}
	reason := "target unreachable within scan"
	if stats.Expanded <= 1 {
		reason = "blocked immediately at start"
	}
	r := fail(protocol.ErrNoRoute, reason)
	r.Stats = stats
	return r
}

func fail(code, reason string) Result {
	return Result{Code: code, Reason: reason}
}

// placeStart resolves the column the search departs from. The start's own
// column wins when its surface sits within tol of the agent's feet;
// otherwise the eight surrounding columns are tried in fixed order. Agents
// hang off ledges and stand on seams often enough that the exact column is
// frequently a miss.
func placeStart(hm terrain.Heightmap, start voxel.Pos, tol int) (voxel.Column, bool) {
	want := start.Y - 1
	for _, off := range startOffsets {
		col := voxel.Column{X: start.X + off.X, Z: start.Z + off.Z}
		y, ok := hm[col]
		if !ok {
			continue
		}
		diff := y - want
		if diff < 0 {
			diff = -diff
		}
		if diff <= tol {
			return col, true
		}
	}
	return voxel.Column{}, false
}

// resolveGoal picks the goal column: the target's own column when it has a
// surface, else a placed neighbor (arriving next to the target counts),
// else none and the search runs in frontier mode.
func resolveGoal(hm terrain.Heightmap, target voxel.Column) (goal voxel.Column, exact, ok bool) {
	if _, found := hm[target]; found {
		return target, true, true
	}
	for _, off := range startOffsets[1:] {
		col := voxel.Column{X: target.X + off.X, Z: target.Z + off.Z}
		if _, found := hm[col]; found {
			return col, false, true
		}
	}
	return voxel.Column{}, false, false
}

type searchEnv struct {
	scan   voxel.Scan
	hm     terrain.Heightmap
	table  classify.Table
	prof   Profile
	budget Budget

	// flags caches classifications for this call only.
	flags map[voxel.Pos]classify.Flags
	stats *Stats
}

func (e *searchEnv) flagsAt(p voxel.Pos) (classify.Flags, bool) {
	if f, ok := e.flags[p]; ok {
		return f, true
	}
	b, ok := e.scan[p]
	if !ok {
		return classify.Flags{}, false
	}
	f := e.table.Classify(b.Code, b.Solid)
	e.flags[p] = f
	return f, true
}

func (e *searchEnv) solidAt(p voxel.Pos) bool {
	f, ok := e.flagsAt(p)
	return ok && f.SolidForMovement
}

func (e *searchEnv) hazardAt(p voxel.Pos) bool {
	f, ok := e.flagsAt(p)
	return ok && f.Hazard
}

// clearColumn verifies body room above a surface: cells surface+1 through
// surface+BodyHeight must not be solid for movement.
func (e *searchEnv) clearColumn(c voxel.Column, surface int) bool {
	for i := 1; i <= e.prof.BodyHeight; i++ {
		if e.solidAt(voxel.Pos{X: c.X, Y: surface + i, Z: c.Z}) {
			return false
		}
	}
	return true
}

// hazardousStand reports a hazard in the surface cell or the standing cell.
func (e *searchEnv) hazardousStand(c voxel.Column, surface int) bool {
	return e.hazardAt(voxel.Pos{X: c.X, Y: surface, Z: c.Z}) ||
		e.hazardAt(voxel.Pos{X: c.X, Y: surface + 1, Z: c.Z})
}

// stepAllowed applies the movement rules for one step from column (from,
// fromY) to the adjacent column (to, toY) in travel direction d.
func (e *searchEnv) stepAllowed(from voxel.Column, fromY int, to voxel.Column, toY int, d voxel.Column) bool {
	dy := toY - fromY
	if dy > e.prof.MaxStepUp || dy < -e.prof.MaxStepDown {
		return false
	}
	if !e.clearColumn(to, toY) {
		return false
	}
	if dy > 0 {
		// Rising sweeps the cells above the head in the departure column.
		for y := fromY + e.prof.BodyHeight; y <= toY+e.prof.BodyHeight; y++ {
			if e.solidAt(voxel.Pos{X: from.X, Y: y, Z: from.Z}) {
				return false
			}
		}
	}
	if !e.prof.AllowHazards && e.hazardousStand(to, toY) {
		return false
	}
	if e.prof.DoorwayWidth >= 2 && e.slotBlocked(to, toY, d) {
		return false
	}
	if e.prof.MaxStepDown >= 2 && dy == -e.prof.MaxStepDown {
		e.stats.ProbesRun++
		found, exhausted := e.escapeReachable(to, toY)
		if exhausted {
			e.stats.ProbesExhausted++
		}
		if !found {
			return false
		}
	}
	return true
}

// slotBlocked reports a destination walled in on both sides perpendicular
// to the travel direction at body elevation.
func (e *searchEnv) slotBlocked(to voxel.Column, toY int, d voxel.Column) bool {
	var sides [2]voxel.Column
	if d.X != 0 {
		sides = [2]voxel.Column{{X: to.X, Z: to.Z - 1}, {X: to.X, Z: to.Z + 1}}
	} else {
		sides = [2]voxel.Column{{X: to.X - 1, Z: to.Z}, {X: to.X + 1, Z: to.Z}}
	}
	for _, s := range sides {
		open := true
		for i := 1; i <= e.prof.BodyHeight; i++ {
			if e.solidAt(voxel.Pos{X: s.X, Y: toY + i, Z: s.Z}) {
				open = false
				break
			}
		}
		if open {
			return false
		}
	}
	return true
}

// waypoints rebuilds the standing-cell path ending at end. Consecutive
// duplicates are collapsed.
func (e *searchEnv) waypoints(cameFrom map[voxel.Column]voxel.Column, end voxel.Column) []voxel.Pos {
	cols := []voxel.Column{end}
	for {
		prev, ok := cameFrom[cols[len(cols)-1]]
		if !ok {
			break
		}
		cols = append(cols, prev)
	}
	out := make([]voxel.Pos, 0, len(cols))
	for i := len(cols) - 1; i >= 0; i-- {
		c := cols[i]
		wp := voxel.Pos{X: c.X, Y: e.hm[c] + 1, Z: c.Z}
		if n := len(out); n > 0 && out[n-1] == wp {
			continue
		}
		out = append(out, wp)
	}
	return out
}

// qnode is a heap entry. seq breaks f-score ties in insertion order so the
// search is deterministic.
type qnode struct {
	col   voxel.Column
	g     float64
	f     float64
	seq   int
	index int
}

type pathQueue []*qnode

func (q pathQueue) Len() int { return len(q) }

func (q pathQueue) Less(i, j int) bool {
	if q[i].f != q[j].f {
		return q[i].f < q[j].f
	}
	return q[i].seq < q[j].seq
}

func (q pathQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *pathQueue) Push(x any) {
	n := x.(*qnode)
	n.index = len(*q)
	*q = append(*q, n)
}

func (q *pathQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*q = old[:n-1]
	return it
}
