package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Vec3 is a continuous-space position as the game reports it.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// CellRef is an integer voxel cell on the wire.
type CellRef struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// StatusMsg mirrors GET /status.
type StatusMsg struct {
	Connected  bool    `json:"connected"`
	Player     string  `json:"player,omitempty"`
	Pos        Vec3    `json:"pos"`
	Health     float64 `json:"health,omitempty"`
	Saturation float64 `json:"saturation,omitempty"`
}

// ObserveMsg mirrors GET /bot/observe.
type ObserveMsg struct {
	Pos        Vec3    `json:"pos"`
	Yaw        float64 `json:"yaw,omitempty"`
	Health     float64 `json:"health,omitempty"`
	Saturation float64 `json:"saturation,omitempty"`
	TimeOfDay  float64 `json:"time_of_day,omitempty"`
	Weather    string  `json:"weather,omitempty"`
}

// BlockRec is one block from GET /bot/blocks. Older mod builds nest the
// cell under worldPos; newer ones inline the coordinates. Cell resolves
// either shape.
type BlockRec struct {
	X        int      `json:"x"`
	Y        int      `json:"y"`
	Z        int      `json:"z"`
	WorldPos *CellRef `json:"worldPos,omitempty"`
	Code     string   `json:"code"`
	Solid    bool     `json:"solid"`
}

func (b BlockRec) Cell() (x, y, z int) {
	if b.WorldPos != nil {
		return b.WorldPos.X, b.WorldPos.Y, b.WorldPos.Z
	}
	return b.X, b.Y, b.Z
}

type BlocksMsg struct {
	Blocks []BlockRec `json:"blocks"`
}

// GotoReq is POST /bot/goto.
type GotoReq struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// OKMsg is the game's generic command acknowledgment.
type OKMsg struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Movement states reported by GET /bot/movement/status.
const (
	StateIdle    = "idle"
	StateMoving  = "moving"
	StateReached = "reached"
	StateStuck   = "stuck"
	StateNoTask  = "no_task"
)

// TerminalState reports whether a movement state ends a goto task.
func TerminalState(s string) bool {
	switch s {
	case StateIdle, StateReached, StateStuck, StateNoTask:
		return true
	}
	return false
}

type MovementMsg struct {
	State    string   `json:"state"`
	Target   *CellRef `json:"target,omitempty"`
	QueueLen int      `json:"queue_len,omitempty"`
}

// ChatReq is POST /bot/chat.
type ChatReq struct {
	Message string `json:"message"`
}

type ChatLine struct {
	From    string `json:"from"`
	Message string `json:"message"`
	At      string `json:"at,omitempty"`
}

type InboxMsg struct {
	Messages []ChatLine `json:"messages"`
}

// HelloFrame opens a watch session.
type HelloFrame struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Agent           string `json:"agent,omitempty"`
	Started         string `json:"started"`
}

// StateFrame is one movement update on the watch stream.
type StateFrame struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version,omitempty"`
	Seq             uint64   `json:"seq"`
	At              string   `json:"at"`
	State           string   `json:"state"`
	Pos             Vec3     `json:"pos"`
	Target          *CellRef `json:"target,omitempty"`
	QueueLen        int      `json:"queue_len,omitempty"`
}

// RouteFrame reports a route computation, both on the watch stream and in
// the journal.
type RouteFrame struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version,omitempty"`
	Seq             uint64    `json:"seq"`
	At              string    `json:"at"`
	Start           CellRef   `json:"start"`
	Target          CellRef   `json:"target"`
	AllowHazards    bool      `json:"allow_hazards,omitempty"`
	Code            string    `json:"code,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Partial         bool      `json:"partial,omitempty"`
	TargetReached   bool      `json:"target_reached,omitempty"`
	Waypoints       []CellRef `json:"waypoints,omitempty"`
	Distance        float64   `json:"distance,omitempty"`
	Expanded        int       `json:"expanded,omitempty"`
}

// ScanFrame journals one terrain scan.
type ScanFrame struct {
	Type   string `json:"type"`
	Seq    uint64 `json:"seq"`
	At     string `json:"at"`
	Radius int    `json:"radius"`
	Count  int    `json:"count"`
	Digest string `json:"digest,omitempty"`
}

// DigestBlocks returns a stable hex digest over a block list. Records are
// canonicalised to flat coordinates and sorted first, so the digest does not
// depend on the order the game returned them in.
func DigestBlocks(blocks []BlockRec) string {
	lines := make([]string, 0, len(blocks))
	for _, b := range blocks {
		x, y, z := b.Cell()
		lines = append(lines, fmt.Sprintf("%d,%d,%d,%s,%t", x, y, z, b.Code, b.Solid))
	}
	sort.Strings(lines)
	h := sha256.New()
	for _, ln := range lines {
		h.Write([]byte(ln))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
