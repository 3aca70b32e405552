// Package mcp exposes the scout's operations as MCP tools over JSON-RPC
// on HTTP POST /mcp. Both the underscore method names (list_tools,
// call_tool) and the slash aliases (tools/list, tools/call) are accepted;
// clients are split on which generation of the protocol they speak.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"voxelscout.ai/internal/protocol"
	"voxelscout.ai/internal/scout"
)

// Bridge is the engine surface the tool server drives. scout.Engine
// implements it; tests substitute stubs.
type Bridge interface {
	Status(ctx context.Context) (protocol.StatusMsg, error)
	Observe(ctx context.Context) (protocol.ObserveMsg, error)
	Blocks(ctx context.Context, args scout.BlocksArgs) (scout.BlocksResult, error)
	Route(ctx context.Context, args scout.RouteArgs) (protocol.RouteFrame, error)
	Goto(ctx context.Context, args scout.GotoArgs) error
	MovementStatus(ctx context.Context) (protocol.MovementMsg, error)
	Stop(ctx context.Context) error
	Say(ctx context.Context, message string) error
	Inbox(ctx context.Context) ([]protocol.ChatLine, error)
}

type Config struct {
	Bridge Bridge
}

type Server struct {
	bridge Bridge
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Bridge == nil {
		return nil, fmt.Errorf("nil bridge")
	}
	return &Server{bridge: cfg.Bridge}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/mcp", s.handleMCP)
	return mux
}

func (s *Server) handleMCP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		_, _ = rw.Write([]byte("bad body"))
		return
	}
	_ = r.Body.Close()

	req, err := parseRPCRequest(body)
	if err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		_, _ = rw.Write([]byte("bad jsonrpc request"))
		return
	}

	resp := s.dispatch(r.Context(), req)
	rw.Header().Set("content-type", "application/json")
	enc := json.NewEncoder(rw)
	_ = enc.Encode(resp)
}

func (s *Server) dispatch(ctx context.Context, req rpcRequest) rpcResponse {
	switch req.Method {
	case "initialize":
		return rpcOK(req.ID, map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
			"serverInfo": map[string]any{"name": "voxelscout", "version": protocol.Version},
		})

	case "list_tools", "tools/list":
		return rpcOK(req.ID, map[string]any{"tools": s.toolsList()})

	case "call_tool", "tools/call":
		var p struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if len(req.Params) == 0 {
			return rpcErr(req.ID, -32602, "missing params", map[string]any{"code": protocol.ErrBadRequest})
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return rpcErr(req.ID, -32602, "bad params", map[string]any{"code": protocol.ErrBadRequest, "detail": err.Error()})
		}
		if p.Name == "" {
			return rpcErr(req.ID, -32602, "missing tool name", map[string]any{"code": protocol.ErrBadRequest})
		}
		if !isKnownTool(p.Name) {
			return rpcErr(req.ID, -32601, "tool not found", map[string]any{"code": protocol.ErrUnknownTool, "name": p.Name})
		}
		out, err := s.callTool(ctx, p.Name, p.Arguments)
		if err != nil {
			return rpcErr(req.ID, -32000, err.Error(), nil)
		}
		return rpcOK(req.ID, out)

	default:
		return rpcErr(req.ID, -32601, "method not found", nil)
	}
}

func (s *Server) toolsList() []map[string]any {
	cell := map[string]any{
		"x": map[string]any{"type": "integer"},
		"y": map[string]any{"type": "integer"},
		"z": map[string]any{"type": "integer"},
	}
	return []map[string]any{
		{
			"name":        "bot_status",
			"description": "Connection, player and position summary from the game.",
			"inputSchema": map[string]any{"type": "object", "properties": map[string]any{}, "additionalProperties": false},
		},
		{
			"name":        "bot_observe",
			"description": "Current position, heading, vitals and world conditions.",
			"inputSchema": map[string]any{"type": "object", "properties": map[string]any{}, "additionalProperties": false},
		},
		{
			"name":        "bot_blocks",
			"description": "Scan surrounding terrain and return the blocks the agent can see, classified for movement.",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"radius":       map[string]any{"type": "integer", "minimum": 1},
					"surface_only": map[string]any{"type": "boolean"},
					"filter":       map[string]any{"type": "string"},
				},
			},
		},
		{
			"name":        "bot_route",
			"description": "Compute a walking route from the agent to a target cell. Failures come back as E_* codes, not errors.",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"x":             cell["x"],
					"y":             cell["y"],
					"z":             cell["z"],
					"radius":        map[string]any{"type": "integer", "minimum": 1},
					"allow_hazards": map[string]any{"type": "boolean"},
				},
				"required": []string{"x", "y", "z"},
			},
		},
		{
			"name":        "bot_goto",
			"description": "Hand a movement target to the in-game mover.",
			"inputSchema": map[string]any{
				"type":       "object",
				"properties": cell,
				"required":   []string{"x", "y", "z"},
			},
		},
		{
			"name":        "bot_movement_status",
			"description": "State of the current movement task (idle/moving/reached/stuck).",
			"inputSchema": map[string]any{"type": "object", "properties": map[string]any{}, "additionalProperties": false},
		},
		{
			"name":        "bot_stop",
			"description": "Cancel the current movement task.",
			"inputSchema": map[string]any{"type": "object", "properties": map[string]any{}, "additionalProperties": false},
		},
		{
			"name":        "bot_say",
			"description": "Say a chat message in game.",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"message": map[string]any{"type": "string"},
				},
				"required": []string{"message"},
			},
		},
		{
			"name":        "bot_inbox",
			"description": "Chat messages received since the last read.",
			"inputSchema": map[string]any{"type": "object", "properties": map[string]any{}, "additionalProperties": false},
		},
	}
}

func (s *Server) callTool(ctx context.Context, name string, args json.RawMessage) (any, error) {
	switch name {
	case "bot_status":
		return s.bridge.Status(ctx)

	case "bot_observe":
		return s.bridge.Observe(ctx)

	case "bot_blocks":
		var a scout.BlocksArgs
		if len(args) > 0 {
			if err := json.Unmarshal(args, &a); err != nil {
				return nil, fmt.Errorf("bad arguments: %w", err)
			}
		}
		return s.bridge.Blocks(ctx, a)

	case "bot_route":
		var a scout.RouteArgs
		if len(args) == 0 {
			return nil, fmt.Errorf("missing target")
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("bad arguments: %w", err)
		}
		return s.bridge.Route(ctx, a)

	case "bot_goto":
		var a scout.GotoArgs
		if len(args) == 0 {
			return nil, fmt.Errorf("missing target")
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("bad arguments: %w", err)
		}
		if err := s.bridge.Goto(ctx, a); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil

	case "bot_movement_status":
		return s.bridge.MovementStatus(ctx)

	case "bot_stop":
		if err := s.bridge.Stop(ctx); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil

	case "bot_say":
		var a struct {
			Message string `json:"message"`
		}
		if len(args) > 0 {
			if err := json.Unmarshal(args, &a); err != nil {
				return nil, fmt.Errorf("bad arguments: %w", err)
			}
		}
		if strings.TrimSpace(a.Message) == "" {
			return nil, fmt.Errorf("missing message")
		}
		if err := s.bridge.Say(ctx, a.Message); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil

	case "bot_inbox":
		msgs, err := s.bridge.Inbox(ctx)
		if err != nil {
			return nil, err
		}
		return protocol.InboxMsg{Messages: msgs}, nil

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

func isKnownTool(name string) bool {
	switch name {
	case "bot_status",
		"bot_observe",
		"bot_blocks",
		"bot_route",
		"bot_goto",
		"bot_movement_status",
		"bot_stop",
		"bot_say",
		"bot_inbox":
		return true
	default:
		return false
	}
}
