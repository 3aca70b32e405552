package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"voxelscout.ai/internal/protocol"
	"voxelscout.ai/internal/scout"
)

type stubBridge struct {
	lastGoto  *scout.GotoArgs
	lastRoute *scout.RouteArgs
	said      []string
	stopped   bool
}

func (b *stubBridge) Status(ctx context.Context) (protocol.StatusMsg, error) {
	_ = ctx
	return protocol.StatusMsg{Connected: true, Player: "Scout", Pos: protocol.Vec3{X: 0.5, Y: 11, Z: 0.5}}, nil
}

func (b *stubBridge) Observe(ctx context.Context) (protocol.ObserveMsg, error) {
	_ = ctx
	return protocol.ObserveMsg{Pos: protocol.Vec3{X: 0.5, Y: 11, Z: 0.5}}, nil
}

func (b *stubBridge) Blocks(ctx context.Context, args scout.BlocksArgs) (scout.BlocksResult, error) {
	_ = ctx
	return scout.BlocksResult{
		Radius:  args.Radius,
		Total:   2,
		Visible: 1,
		Digest:  "d",
		Blocks:  []scout.BlockInfo{{X: 1, Y: 10, Z: 1, Code: "rock-granite", Solid: true}},
	}, nil
}

func (b *stubBridge) Route(ctx context.Context, args scout.RouteArgs) (protocol.RouteFrame, error) {
	_ = ctx
	b.lastRoute = &args
	return protocol.RouteFrame{
		Type:          protocol.TypeRoute,
		Target:        protocol.CellRef{X: args.X, Y: args.Y, Z: args.Z},
		TargetReached: true,
		Waypoints: []protocol.CellRef{
			{X: 0, Y: 11, Z: 0},
			{X: args.X, Y: args.Y, Z: args.Z},
		},
	}, nil
}

func (b *stubBridge) Goto(ctx context.Context, args scout.GotoArgs) error {
	_ = ctx
	b.lastGoto = &args
	return nil
}

func (b *stubBridge) MovementStatus(ctx context.Context) (protocol.MovementMsg, error) {
	_ = ctx
	return protocol.MovementMsg{State: protocol.StateMoving, QueueLen: 1}, nil
}

func (b *stubBridge) Stop(ctx context.Context) error {
	_ = ctx
	b.stopped = true
	return nil
}

func (b *stubBridge) Say(ctx context.Context, message string) error {
	_ = ctx
	b.said = append(b.said, message)
	return nil
}

func (b *stubBridge) Inbox(ctx context.Context) ([]protocol.ChatLine, error) {
	_ = ctx
	return []protocol.ChatLine{{From: "Anna", Message: "hi"}}, nil
}

func rpcPost(t *testing.T, base string, payload any) rpcResponse {
	t.Helper()
	b, _ := json.Marshal(payload)
	req, _ := http.NewRequest("POST", base+"/mcp", bytes.NewReader(b))
	req.Header.Set("content-type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer res.Body.Close()
	var out rpcResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func decodeResult(t *testing.T, result any, out any) {
	t.Helper()
	b, _ := json.Marshal(result)
	if err := json.Unmarshal(b, out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *stubBridge) {
	t.Helper()
	br := &stubBridge{}
	s, err := NewServer(Config{Bridge: br})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, br
}

func TestMCP_Initialize_And_ListTools(t *testing.T) {
	ts, _ := newTestServer(t)

	initResp := rpcPost(t, ts.URL, map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
	})
	if initResp.Error != nil {
		t.Fatalf("initialize error: %+v", initResp.Error)
	}
	rm, _ := initResp.Result.(map[string]any)
	if rm["protocolVersion"] == "" {
		t.Fatalf("missing protocolVersion in result")
	}

	for _, method := range []string{"list_tools", "tools/list"} {
		lt := rpcPost(t, ts.URL, map[string]any{
			"jsonrpc": "2.0",
			"id":      2,
			"method":  method,
		})
		if lt.Error != nil {
			t.Fatalf("%s error: %+v", method, lt.Error)
		}
		rm2, ok := lt.Result.(map[string]any)
		if !ok {
			t.Fatalf("unexpected %s result type: %T", method, lt.Result)
		}
		tools, ok := rm2["tools"].([]any)
		if !ok {
			t.Fatalf("missing tools array")
		}
		if len(tools) != 9 {
			t.Fatalf("expected 9 tools, got %d", len(tools))
		}
	}
}

func TestMCP_CallTool_Route(t *testing.T) {
	ts, br := newTestServer(t)

	for _, method := range []string{"call_tool", "tools/call"} {
		resp := rpcPost(t, ts.URL, map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"method":  method,
			"params": map[string]any{
				"name":      "bot_route",
				"arguments": map[string]any{"x": 4, "y": 11, "z": 4, "allow_hazards": true},
			},
		})
		if resp.Error != nil {
			t.Fatalf("%s error: %+v", method, resp.Error)
		}
		var frame protocol.RouteFrame
		decodeResult(t, resp.Result, &frame)
		if !frame.TargetReached || len(frame.Waypoints) != 2 {
			t.Fatalf("frame=%+v", frame)
		}
		if br.lastRoute == nil || !br.lastRoute.AllowHazards || br.lastRoute.X != 4 {
			t.Fatalf("route args not forwarded: %+v", br.lastRoute)
		}
	}
}

func TestMCP_CallTool_GotoAndSay(t *testing.T) {
	ts, br := newTestServer(t)

	resp := rpcPost(t, ts.URL, map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "call_tool",
		"params": map[string]any{
			"name":      "bot_goto",
			"arguments": map[string]any{"x": 1, "y": 2, "z": 3},
		},
	})
	if resp.Error != nil {
		t.Fatalf("bot_goto error: %+v", resp.Error)
	}
	if br.lastGoto == nil || *br.lastGoto != (scout.GotoArgs{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("goto args not forwarded: %+v", br.lastGoto)
	}

	resp = rpcPost(t, ts.URL, map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "call_tool",
		"params": map[string]any{
			"name":      "bot_say",
			"arguments": map[string]any{"message": "   "},
		},
	})
	if resp.Error == nil || resp.Error.Code != -32000 {
		t.Fatalf("blank say should fail with -32000, got %+v", resp.Error)
	}
	if len(br.said) != 0 {
		t.Fatalf("blank say must not reach the bridge: %v", br.said)
	}

	resp = rpcPost(t, ts.URL, map[string]any{
		"jsonrpc": "2.0",
		"id":      3,
		"method":  "call_tool",
		"params": map[string]any{
			"name":      "bot_say",
			"arguments": map[string]any{"message": "on my way"},
		},
	})
	if resp.Error != nil {
		t.Fatalf("bot_say error: %+v", resp.Error)
	}
	if len(br.said) != 1 || br.said[0] != "on my way" {
		t.Fatalf("said=%v", br.said)
	}
}

func TestMCP_CallTool_Unknown(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := rpcPost(t, ts.URL, map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "call_tool",
		"params": map[string]any{
			"name":      "nope",
			"arguments": map[string]any{},
		},
	})
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("expected tool not found (-32601), got %+v", resp.Error)
	}
	data, _ := resp.Error.Data.(map[string]any)
	if data["code"] != protocol.ErrUnknownTool {
		t.Fatalf("expected %s in error data, got %+v", protocol.ErrUnknownTool, resp.Error.Data)
	}
}

func TestMCP_CallTool_MissingParams(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := rpcPost(t, ts.URL, map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "call_tool",
	})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Fatalf("expected -32602, got %+v", resp.Error)
	}
}

func TestMCP_RejectsNonPost(t *testing.T) {
	ts, _ := newTestServer(t)

	res, err := http.Get(ts.URL + "/mcp")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d want=405", res.StatusCode)
	}

	res2, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer res2.Body.Close()
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("healthz status=%d", res2.StatusCode)
	}
}
