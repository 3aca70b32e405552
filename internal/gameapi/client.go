// Package gameapi talks to the voxel game's bot API. The game mod exposes
// a small HTTP surface on localhost; every method here is one request
// against it, decoded into the protocol types.
package gameapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"voxelscout.ai/internal/nav/voxel"
	"voxelscout.ai/internal/protocol"
)

const DefaultBase = "http://localhost:4560"

// Scans at radius 24 run to a few megabytes of JSON.
const maxBody = 32 << 20

type Client struct {
	base string
	hc   *http.Client
}

func New(base string) *Client {
	if base == "" {
		base = DefaultBase
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Status(ctx context.Context) (protocol.StatusMsg, error) {
	var out protocol.StatusMsg
	err := c.get(ctx, "/status", nil, &out)
	return out, err
}

func (c *Client) Observe(ctx context.Context) (protocol.ObserveMsg, error) {
	var out protocol.ObserveMsg
	err := c.get(ctx, "/bot/observe", nil, &out)
	return out, err
}

// Blocks fetches the terrain scan around the agent. radius <= 0 leaves the
// choice to the game.
func (c *Client) Blocks(ctx context.Context, radius int) (voxel.Scan, error) {
	q := url.Values{}
	if radius > 0 {
		q.Set("radius", strconv.Itoa(radius))
	}
	raw, err := c.getRaw(ctx, "/bot/blocks", q)
	if err != nil {
		return nil, err
	}
	recs, err := decodeBlocks(raw)
	if err != nil {
		return nil, fmt.Errorf("game api: /bot/blocks: decode: %w", err)
	}
	scan := make(voxel.Scan, len(recs))
	for _, rec := range recs {
		x, y, z := rec.Cell()
		scan.Add(voxel.Block{Pos: voxel.Pos{X: x, Y: y, Z: z}, Code: rec.Code, Solid: rec.Solid})
	}
	return scan, nil
}

// decodeBlocks accepts both the enveloped and the bare-array response;
// older mod builds send the latter.
func decodeBlocks(raw []byte) ([]protocol.BlockRec, error) {
	trim := bytes.TrimSpace(raw)
	if len(trim) > 0 && trim[0] == '[' {
		var recs []protocol.BlockRec
		err := json.Unmarshal(trim, &recs)
		return recs, err
	}
	var msg protocol.BlocksMsg
	err := json.Unmarshal(trim, &msg)
	return msg.Blocks, err
}

func (c *Client) Goto(ctx context.Context, x, y, z int) error {
	return c.postOK(ctx, "/bot/goto", protocol.GotoReq{X: x, Y: y, Z: z})
}

func (c *Client) MovementStatus(ctx context.Context) (protocol.MovementMsg, error) {
	var out protocol.MovementMsg
	err := c.get(ctx, "/bot/movement/status", nil, &out)
	return out, err
}

func (c *Client) Stop(ctx context.Context) error {
	return c.postOK(ctx, "/bot/stop", nil)
}

func (c *Client) Say(ctx context.Context, message string) error {
	return c.postOK(ctx, "/bot/chat", protocol.ChatReq{Message: message})
}

func (c *Client) Inbox(ctx context.Context) ([]protocol.ChatLine, error) {
	var out protocol.InboxMsg
	if err := c.get(ctx, "/bot/inbox", nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	raw, err := c.getRaw(ctx, path, q)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("game api: %s: decode: %w", path, err)
	}
	return nil
}

func (c *Client) getRaw(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) postOK(ctx context.Context, path string, in any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("content-type", "application/json")
	}
	raw, err := c.do(req)
	if err != nil {
		return err
	}
	var ok protocol.OKMsg
	if err := json.Unmarshal(raw, &ok); err != nil {
		return fmt.Errorf("game api: %s: decode: %w", path, err)
	}
	if !ok.OK {
		msg := ok.Error
		if msg == "" {
			msg = "rejected"
		}
		return fmt.Errorf("game api: %s: %s", path, msg)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	res, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("game api: %w", err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("game api: %s: read: %w", req.URL.Path, err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("game api: %s: status %d: %s", req.URL.Path, res.StatusCode, snippet(raw))
	}
	return raw, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
