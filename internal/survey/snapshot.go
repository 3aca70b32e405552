package survey

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// SessionHeader identifies a session snapshot. It is written as a plain
// JSON line before the gob body so tools can inspect a snapshot without
// decoding it.
type SessionHeader struct {
	Version int    `json:"version"`
	Agent   string `json:"agent"`
	SavedAt string `json:"saved_at"`
}

// SessionV1 captures what the scout knew when it shut down: the last
// terrain scan, the most recent route verdicts, and the lifetime counters.
// A restarted scout loads it to resume with warm state instead of an empty
// picture of the world.
type SessionV1 struct {
	Header SessionHeader `json:"header"`

	CatalogDigest string `json:"catalog_digest,omitempty"`

	LastScan *ScanSnapV1   `json:"last_scan,omitempty"`
	Routes   []RouteSnapV1 `json:"routes,omitempty"`

	Counters SessionCountersV1 `json:"counters"`
}

type ScanSnapV1 struct {
	TakenAt string        `json:"taken_at"`
	Origin  [3]int        `json:"origin"`
	Radius  int           `json:"radius"`
	Digest  string        `json:"digest"`
	Blocks  []BlockSnapV1 `json:"blocks"`
}

type BlockSnapV1 struct {
	Pos   [3]int `json:"pos"`
	Code  string `json:"code"`
	Solid bool   `json:"solid"`
}

type RouteSnapV1 struct {
	RequestedAt string `json:"requested_at"`
	Start       [3]int `json:"start"`
	Target      [3]int `json:"target"`
	Code        string `json:"code,omitempty"`
	Partial     bool   `json:"partial,omitempty"`
	Waypoints   int    `json:"waypoints"`
	Expanded    int    `json:"expanded"`
}

type SessionCountersV1 struct {
	Scans        uint64 `json:"scans"`
	Routes       uint64 `json:"routes"`
	RoutesFailed uint64 `json:"routes_failed"`
	Gotos        uint64 `json:"gotos"`
	PollTicks    uint64 `json:"poll_ticks"`
}

// WriteSession writes a session snapshot atomically: the full file is
// assembled under a .tmp name and renamed into place only on success.
func WriteSession(path string, s SessionV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	write := func() error {
		hb, _ := json.Marshal(s.Header)
		if _, err := bw.Write(hb); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
		if err := gob.NewEncoder(bw).Encode(&s); err != nil {
			return fmt.Errorf("gob encode: %w", err)
		}
		return bw.Flush()
	}
	if err := write(); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadSession loads a session snapshot written by WriteSession.
func ReadSession(path string) (SessionV1, error) {
	var s SessionV1
	f, err := os.Open(path)
	if err != nil {
		return s, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return s, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Skip the header line; the gob body carries the header too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&s); err != nil {
		return s, fmt.Errorf("gob decode: %w", err)
	}
	return s, nil
}

// PeekSessionHeader reads only the JSON header line of a snapshot.
func PeekSessionHeader(path string) (SessionHeader, error) {
	var h SessionHeader
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReaderSize(dec, 64*1024).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	return h, nil
}
