package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type catalogFile struct {
	Version int    `json:"version"`
	Rules   []Rule `json:"rules"`
}

// Load reads the classification catalog from <configDir>/blocks.json and
// records a digest of the raw bytes for provenance.
func Load(configDir string) (Table, error) {
	path := filepath.Join(configDir, "blocks.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return Table{}, err
	}

	var cf catalogFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return Table{}, fmt.Errorf("blocks.json: %w", err)
	}
	if cf.Version != 1 {
		return Table{}, fmt.Errorf("blocks.json: unsupported version %d", cf.Version)
	}
	if len(cf.Rules) == 0 {
		return Table{}, fmt.Errorf("blocks.json: no rules")
	}
	for i, r := range cf.Rules {
		switch r.Match {
		case "exact", "prefix", "contains":
		default:
			return Table{}, fmt.Errorf("blocks.json: rule %d: unknown match %q", i, r.Match)
		}
		if r.Pattern == "" {
			return Table{}, fmt.Errorf("blocks.json: rule %d: empty pattern", i)
		}
	}

	return Table{rules: cf.Rules, digest: sha256Hex(raw)}, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func rulesDigest(rules []Rule) string {
	b, _ := json.Marshal(rules)
	return sha256Hex(b)
}
