// Package tuning loads the operator-editable knobs. Values the navigation
// rules depend on live here rather than in code so deployments can adjust
// them without a rebuild.
package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"voxelscout.ai/internal/nav/route"
	"voxelscout.ai/internal/nav/sight"
)

type Tuning struct {
	// APIBase is the game's bot API endpoint.
	APIBase string `yaml:"api_base"`

	PollIntervalMs int     `yaml:"poll_interval_ms"`
	ScanRadius     int     `yaml:"scan_radius"`
	EyeHeight      float64 `yaml:"eye_height"`

	Nav Nav `yaml:"nav"`
}

type Nav struct {
	BodyHeight   int  `yaml:"body_height"`
	MaxStepUp    int  `yaml:"max_step_up"`
	MaxStepDown  int  `yaml:"max_step_down"`
	DoorwayWidth int  `yaml:"doorway_width"`
	AllowHazards bool `yaml:"allow_hazards"`

	EscapeProbe int `yaml:"escape_probe"`
	MaxExpand   int `yaml:"max_expand"`

	CostStraight float64 `yaml:"cost_straight"`
	CostAscend   float64 `yaml:"cost_ascend"`
	CostDescend  float64 `yaml:"cost_descend"`
}

func Defaults() Tuning {
	prof := route.DefaultProfile()
	bud := route.DefaultBudget()
	costs := route.DefaultCosts()
	return Tuning{
		APIBase:        "http://localhost:4560",
		PollIntervalMs: 500,
		ScanRadius:     24,
		EyeHeight:      sight.DefaultEyeHeight,
		Nav: Nav{
			BodyHeight:   prof.BodyHeight,
			MaxStepUp:    prof.MaxStepUp,
			MaxStepDown:  prof.MaxStepDown,
			DoorwayWidth: prof.DoorwayWidth,
			EscapeProbe:  bud.EscapeProbe,
			MaxExpand:    bud.MaxExpand,
			CostStraight: costs.Straight,
			CostAscend:   costs.Ascend,
			CostDescend:  costs.Descend,
		},
	}
}

// Load reads the file over the defaults, so a partial file only overrides
// what it names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning: %w", err)
	}
	return t, nil
}

func (n Nav) Profile() route.Profile {
	return route.Profile{
		BodyHeight:   n.BodyHeight,
		MaxStepUp:    n.MaxStepUp,
		MaxStepDown:  n.MaxStepDown,
		DoorwayWidth: n.DoorwayWidth,
		AllowHazards: n.AllowHazards,
	}
}

func (n Nav) Budget() route.Budget {
	return route.Budget{MaxExpand: n.MaxExpand, EscapeProbe: n.EscapeProbe}
}

func (n Nav) Costs() route.Costs {
	return route.Costs{Straight: n.CostStraight, Ascend: n.CostAscend, Descend: n.CostDescend}
}
