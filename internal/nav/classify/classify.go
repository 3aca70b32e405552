// Package classify maps opaque block codes to the movement semantics the
// nav packages need. The engine-reported solid flag is not trustworthy on
// its own: fences, doors and chiseled blocks report non-solid yet block
// movement, while leaves report solid yet do not. The mapping is a rule
// table loaded from the block catalog, not code.
package classify

import "strings"

// Flags is the derived classification for one observed block.
type Flags struct {
	// SolidForMovement blocks travel through the cell. True when the engine
	// reports solid or a hidden-collision rule matches, unless a foliage
	// rule makes the cell passable.
	SolidForMovement bool

	// Hazard marks cells unsafe to stand on or in (water, lava).
	Hazard bool

	// FoliagePassable marks non-woody plant matter: never an obstruction,
	// never a standable surface.
	FoliagePassable bool

	// WalkableSurface marks cells an agent may stand on. Hidden-collision
	// shapes (fences, slabs, stairs) and container/furniture tops are
	// excluded even though they obstruct movement.
	WalkableSurface bool
}

// Rule applies a set of category decisions to codes matching a pattern.
// Rules are ordered; the first rule that decides a category wins, so
// exception rules (e.g. woody "leaves") sort before the general ones.
type Rule struct {
	Match   string  `json:"match"` // "exact", "prefix" or "contains"
	Pattern string  `json:"pattern"`
	Apply   RuleSet `json:"apply"`
}

// RuleSet carries the category decisions of a rule. Nil means the rule
// leaves that category to later rules.
type RuleSet struct {
	Hidden  *bool `json:"hidden,omitempty"`
	Foliage *bool `json:"foliage,omitempty"`
	Hazard  *bool `json:"hazard,omitempty"`
	NoStand *bool `json:"nostand,omitempty"`
}

func (r Rule) matches(code string) bool {
	switch r.Match {
	case "exact":
		return code == r.Pattern
	case "prefix":
		return strings.HasPrefix(code, r.Pattern)
	default:
		return strings.Contains(code, r.Pattern)
	}
}

// Table is an immutable classification rule set. The zero value classifies
// every code by the engine flag alone; use DefaultTable or Load.
type Table struct {
	rules  []Rule
	digest string
}

// Digest identifies the loaded rule set (catalog provenance).
func (t Table) Digest() string { return t.digest }

type decision struct {
	val  bool
	done bool
}

func (d *decision) apply(p *bool) {
	if p != nil && !d.done {
		d.val = *p
		d.done = true
	}
}

// Classify derives movement flags for a block code. Pure; safe for
// concurrent use.
func (t Table) Classify(code string, engineSolid bool) Flags {
	code = strings.ToLower(code)

	var hidden, foliage, hazard, nostand decision
	for _, r := range t.rules {
		if !r.matches(code) {
			continue
		}
		hidden.apply(r.Apply.Hidden)
		foliage.apply(r.Apply.Foliage)
		hazard.apply(r.Apply.Hazard)
		nostand.apply(r.Apply.NoStand)
	}

	solid := engineSolid || hidden.val
	if foliage.val {
		solid = false
	}
	f := Flags{
		SolidForMovement: solid,
		Hazard:           hazard.val,
		FoliagePassable:  foliage.val,
	}
	f.WalkableSurface = solid && !hidden.val && !nostand.val && !hazard.val
	return f
}

func bp(v bool) *bool { return &v }

// DefaultTable returns the built-in rule set, identical to the shipped
// blocks.json. Library and test callers use it when no config dir exists.
func DefaultTable() Table {
	t := Table{rules: defaultRules()}
	t.digest = rulesDigest(t.rules)
	return t
}

func defaultRules() []Rule {
	return []Rule{
		// Exceptions first: woody growth obstructs even when it looks leafy.
		{Match: "contains", Pattern: "woody", Apply: RuleSet{Foliage: bp(false)}},
		{Match: "contains", Pattern: "log", Apply: RuleSet{Foliage: bp(false)}},

		{Match: "contains", Pattern: "leaves", Apply: RuleSet{Foliage: bp(true)}},
		{Match: "contains", Pattern: "tallgrass", Apply: RuleSet{Foliage: bp(true)}},
		{Match: "contains", Pattern: "flower", Apply: RuleSet{Foliage: bp(true)}},
		{Match: "contains", Pattern: "fern", Apply: RuleSet{Foliage: bp(true)}},
		{Match: "contains", Pattern: "sapling", Apply: RuleSet{Foliage: bp(true)}},

		// Non-solid shapes that still collide: partial-height and hinged
		// geometry the engine reports as passable.
		{Match: "contains", Pattern: "fence", Apply: RuleSet{Hidden: bp(true)}},
		{Match: "contains", Pattern: "gate", Apply: RuleSet{Hidden: bp(true)}},
		{Match: "contains", Pattern: "door", Apply: RuleSet{Hidden: bp(true)}},
		{Match: "contains", Pattern: "chiseledblock", Apply: RuleSet{Hidden: bp(true)}},
		{Match: "contains", Pattern: "microblock", Apply: RuleSet{Hidden: bp(true)}},
		{Match: "contains", Pattern: "slab", Apply: RuleSet{Hidden: bp(true)}},
		{Match: "contains", Pattern: "stair", Apply: RuleSet{Hidden: bp(true)}},
		{Match: "contains", Pattern: "pane", Apply: RuleSet{Hidden: bp(true)}},

		// Solid containers and furniture: obstacles, never standing tops.
		{Match: "contains", Pattern: "chest", Apply: RuleSet{NoStand: bp(true)}},
		{Match: "contains", Pattern: "barrel", Apply: RuleSet{NoStand: bp(true)}},
		{Match: "contains", Pattern: "crate", Apply: RuleSet{NoStand: bp(true)}},
		{Match: "contains", Pattern: "basket", Apply: RuleSet{NoStand: bp(true)}},
		{Match: "contains", Pattern: "shelf", Apply: RuleSet{NoStand: bp(true)}},
		{Match: "contains", Pattern: "quern", Apply: RuleSet{NoStand: bp(true)}},
		{Match: "contains", Pattern: "anvil", Apply: RuleSet{NoStand: bp(true)}},
		{Match: "contains", Pattern: "trough", Apply: RuleSet{NoStand: bp(true)}},
		{Match: "contains", Pattern: "firepit", Apply: RuleSet{NoStand: bp(true)}},

		{Match: "contains", Pattern: "water", Apply: RuleSet{Hazard: bp(true)}},
		{Match: "contains", Pattern: "lava", Apply: RuleSet{Hazard: bp(true)}},
		{Match: "contains", Pattern: "liquid", Apply: RuleSet{Hazard: bp(true)}},
	}
}
