package ritual

import (
	"fmt"
	"strings"

	"github.com/kingrea/linaje/internal/voice"
)

// Kind groups ritual definitions by their purpose.
type Kind string

const (
	KindLiberationLetter Kind = "liberation-letter"
	KindKarmicBond       Kind = "karmic-bond"
	KindAmarre           Kind = "amarre"
)

// Valid reports whether k is a known ritual kind.
func (k Kind) Valid() bool {
	switch k {
	case KindLiberationLetter, KindKarmicBond, KindAmarre:
		return true
	}
	return false
}

// Block is one spoken step of a phase.
type Block struct {
	ID          string            `json:"id" yaml:"id"`
	Title       string            `json:"title" yaml:"title"`
	Prompt      string            `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Anchors     []string          `json:"anchors" yaml:"anchors"`
	Requirement voice.Requirement `json:"requirement,omitempty" yaml:"requirement,omitempty"`
}

// Clone returns a deep copy of the block.
func (b Block) Clone() Block {
	out := b
	out.Anchors = append([]string(nil), b.Anchors...)
	return out
}

// Definition declares the blocks spoken in each phase of a ritual.
type Definition struct {
	ID          string            `json:"id" yaml:"id"`
	Kind        Kind              `json:"kind" yaml:"kind"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Phases      map[State][]Block `json:"phases" yaml:"phases"`
}

// Clone returns a deep copy of the definition.
func (def Definition) Clone() Definition {
	out := def
	if def.Phases != nil {
		out.Phases = make(map[State][]Block, len(def.Phases))
		for state, blocks := range def.Phases {
			cloned := make([]Block, len(blocks))
			for i, b := range blocks {
				cloned[i] = b.Clone()
			}
			out.Phases[state] = cloned
		}
	}
	return out
}

// Blocks returns the blocks of a phase in declaration order.
func (def Definition) Blocks(state State) []Block {
	blocks := def.Phases[state]
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = b.Clone()
	}
	return out
}

// Block finds a block by ID within a phase.
func (def Definition) Block(state State, id string) (Block, bool) {
	for _, b := range def.Phases[state] {
		if b.ID == id {
			return b.Clone(), true
		}
	}
	return Block{}, false
}

// Validate ensures the definition is self-consistent.
func (def Definition) Validate() error {
	if def.ID == "" {
		return fmt.Errorf("ritual: id is required")
	}
	if !def.Kind.Valid() {
		return fmt.Errorf("ritual %s: unknown kind %q", def.ID, def.Kind)
	}
	for state := range def.Phases {
		if !state.IsPhase() {
			return fmt.Errorf("ritual %s: blocks declared for non-phase state %q", def.ID, state)
		}
	}
	for _, state := range PhaseStates() {
		blocks := def.Phases[state]
		seen := map[string]struct{}{}
		for idx, b := range blocks {
			if b.ID == "" {
				return fmt.Errorf("ritual %s %s block[%d]: id is required", def.ID, state, idx)
			}
			if _, dup := seen[b.ID]; dup {
				return fmt.Errorf("ritual %s %s: duplicate block id %s", def.ID, state, b.ID)
			}
			seen[b.ID] = struct{}{}
			if len(b.Anchors) == 0 {
				return fmt.Errorf("ritual %s %s block %s: at least one anchor is required", def.ID, state, b.ID)
			}
			if b.Requirement.Threshold < 0 || b.Requirement.Threshold > 1 {
				return fmt.Errorf("ritual %s %s block %s: threshold must be within [0,1]", def.ID, state, b.ID)
			}
		}
	}
	return nil
}

// Normalized clones the definition, trims text fields and validates it.
func (def Definition) Normalized() (Definition, error) {
	out := def.Clone()
	out.ID = strings.TrimSpace(out.ID)
	out.Name = strings.TrimSpace(out.Name)
	if out.Name == "" {
		out.Name = out.ID
	}
	for state, blocks := range out.Phases {
		for i := range blocks {
			blocks[i].ID = strings.TrimSpace(blocks[i].ID)
			blocks[i].Title = strings.TrimSpace(blocks[i].Title)
			if blocks[i].Title == "" {
				blocks[i].Title = blocks[i].ID
			}
		}
		if len(blocks) == 0 {
			delete(out.Phases, state)
		}
	}
	if err := out.Validate(); err != nil {
		return Definition{}, err
	}
	return out, nil
}
