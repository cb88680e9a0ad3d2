package ritual

import (
	"fmt"
	"strings"
)

// VowCategory groups behavioral commitments.
type VowCategory string

const (
	VowPresence      VowCategory = "presence"
	VowCommunication VowCategory = "communication"
	VowSelfCare      VowCategory = "self-care"
	VowBoundaries    VowCategory = "boundaries"
	VowCustom        VowCategory = "custom"
)

// VowCategories lists every category.
func VowCategories() []VowCategory {
	return []VowCategory{VowPresence, VowCommunication, VowSelfCare, VowBoundaries, VowCustom}
}

// Valid reports whether c is a known category.
func (c VowCategory) Valid() bool {
	for _, known := range VowCategories() {
		if c == known {
			return true
		}
	}
	return false
}

// Vow is the behavioral commitment recorded during renewal.
type Vow struct {
	Description  string      `json:"description"`
	DurationDays int         `json:"duration_days"`
	Category     VowCategory `json:"category"`
}

// Validate rejects vows with an empty description, a non-positive duration
// or an unknown category. Custom vows are held to the same rules.
func (v Vow) Validate() error {
	if strings.TrimSpace(v.Description) == "" {
		return fmt.Errorf("%w: description is empty", ErrInvalidVow)
	}
	if v.DurationDays <= 0 {
		return fmt.Errorf("%w: duration must be at least one day", ErrInvalidVow)
	}
	if !v.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidVow, v.Category)
	}
	return nil
}
