package voice

import (
	"math"
	"strings"
)

// DefaultThreshold is the share of anchors a transcript must contain.
const DefaultThreshold = 2.0 / 3.0

const tolerance = 1e-9

// Requirement is the success condition for one block.
type Requirement struct {
	Threshold  float64 `json:"threshold" yaml:"threshold"`
	MinMatches int     `json:"min_matches,omitempty" yaml:"min_matches,omitempty"`
}

// DefaultRequirement returns the stock two-thirds requirement.
func DefaultRequirement() Requirement {
	return Requirement{Threshold: DefaultThreshold}
}

// Or fills unset fields of r from fallback.
func (r Requirement) Or(fallback Requirement) Requirement {
	if r.Threshold == 0 {
		r.Threshold = fallback.Threshold
	}
	if r.MinMatches == 0 {
		r.MinMatches = fallback.MinMatches
	}
	return r
}

// Validation is the outcome of checking one transcript.
type Validation struct {
	TargetAnchors  []string `json:"target_anchors"`
	MatchedAnchors []string `json:"matched_anchors"`
	MissingPhrases []string `json:"missing_phrases"`
	Percentage     float64  `json:"percentage"`
	Threshold      float64  `json:"threshold"`
	Success        bool     `json:"success"`
}

// Matched is the number of anchors found.
func (v Validation) Matched() int {
	return len(v.MatchedAnchors)
}

// Validate reports which anchors appear in candidate. An anchor matches when
// its normalized form is a substring of the normalized candidate. Anchors
// keep their original spelling in the result, in input order.
//
// An empty anchor list never succeeds. Anchors that normalize to nothing
// count toward the total but can never match.
func Validate(anchors []string, candidate string, req Requirement) Validation {
	result := Validation{
		TargetAnchors:  append([]string{}, anchors...),
		MatchedAnchors: []string{},
		MissingPhrases: []string{},
		Threshold:      req.Threshold,
	}
	if len(anchors) == 0 {
		return result
	}
	text := Normalize(candidate)
	for _, anchor := range anchors {
		needle := Normalize(anchor)
		if needle != "" && text != "" && strings.Contains(text, needle) {
			result.MatchedAnchors = append(result.MatchedAnchors, anchor)
			continue
		}
		result.MissingPhrases = append(result.MissingPhrases, anchor)
	}
	result.Percentage = float64(len(result.MatchedAnchors)) / float64(len(anchors))
	result.Success = result.Percentage+tolerance >= req.Threshold &&
		len(result.MatchedAnchors) >= req.MinMatches
	return result
}

// PercentLabel renders the match share as a whole percentage.
func (v Validation) PercentLabel() int {
	return int(math.Round(v.Percentage * 100))
}

// Validator carries a default requirement. It holds no mutable state and is
// safe for concurrent use.
type Validator struct {
	Default Requirement
}

// NewValidator returns a validator whose zero-valued requirement fields fall
// back to the stock defaults.
func NewValidator(req Requirement) Validator {
	return Validator{Default: req.Or(DefaultRequirement())}
}

// Validate checks candidate against anchors, filling unset requirement
// fields from the validator default.
func (v Validator) Validate(anchors []string, candidate string, req Requirement) Validation {
	return Validate(anchors, candidate, req.Or(v.Default))
}
