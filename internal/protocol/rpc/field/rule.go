// Package field decides, per RPC packet field, whether a value is text that
// goes through charset conversion or opaque bytes that must be left alone.
//
// Two mechanisms cooperate:
//   - Classify is a static table of field names the server always sends as
//     binary (file content, internal db records, attributes).
//   - Rule is a caller-supplied override used by commands like "export",
//     where the set of binary fields is only known to the caller.
//
// A Rule is fed field names in wire arrival order, one packet at a time.
// RangeRule is stateful, so the same instance must not be shared between
// concurrent scans.
package field

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Descriptor keys understood by NewRule.
const (
	KeyFieldPattern = "fieldPattern"
	KeyStartField   = "startField"
	KeyStopField    = "stopField"
)

// ErrInvalidRule is returned when a descriptor names a rule but its
// parameters cannot be used.
var ErrInvalidRule = errors.New("invalid field rule")

// Rule tracks whether the field currently being decoded should skip charset
// conversion.
type Rule interface {
	// Update observes the next field name in arrival order.
	Update(name string)

	// SkipConversion reports the decision for the most recently observed field.
	SkipConversion() bool
}

// NewRule builds a rule from a descriptor map.
//
// A "fieldPattern" key selects a PatternRule. Otherwise, when both
// "startField" and "stopField" are present, a RangeRule is built. Any other
// shape means no rule: (nil, nil) is returned.
func NewRule(descriptor map[string]any) (Rule, error) {
	if descriptor == nil {
		return nil, nil
	}

	if raw, ok := descriptor[KeyFieldPattern]; ok {
		pattern, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidRule, KeyFieldPattern, raw)
		}
		return NewPatternRule(pattern)
	}

	rawStart, hasStart := descriptor[KeyStartField]
	rawStop, hasStop := descriptor[KeyStopField]
	if !hasStart || !hasStop {
		return nil, nil
	}

	start, ok := rawStart.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidRule, KeyStartField, rawStart)
	}
	stop, ok := rawStop.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidRule, KeyStopField, rawStop)
	}
	return NewRangeRule(start, stop), nil
}

// RuleFromOptions builds a rule from the skip options of a streaming command.
// A pattern takes priority over a range; empty values mean "not set".
func RuleFromOptions(startField, stopField, fieldPattern string) (Rule, error) {
	descriptor := make(map[string]any)
	if fieldPattern != "" {
		descriptor[KeyFieldPattern] = fieldPattern
	} else if startField != "" && stopField != "" {
		descriptor[KeyStartField] = startField
		descriptor[KeyStopField] = stopField
	}
	return NewRule(descriptor)
}

// ============================================================================
// PatternRule
// ============================================================================

// PatternRule skips conversion for every field whose whole name matches the
// pattern. It has no memory beyond the last observed name.
type PatternRule struct {
	pattern *regexp.Regexp
	skip    bool
}

// NewPatternRule compiles pattern. The match is anchored at both ends so a
// name must match in full, not just contain a match.
func NewPatternRule(pattern string) (*PatternRule, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRule, KeyFieldPattern, err)
	}
	return &PatternRule{pattern: re}, nil
}

func (r *PatternRule) Update(name string) {
	r.skip = r.pattern.MatchString(name)
}

func (r *PatternRule) SkipConversion() bool {
	return r.skip
}

// Pattern returns the anchored expression in use.
func (r *PatternRule) Pattern() string {
	return r.pattern.String()
}

// ============================================================================
// RangeRule
// ============================================================================

type rangeState int

const (
	notSkipping rangeState = iota
	skipping
)

// RangeRule skips conversion from the start field (inclusive) up to the stop
// field (exclusive). Names are compared case-insensitively.
type RangeRule struct {
	start string
	stop  string
	state rangeState
}

func NewRangeRule(startField, stopField string) *RangeRule {
	return &RangeRule{start: startField, stop: stopField}
}

func (r *RangeRule) Update(name string) {
	switch r.state {
	case skipping:
		if strings.EqualFold(name, r.stop) {
			r.state = notSkipping
		}
	case notSkipping:
		if strings.EqualFold(name, r.start) {
			r.state = skipping
		}
	}
}

func (r *RangeRule) SkipConversion() bool {
	return r.state == skipping
}

// Reset returns the rule to its initial state so it can scan another record.
func (r *RangeRule) Reset() {
	r.state = notSkipping
}

func (r *RangeRule) StartField() string { return r.start }
func (r *RangeRule) StopField() string  { return r.stop }
