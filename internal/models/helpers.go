package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func NewRoundID() string {
	return "round_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func ParseRiskLevel(s string) (RiskLevel, error) {
	switch r := RiskLevel(strings.ToLower(s)); r {
	case RiskLow, RiskMedium, RiskHigh:
		return r, nil
	}
	return "", fmt.Errorf("%w: risk level must be low, medium or high, got %q", ErrValidation, s)
}

func ParseEntryKind(s string) (EntryKind, error) {
	if s == "" {
		return "", nil
	}
	k := EntryKind(strings.ToLower(s))
	if !k.Valid() {
		return "", fmt.Errorf("%w: unknown entry kind %q", ErrValidation, s)
	}
	return k, nil
}

func ParseEntryStatus(s string) (EntryStatus, error) {
	if s == "" {
		return "", nil
	}
	st := EntryStatus(strings.ToLower(s))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown entry status %q", ErrValidation, s)
	}
	return st, nil
}

// ClampLimit keeps list sizes within [1,max], using def for non-positive input.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
