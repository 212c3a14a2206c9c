package model

import (
	"fmt"
	"strings"

	apperrors "kvstore-collector/internal/shared/errors"
)

// PurgeMode selects what is deleted from the collection before a batch is written.
type PurgeMode string

const (
	PurgeNone   PurgeMode = "none"
	PurgeAll    PurgeMode = "all"
	PurgeReport PurgeMode = "report"
)

// ParsePurgeMode accepts the three-state policy and the boolean form some
// inputs still use ("true" means all, "false" or empty means none).
func ParsePurgeMode(raw string) (PurgeMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none", "false", "0", "no":
		return PurgeNone, nil
	case "all", "true", "1", "yes":
		return PurgeAll, nil
	case "report":
		return PurgeReport, nil
	default:
		return "", apperrors.NewConfigurationError(fmt.Sprintf("unknown purge mode %q (want none, all or report)", raw))
	}
}

// Policy is the write policy applied to one batch.
type Policy struct {
	Keyed     bool
	KeyFields []string
	Purge     PurgeMode
}

// Validate rejects policies that cannot be applied to any record.
func (p Policy) Validate() error {
	if p.Keyed && len(p.KeyFields) == 0 {
		return apperrors.NewConfigurationError("keyed mode requested with no identity fields").
			WithCause(apperrors.ErrNoIdentityField)
	}
	switch p.Purge {
	case PurgeNone, PurgeAll, PurgeReport:
	case "":
	default:
		return apperrors.NewConfigurationError(fmt.Sprintf("unknown purge mode %q", p.Purge))
	}
	return nil
}

// EffectivePurge returns the purge mode, treating empty as none.
func (p Policy) EffectivePurge() PurgeMode {
	if p.Purge == "" {
		return PurgeNone
	}
	return p.Purge
}

// ParseKeyFields splits a comma separated identity field list, stripping
// double quotes and blanks.
func ParseKeyFields(raw string) []string {
	raw = strings.ReplaceAll(raw, `"`, "")
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
