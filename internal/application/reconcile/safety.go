package reconcile

import (
	"fmt"
	"strings"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

// TypedConfirmation is the text an operator types to confirm an apply when the policy
// requires it.
const TypedConfirmation = "APPLY"

// SafetyPolicy flags risky previews and gates apply on explicit confirmation.
// A zero threshold disables that warning.
type SafetyPolicy struct {
	WarnDisableCount    int
	WarnDeleteCount     int
	WarnGroupClearCount int
	WarnCreateCount     int
	RequireTypedConfirm bool
}

func (p SafetyPolicy) Warnings(s domain.PreviewSummary) []string {
	warnings := []string{}
	check := func(count, threshold int, what string) {
		if threshold > 0 && count >= threshold {
			warnings = append(warnings, fmt.Sprintf("%d %s (warning threshold %d)", count, what, threshold))
		}
	}
	check(s.Creates, p.WarnCreateCount, "accounts will be created")
	check(s.Disables, p.WarnDisableCount, "accounts will be disabled")
	check(s.Deletes, p.WarnDeleteCount, "accounts will be deleted")
	check(s.Clears, p.WarnGroupClearCount, "rows clear group membership")
	return warnings
}

func (p SafetyPolicy) CheckConfirmation(confirm bool, typed string) error {
	if !confirm {
		return ErrConfirmationRequired
	}
	if p.RequireTypedConfirm && strings.TrimSpace(typed) != TypedConfirmation {
		return fmt.Errorf("%w: type %s to confirm", ErrConfirmationRequired, TypedConfirmation)
	}
	return nil
}
