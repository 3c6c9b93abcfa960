package reconcile_test

import (
	"testing"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

func TestBatchStatusTransitions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from domain.BatchStatus
		to   domain.BatchStatus
		ok   bool
	}{
		{domain.BatchPreviewed, domain.BatchApplying, true},
		{domain.BatchApplying, domain.BatchApplied, true},
		{domain.BatchApplying, domain.BatchFailed, true},
		{domain.BatchFailed, domain.BatchApplying, true},
		{domain.BatchPreviewed, domain.BatchApplied, false},
		{domain.BatchApplied, domain.BatchApplying, false},
		{domain.BatchApplied, domain.BatchFailed, false},
		{domain.BatchFailed, domain.BatchApplied, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestParseAction(t *testing.T) {
	t.Parallel()

	if a, ok := domain.ParseAction(""); !ok || a != domain.ActionSkip {
		t.Fatalf("expected empty cell to mean skip, got %q %v", a, ok)
	}
	if a, ok := domain.ParseAction(" Enable "); !ok || a != domain.ActionEnable {
		t.Fatalf("expected enable, got %q %v", a, ok)
	}
	if _, ok := domain.ParseAction("purge"); ok {
		t.Fatal("expected purge to be rejected")
	}
	if got := domain.ActionDisable.Operation(); got != "user.disable" {
		t.Fatalf("unexpected operation: %s", got)
	}
}

func TestAuditFilterClampLimit(t *testing.T) {
	t.Parallel()

	for in, want := range map[int]int{0: 200, 5: 25, 300: 300, 5000: 1000} {
		if got := (domain.AuditFilter{Limit: in}).ClampLimit(); got != want {
			t.Fatalf("limit %d: expected %d, got %d", in, want, got)
		}
	}
}
