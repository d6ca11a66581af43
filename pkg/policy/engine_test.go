package policy

import (
	"testing"

	"github.com/wisbric/confcore/internal/apperr"
	"github.com/wisbric/confcore/pkg/scope"
)

func TestDiffFlattensNestedObjects(t *testing.T) {
	patch := map[string]any{
		"agents": map[string]any{
			"support": map[string]any{
				"model": "gpt-5",
			},
		},
		"retries": float64(3),
	}

	changes := Diff(patch)
	byPath := map[string]PathChange{}
	for _, c := range changes {
		byPath[c.Path] = c
	}

	if c, ok := byPath["agents.support.model"]; !ok || c.Value != "gpt-5" {
		t.Errorf("expected agents.support.model = gpt-5, got %+v ok=%v", c, ok)
	}
	if c, ok := byPath["retries"]; !ok || !c.IsNumeric || c.Numeric != 3 {
		t.Errorf("expected numeric retries = 3, got %+v ok=%v", c, ok)
	}
}

func TestDiffTreatsDeleteSentinelAsDelete(t *testing.T) {
	patch := map[string]any{"webhook_url": scope.Delete}
	changes := Diff(patch)
	if len(changes) != 1 || !changes[0].IsDelete {
		t.Fatalf("expected a single delete change, got %+v", changes)
	}
}

func TestEnforceRejectsLockedPath(t *testing.T) {
	p := SecurityPolicy{LockedPaths: []string{"billing.plan"}}
	changes := []PathChange{{Path: "billing.plan.tier", Value: "enterprise"}}

	_, _, err := Enforce(p, changes)
	if !apperr.Is(err, apperr.PolicyViolation) {
		t.Fatalf("expected PolicyViolation, got %v", err)
	}
}

func TestEnforceAllowsPathOutsideLockedPrefix(t *testing.T) {
	p := SecurityPolicy{LockedPaths: []string{"billing.plan"}}
	changes := []PathChange{{Path: "billing.planner", Value: "x"}}

	applied, _, err := Enforce(p, changes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(applied) != 1 {
		t.Fatalf("expected the change to be applied, got %+v", applied)
	}
}

func TestEnforceRejectsOverMaxValue(t *testing.T) {
	p := SecurityPolicy{MaxValues: map[string]float64{"agents.support.max_tokens": 4096}}
	changes := []PathChange{{Path: "agents.support.max_tokens", IsNumeric: true, Numeric: 8192}}

	_, _, err := Enforce(p, changes)
	if !apperr.Is(err, apperr.PolicyViolation) {
		t.Fatalf("expected PolicyViolation, got %v", err)
	}
}

func TestEnforceAllowsAtOrUnderMaxValue(t *testing.T) {
	p := SecurityPolicy{MaxValues: map[string]float64{"agents.support.max_tokens": 4096}}
	changes := []PathChange{{Path: "agents.support.max_tokens", IsNumeric: true, Numeric: 4096}}

	applied, _, err := Enforce(p, changes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(applied) != 1 {
		t.Fatalf("expected the change to be applied at the limit, got %+v", applied)
	}
}

func TestEnforceQueuesPromptChangesForApproval(t *testing.T) {
	p := SecurityPolicy{RequireApprovalPrompts: true}
	changes := []PathChange{{Path: "agents.support.prompt.system", Value: "be nice"}}

	applied, pending, err := Enforce(p, changes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(applied) != 0 || len(pending) != 1 {
		t.Fatalf("expected the change pending, got applied=%+v pending=%+v", applied, pending)
	}
}

func TestEnforceQueuesToolChangesForApproval(t *testing.T) {
	p := SecurityPolicy{RequireApprovalTools: true}
	changes := []PathChange{{Path: "agents.support.tools.search.enabled", Value: true}}

	applied, pending, err := Enforce(p, changes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(applied) != 0 || len(pending) != 1 {
		t.Fatalf("expected the change pending, got applied=%+v pending=%+v", applied, pending)
	}
}

func TestEnforceWithoutApprovalFlagsAppliesPromptChanges(t *testing.T) {
	p := SecurityPolicy{}
	changes := []PathChange{{Path: "agents.support.prompt.system", Value: "be nice"}}

	applied, pending, err := Enforce(p, changes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(applied) != 1 || len(pending) != 0 {
		t.Fatalf("expected the change applied when approval is not required, got applied=%+v pending=%+v", applied, pending)
	}
}

func TestApplyChangesRoundTripsThroughDeepMerge(t *testing.T) {
	changes := []PathChange{
		{Path: "agents.support.model", Value: "gpt-5"},
		{Path: "agents.support.enabled", IsDelete: true},
	}

	patch := ApplyChanges(changes)
	merged := scope.DeepMerge(map[string]any{
		"agents": map[string]any{
			"support": map[string]any{"enabled": true, "model": "gpt-4"},
		},
	}, patch)

	support := merged["agents"].(map[string]any)["support"].(map[string]any)
	if support["model"] != "gpt-5" {
		t.Errorf("model = %v, want gpt-5", support["model"])
	}
	if _, exists := support["enabled"]; exists {
		t.Errorf("expected enabled to be deleted, got %v", support["enabled"])
	}
}
