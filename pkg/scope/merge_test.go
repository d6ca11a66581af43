package scope

import (
	"reflect"
	"testing"
)

func TestDeepMergeObjectsRecurse(t *testing.T) {
	base := map[string]any{
		"model": map[string]any{"name": "gpt-3", "temperature": 0.5},
		"region": "us-east",
	}
	override := map[string]any{
		"model": map[string]any{"name": "gpt-9"},
	}

	got := DeepMerge(base, override)
	want := map[string]any{
		"model":  map[string]any{"name": "gpt-9", "temperature": 0.5},
		"region": "us-east",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestDeepMergeArraysFullyReplace(t *testing.T) {
	base := map[string]any{"tags": []any{"a", "b", "c"}}
	override := map[string]any{"tags": []any{"x"}}

	got := DeepMerge(base, override)
	want := map[string]any{"tags": []any{"x"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestDeepMergeNullDeletesKey(t *testing.T) {
	base := map[string]any{"model": map[string]any{"name": "gpt-9", "beta": true}}
	override := map[string]any{"model": map[string]any{"beta": Delete}}

	got := DeepMerge(base, override)
	want := map[string]any{"model": map[string]any{"name": "gpt-9"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestDeepMergeTopLevelNullDeletesKey(t *testing.T) {
	base := map[string]any{"feature_flag": true, "region": "us-east"}
	override := map[string]any{"feature_flag": Delete}

	got := DeepMerge(base, override)
	want := map[string]any{"region": "us-east"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestDeepMergeIsIdempotentUnderNoOp(t *testing.T) {
	base := map[string]any{"model": map[string]any{"name": "gpt-9"}, "tags": []any{"a"}}

	once := DeepMerge(base, map[string]any{})
	twice := DeepMerge(once, map[string]any{})

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("merging a no-op patch twice diverged: %#v vs %#v", once, twice)
	}
	if !reflect.DeepEqual(once, base) {
		t.Errorf("merging an empty override changed the base: %#v vs %#v", once, base)
	}
}

func TestMergeLineageIsLeftAssociativeInDepth(t *testing.T) {
	root := map[string]any{"model": map[string]any{"name": "gpt-3"}, "region": "us-east"}
	unit := map[string]any{"model": map[string]any{"name": "gpt-4"}}
	team := map[string]any{"model": map[string]any{"temperature": 0.9}}

	direct := DeepMerge(DeepMerge(root, unit), team)
	viaLineage := MergeLineage([]map[string]any{root, unit, team})

	if !reflect.DeepEqual(direct, viaLineage) {
		t.Errorf("MergeLineage diverged from sequential DeepMerge: %#v vs %#v", viaLineage, direct)
	}

	want := map[string]any{
		"model":  map[string]any{"name": "gpt-4", "temperature": 0.9},
		"region": "us-east",
	}
	if !reflect.DeepEqual(viaLineage, want) {
		t.Errorf("got %#v, want %#v", viaLineage, want)
	}
}

func TestDeleteAtDepthOverriddenByDescendantReintroduction(t *testing.T) {
	root := map[string]any{"model": map[string]any{"name": "gpt-3"}}
	unit := map[string]any{"model": map[string]any{"name": Delete}}
	team := map[string]any{"model": map[string]any{"name": "gpt-9-team-override"}}

	got := MergeLineage([]map[string]any{root, unit, team})
	want := map[string]any{"model": map[string]any{"name": "gpt-9-team-override"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestNormalizeNullsConvertsJSONNullToDelete(t *testing.T) {
	patch := map[string]any{
		"model": map[string]any{"name": nil},
		"flag":  nil,
		"kept":  "value",
	}

	got := NormalizeNulls(patch)
	modelMap, ok := got["model"].(map[string]any)
	if !ok {
		t.Fatalf("expected model to remain a map, got %#v", got["model"])
	}
	if _, isDelete := modelMap["name"].(deleteMarker); !isDelete {
		t.Errorf("expected model.name to become a delete marker, got %#v", modelMap["name"])
	}
	if _, isDelete := got["flag"].(deleteMarker); !isDelete {
		t.Errorf("expected flag to become a delete marker, got %#v", got["flag"])
	}
	if got["kept"] != "value" {
		t.Errorf("expected kept to survive unchanged, got %#v", got["kept"])
	}
}

func TestDeepMergeDoesNotMutateInputs(t *testing.T) {
	base := map[string]any{"a": 1}
	override := map[string]any{"b": 2}

	_ = DeepMerge(base, override)

	if len(base) != 1 || len(override) != 1 {
		t.Error("DeepMerge mutated one of its inputs")
	}
}
