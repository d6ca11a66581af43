package scope

// deleteMarker is the internal representation of an explicit null at a
// leaf: "delete this key from the merged view". NormalizeNulls turns a
// JSON-decoded literal null into this marker so DeepMerge can distinguish
// "absent" from "present but null".
type deleteMarker struct{}

// Delete is the sentinel DeepMerge treats as "remove this key". Callers
// that decode a config patch from JSON should translate a literal JSON
// null into scope.Delete before merging.
var Delete = deleteMarker{}

// DeepMerge merges override on top of base following the component's merge
// rules: objects merge key-wise recursively, arrays are fully replaced by
// the override, scalars are replaced by the override, and an override value
// of scope.Delete removes the key from the result.
//
// DeepMerge does not mutate base or override; it returns a new map.
func DeepMerge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}

	for k, v := range override {
		if _, isDelete := v.(deleteMarker); isDelete {
			delete(out, k)
			continue
		}

		overrideObj, overrideIsObj := v.(map[string]any)
		baseObj, baseIsObj := out[k].(map[string]any)
		if overrideIsObj && baseIsObj {
			out[k] = DeepMerge(baseObj, overrideObj)
			continue
		}

		out[k] = v
	}

	return out
}

// MergeLineage folds a root-to-leaf ordered list of local configs into a
// single effective configuration. configs[0] is expected to be the root's
// local overrides, configs[len-1] the target node's own.
func MergeLineage(configs []map[string]any) map[string]any {
	effective := map[string]any{}
	for _, c := range configs {
		effective = DeepMerge(effective, c)
	}
	return effective
}

// NormalizeNulls walks a freshly JSON-decoded patch (where json.Unmarshal
// into map[string]any represents a literal null as untyped nil) and
// replaces every nil with scope.Delete so DeepMerge treats it as a
// null-delete rather than "set this key to nil".
func NormalizeNulls(patch map[string]any) map[string]any {
	out := make(map[string]any, len(patch))
	for k, v := range patch {
		switch val := v.(type) {
		case nil:
			out[k] = Delete
		case map[string]any:
			out[k] = NormalizeNulls(val)
		default:
			out[k] = v
		}
	}
	return out
}
