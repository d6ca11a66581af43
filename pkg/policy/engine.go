package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wisbric/confcore/internal/apperr"
	"github.com/wisbric/confcore/pkg/scope"
)

// Diff walks a proposed patch (already null-normalized via
// scope.NormalizeNulls) and returns the flat list of dotted-path leaf
// changes it represents, with paths starting at the patch root.
func Diff(patch map[string]any) []PathChange {
	return diffAt("", patch)
}

func diffAt(prefix string, patch map[string]any) []PathChange {
	var out []PathChange
	for k, v := range patch {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}

		if v == scope.Delete {
			out = append(out, PathChange{Path: path, IsDelete: true})
			continue
		}

		if nested, ok := v.(map[string]any); ok {
			out = append(out, diffAt(path, nested)...)
			continue
		}

		change := PathChange{Path: path, Value: v}
		if n, ok := v.(float64); ok {
			change.IsNumeric = true
			change.Numeric = n
		}
		out = append(out, change)
	}
	return out
}

var (
	promptPathPattern = regexp.MustCompile(`^agents\.[^.]+\.prompt(\.|$)`)
	toolsPathPattern  = regexp.MustCompile(`^agents\.[^.]+\.tools(\.|$)`)
)

// Enforce checks a set of proposed path changes against an org's security
// policy. It returns (applied, pending, err): applied changes should be
// written immediately; pending changes were gated behind approval and
// neither are written until a separate approval flow resolves them. A
// single violation of a locked path or max-value clamp fails the whole
// request with PolicyViolation, carrying the offending path.
func Enforce(p SecurityPolicy, changes []PathChange) (applied, pending []PathChange, err error) {
	for _, c := range changes {
		if violatesLockedPath(p.LockedPaths, c.Path) {
			return nil, nil, apperr.Newf(apperr.PolicyViolation, "path %q is locked", c.Path).WithPath(c.Path)
		}

		if max, ok := maxValueFor(p.MaxValues, c.Path); ok {
			if !c.IsNumeric {
				return nil, nil, apperr.Newf(apperr.PolicyViolation, "path %q has a numeric limit but the proposed value is not numeric", c.Path).WithPath(c.Path)
			}
			if c.Numeric > max {
				return nil, nil, apperr.Newf(apperr.PolicyViolation, "path %q exceeds maximum value %v", c.Path, max).WithPath(c.Path)
			}
		}

		switch {
		case p.RequireApprovalPrompts && promptPathPattern.MatchString(c.Path):
			pending = append(pending, c)
		case p.RequireApprovalTools && toolsPathPattern.MatchString(c.Path):
			pending = append(pending, c)
		default:
			applied = append(applied, c)
		}
	}
	return applied, pending, nil
}

// violatesLockedPath reports whether path is locked or falls under a locked
// dotted-prefix: locking "a.b" locks "a.b" itself and every "a.b.*".
func violatesLockedPath(locked []string, path string) bool {
	for _, l := range locked {
		if path == l || strings.HasPrefix(path, l+".") {
			return true
		}
	}
	return false
}

// maxValueFor looks up an exact-path numeric clamp. The spec defines
// max_values as a map keyed by exact dotted path, not a prefix match.
func maxValueFor(maxValues map[string]float64, path string) (float64, bool) {
	v, ok := maxValues[path]
	return v, ok
}

// ApplyChanges folds a set of approved path changes into a config object,
// producing the patch DeepMerge expects (nested maps, scope.Delete for
// deletions).
func ApplyChanges(changes []PathChange) map[string]any {
	patch := map[string]any{}
	for _, c := range changes {
		setDotted(patch, strings.Split(c.Path, "."), c)
	}
	return patch
}

func setDotted(m map[string]any, parts []string, c PathChange) {
	if len(parts) == 1 {
		if c.IsDelete {
			m[parts[0]] = scope.Delete
			return
		}
		m[parts[0]] = c.Value
		return
	}

	next, ok := m[parts[0]].(map[string]any)
	if !ok {
		next = map[string]any{}
		m[parts[0]] = next
	}
	setDotted(next, parts[1:], c)
}

func (pc PathChange) String() string {
	if pc.IsDelete {
		return fmt.Sprintf("delete %s", pc.Path)
	}
	return fmt.Sprintf("set %s = %v", pc.Path, pc.Value)
}
