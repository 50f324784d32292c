// Package idmatch compares identifiers that reach us in inconsistent shapes:
// hand-typed text, copy-pasted ids, linked-record arrays.
//
// Matching is deliberately permissive. After normalization two values match
// when they are equal or one contains the other. Empty values never match.
package idmatch

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Normalize trims, case-folds and unwraps single-element list encodings.
// It accepts strings, string slices, []any (as produced by JSON decoding),
// JSON-encoded list strings such as `["CL001"]`, and scalars.
// Multi-element lists are joined with "," so they can still be searched.
func Normalize(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return normalizeString(v)
	case []string:
		return normalizeList(len(v), func(i int) any { return v[i] })
	case []any:
		return normalizeList(len(v), func(i int) any { return v[i] })
	case fmt.Stringer:
		return normalizeString(v.String())
	default:
		return normalizeString(fmt.Sprint(v))
	}
}

func normalizeString(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		var decoded []any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			return normalizeList(len(decoded), func(i int) any { return decoded[i] })
		}
		s = strings.TrimSpace(strings.Trim(s, "[]"))
		s = strings.Trim(s, `"'`)
	}
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeList(n int, at func(int) any) string {
	switch n {
	case 0:
		return ""
	case 1:
		return Normalize(at(0))
	}
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if part := Normalize(at(i)); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ",")
}

// Match reports whether a and b identify the same entity. It is symmetric,
// total and side-effect free.
func Match(a, b any) bool {
	na := Normalize(a)
	nb := Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

// MatchAny reports whether value matches any candidate.
func MatchAny(value any, candidates ...any) bool {
	for _, candidate := range candidates {
		if Match(value, candidate) {
			return true
		}
	}
	return false
}

// Equal is the strict form: normalized equality only. Used where a
// substring hit would grant authority, such as authorship checks.
func Equal(a, b any) bool {
	na := Normalize(a)
	return na != "" && na == Normalize(b)
}
