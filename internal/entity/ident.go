package entity

import "strings"

// isSafeIdentifier accepts foo, foo_1 and dotted forms like schema.table.
// Each segment starts with [A-Za-z_] and continues with [A-Za-z0-9_].
func isSafeIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return false
		}
		for i := 0; i < len(part); i++ {
			ch := part[i]
			alpha := ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_'
			if i == 0 && !alpha || i > 0 && !alpha && !(ch >= '0' && ch <= '9') {
				return false
			}
		}
	}
	return true
}

func containsDot(s string) bool { return strings.Contains(s, ".") }

// hasUpper reports upper-case letters. Generated SQL leaves names unquoted,
// so the server folds them to lower case while the catalog and result
// headers report the folded form.
func hasUpper(s string) bool { return strings.ToLower(s) != s }

// IsSafeIdentifier is exported for builders outside this package that accept
// column names from callers.
func IsSafeIdentifier(name string) bool { return isSafeIdentifier(name) }
