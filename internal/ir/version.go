package ir

import (
	"strings"
)

// SchemaVersion is the version of the persisted scenario and rebuild-state
// documents.
const SchemaVersion = "1"

// CompareVersions orders two dotted module versions ("5.4.1.2").
// Numeric segments compare numerically, anything else lexically, and
// missing trailing segments count as zero, so "5.4" == "5.4.0.0".
func CompareVersions(a, b string) int {
	as := splitVersion(a)
	bs := splitVersion(b)
	n := max(len(as), len(bs))
	for i := 0; i < n; i++ {
		x, y := "0", "0"
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		if c := compareSegment(x, y); c != 0 {
			return c
		}
	}
	return 0
}

// ValidVersion reports whether v is a non-empty dotted version made of
// alphanumeric segments.
func ValidVersion(v string) bool {
	if v == "" {
		return false
	}
	for _, seg := range splitVersion(v) {
		if seg == "" {
			return false
		}
		for _, r := range seg {
			if !isDigit(r) && !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') {
				return false
			}
		}
	}
	return true
}

func splitVersion(v string) []string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(v, "-", "."), ".")
}

func compareSegment(a, b string) int {
	if isNumeric(a) && isNumeric(b) {
		a = strings.TrimLeft(a, "0")
		b = strings.TrimLeft(b, "0")
		if len(a) != len(b) {
			if len(a) < len(b) {
				return -1
			}
			return 1
		}
	}
	return strings.Compare(a, b)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isDigit(r) {
			return false
		}
	}
	return true
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
