package memory

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

func text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func fold(s string) string {
	return cases.Fold().String(s)
}

// containsFold is a Unicode case-insensitive substring match.
func containsFold(s, substr string) bool {
	return strings.Contains(fold(s), fold(substr))
}

// like matches SQL LIKE patterns case-insensitively: % is any run, _ is one
// character and a backslash escapes the next character.
func like(s, pattern string) bool {
	var b strings.Builder
	b.WriteString("^")
	runes := []rune(fold(pattern))
	for i := 0; i < len(runes); i++ {
		switch r := runes[i]; r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		case '\\':
			if i+1 < len(runes) {
				i++
				b.WriteString(regexp.QuoteMeta(string(runes[i])))
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile("(?s)" + b.String())
	if err != nil {
		return false
	}
	return re.MatchString(fold(s))
}

// compare orders two column values: nil first, numbers by value, times
// chronologically, everything else by folded text.
func compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		}
		return 1
	}
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	return strings.Compare(fold(text(a)), fold(text(b)))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
