package yamlex

import (
	"strconv"
	"strings"
)

// ToInt coerces a parsed YAML value to an int, accepting numeric types and
// numeric strings. Strings like "3 - some reasoning" yield their leading
// number.
func ToInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		return parseLeadingInt(n)
	}
	return 0, false
}

// ToUint is ToInt restricted to non-negative values.
func ToUint(v any) (uint, bool) {
	n, ok := ToInt(v)
	if !ok || n < 0 {
		return 0, false
	}
	return uint(n), true
}

// ToString coerces a parsed YAML value to a trimmed string.
func ToString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func parseLeadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || (end == 0 && s[end] == '-')) {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
