package store

import (
	"regexp"
	"strings"
)

// LikePattern converts a `*` glob into a lower-cased SQL LIKE pattern with `\` as
// the escape character.
func LikePattern(glob string) string {
	glob = strings.ToLower(strings.TrimSpace(glob))
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteByte('%')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MatchGlob reports whether name matches the `*` glob the same way LikePattern
// does in SQL.
func MatchGlob(glob, name string) bool {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(glob)), "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	re, err := regexp.Compile("^" + strings.Join(parts, ".*") + "$")
	if err != nil {
		return false
	}
	return re.MatchString(strings.ToLower(name))
}
