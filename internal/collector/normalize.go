package collector

import "strings"

// tmePrefixes are checked case-insensitively against the identifier.
var tmePrefixes = []string{"https://t.me/", "http://t.me/", "t.me/"}

// Normalize canonicalizes a channel identifier so "@Foo", "https://t.me/Foo"
// and "t.me/Foo/123?x=1" all map to the same cache key "foo".
func Normalize(identifier string) string {
	s := strings.TrimSpace(identifier)

	lower := strings.ToLower(s)
	for _, p := range tmePrefixes {
		if strings.HasPrefix(lower, p) {
			s = s[len(p):]
			break
		}
	}
	s = strings.TrimPrefix(s, "@")

	// Drop any trailing path, query or fragment.
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}
