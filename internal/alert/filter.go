// filter.go implements the pattern-matching rule of §4.8: a leading
// "^" means the rest of the pattern is a regular expression; anything
// else is a glob ("*" -> ".*") anchored to the full string; matching
// is case-insensitive; an empty or nil pattern matches everything.
// This generalizes the teacher's path.Match-based
// engine.MatchesFilter, which only supported glob.
package alert

import (
	"regexp"
	"strings"
	"sync"
)

var filterCache sync.Map // pattern string -> *regexp.Regexp

// MatchesFilter reports whether name matches pattern under §4.8's rule.
func MatchesFilter(name, pattern string) bool {
	if pattern == "" {
		return true
	}
	re, err := compileFilter(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(name)
}

func compileFilter(pattern string) (*regexp.Regexp, error) {
	if cached, ok := filterCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}

	var expr string
	if strings.HasPrefix(pattern, "^") {
		expr = pattern
	} else {
		expr = "^" + globToRegex(pattern) + "$"
	}

	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, err
	}
	filterCache.Store(pattern, re)
	return re, nil
}

func globToRegex(glob string) string {
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '.', '+', '(', ')', '|', '[', ']', '{', '}', '^', '$', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
