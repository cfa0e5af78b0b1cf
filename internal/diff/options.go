package diff

import (
	"math"
	"path"
	"regexp"
	"strings"
)

// Options is the immutable configuration for one comparison run.
// The zero value means exact numeric equality, positional array
// comparison, no key pruning, and no path filtering.
type Options struct {
	// Epsilon is the maximum allowed absolute difference for two numbers
	// (or two tensor statistics) to be considered equal. Nil means exact
	// equality.
	Epsilon *float64

	// ArrayIDKey aligns array elements by the value of this object field
	// instead of by position.
	ArrayIDKey string

	// IgnoreKeysRegex skips object keys matching the pattern entirely,
	// on both sides. The compiled pattern is owned by the options so no
	// process-wide regex cache is involved.
	IgnoreKeysRegex *regexp.Regexp

	// PathFilter restricts emitted results to paths matching a prefix or
	// glob pattern. It is applied as a post-filter and never changes
	// which comparisons happen.
	PathFilter string
}

// Epsilon is a convenience for building an epsilon pointer.
func Epsilon(e float64) *float64 { return &e }

// numbersEqual applies exact equality first, then the configured
// tolerance. Two NaNs compare equal so reflexivity holds.
func (o *Options) numbersEqual(a, b float64) bool {
	if a == b {
		return true
	}
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	if o.Epsilon != nil {
		return math.Abs(a-b) <= *o.Epsilon
	}
	return false
}

// ignoreKey reports whether an object key is pruned from comparison.
func (o *Options) ignoreKey(key string) bool {
	return o.IgnoreKeysRegex != nil && o.IgnoreKeysRegex.MatchString(key)
}

// pathMatches applies the post-filter: a glob when the filter contains
// metacharacters, a prefix match otherwise.
func (o *Options) pathMatches(p string) bool {
	if o.PathFilter == "" {
		return true
	}
	if strings.ContainsAny(o.PathFilter, "*?[") {
		ok, err := path.Match(o.PathFilter, p)
		return err == nil && ok
	}
	return strings.HasPrefix(p, o.PathFilter)
}
