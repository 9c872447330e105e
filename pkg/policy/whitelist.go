package policy

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// Whitelist is a set of host patterns. Each pattern is dot separated; a "*"
// segment matches exactly one host label and every other segment matches
// itself. Matching is anchored and case-insensitive.
type Whitelist struct {
	patterns []string
	globs    []glob.Glob
}

// NewWhitelist compiles patterns. Blank patterns are ignored.
func NewWhitelist(patterns []string) (*Whitelist, error) {
	w := &Whitelist{}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		g, err := CompilePattern(p)
		if err != nil {
			return nil, fmt.Errorf("invalid whitelist pattern '%s': %w", p, err)
		}
		w.patterns = append(w.patterns, p)
		w.globs = append(w.globs, g)
	}
	return w, nil
}

// CompilePattern compiles one host pattern. Only whole "*" segments are
// wildcards; glob metacharacters anywhere else are matched literally.
func CompilePattern(pattern string) (glob.Glob, error) {
	segments := strings.Split(strings.ToLower(pattern), ".")
	for i, s := range segments {
		if s == "*" {
			segments[i] = "?*"
			continue
		}
		if s == "" {
			return nil, fmt.Errorf("empty segment")
		}
		segments[i] = glob.QuoteMeta(s)
	}
	return glob.Compile(strings.Join(segments, "."), '.')
}

// Patterns returns the compiled patterns, lower-cased.
func (w *Whitelist) Patterns() []string {
	if w == nil {
		return nil
	}
	return append([]string(nil), w.patterns...)
}

// Allows reports whether site matches any pattern. site is a host name or
// a URL.
func (w *Whitelist) Allows(site string) bool {
	if w == nil {
		return false
	}
	host := Host(site)
	if host == "" {
		return false
	}
	for _, g := range w.globs {
		if g.Match(host) {
			return true
		}
	}
	return false
}

// Host returns the lower-cased host of site, which may be a bare host or a
// URL.
func Host(site string) string {
	site = strings.TrimSpace(site)
	if strings.Contains(site, "://") {
		u, err := url.Parse(site)
		if err != nil {
			return ""
		}
		site = u.Hostname()
	}
	return strings.TrimSuffix(strings.ToLower(site), ".")
}
