package httpx

import (
	"net/url"
	"sort"
	"strings"

	"github.com/target/mmk-gatekeeper/internal/ports"
)

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" || strings.HasPrefix(candidate, "//") || strings.HasPrefix(candidate, "/\\") {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	return candidate
}

// RouteOverrides maps a path prefix to the strategies tried for requests under it.
type RouteOverrides map[string][]ports.StrategyDefinition

// For returns the override registered for the longest prefix of path. A prefix only
// matches on a segment boundary, so "/api" covers "/api" and "/api/x" but not "/apiary".
func (o RouteOverrides) For(path string) ([]ports.StrategyDefinition, bool) {
	if len(o) == 0 {
		return nil, false
	}
	prefixes := make([]string, 0, len(o))
	for p := range o {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	for _, p := range prefixes {
		if matchesPrefix(path, p) {
			return o[p], true
		}
	}
	return nil, false
}

func matchesPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || strings.HasSuffix(prefix, "/") || path[len(prefix)] == '/'
}
