package gateway

import (
	"net/http"
	"strings"

	"fintech-id/internal/platform/config"
	"fintech-id/internal/platform/middleware"
	platformstrings "fintech-id/pkg/platform/strings"
)

// PublicPaths decides which request paths skip edge authentication.
type PublicPaths struct {
	prefixes []string
	exact    map[string]struct{}
}

// NewPublicPaths builds a matcher from the configured allow-list.
// Blank entries are ignored.
func NewPublicPaths(spec config.PublicPathsSpec) *PublicPaths {
	p := &PublicPaths{
		prefixes: platformstrings.DedupeAndTrim(spec.Prefixes),
		exact:    make(map[string]struct{}, len(spec.Exact)),
	}
	for _, path := range platformstrings.DedupeAndTrim(spec.Exact) {
		p.exact[path] = struct{}{}
	}
	return p
}

// IsPublic reports whether path is exempt from authentication. A path with
// dot segments is never public.
func (p *PublicPaths) IsPublic(path string) bool {
	if hasDotSegment(path) {
		return false
	}
	if _, ok := p.exact[path]; ok {
		return true
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// hasDotSegment reports whether p contains a "." or ".." segment.
func hasDotSegment(p string) bool {
	for seg := range strings.SplitSeq(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// RejectDotSegments answers 400 for paths with dot segments, so the edge
// never classifies a path differently from the upstream that resolves it.
func RejectDotSegments(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hasDotSegment(r.URL.Path) {
			middleware.WriteErrorMessage(w, http.StatusBadRequest, "malformed request path")
			return
		}
		next.ServeHTTP(w, r)
	})
}
