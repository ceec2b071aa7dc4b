package pipeline

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/Suhaibinator/SPipeline/pkg/common"
)

// StartsWithSegments matches requests whose path starts with prefix on a
// segment boundary, ignoring case: "/special" matches "/special" and
// "/Special/x" but not "/specialty".
func StartsWithSegments(prefix string) common.Predicate {
	prefix = normalizePrefix(prefix)
	return func(r *http.Request) bool {
		return hasSegmentPrefix(r.URL.Path, prefix)
	}
}

// HasQuery matches requests carrying the query parameter key, even if empty.
func HasQuery(key string) common.Predicate {
	return func(r *http.Request) bool {
		return r.URL.Query().Has(key)
	}
}

// MethodIs matches requests using one of the given HTTP methods.
func MethodIs(methods ...string) common.Predicate {
	return func(r *http.Request) bool {
		for _, m := range methods {
			if strings.EqualFold(r.Method, m) {
				return true
			}
		}
		return false
	}
}

// And matches when every predicate matches.
func And(preds ...common.Predicate) common.Predicate {
	return func(r *http.Request) bool {
		for _, p := range preds {
			if !p(r) {
				return false
			}
		}
		return true
	}
}

// Not inverts a predicate.
func Not(pred common.Predicate) common.Predicate {
	return func(r *http.Request) bool {
		return !pred(r)
	}
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix
}

func hasSegmentPrefix(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	if len(path) < len(prefix) || !strings.EqualFold(path[:len(prefix)], prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

type pathBaseKey struct{}

// PathBase returns the prefixes removed by enclosing Map branches.
func PathBase(r *http.Request) string {
	base, _ := r.Context().Value(pathBaseKey{}).(string)
	return base
}

// stripPrefix returns a shallow copy of r with prefix removed from the path.
func stripPrefix(r *http.Request, prefix string) *http.Request {
	rest := r.URL.Path[len(prefix):]
	if rest == "" {
		rest = "/"
	}

	r2 := r.WithContext(context.WithValue(r.Context(), pathBaseKey{}, PathBase(r)+r.URL.Path[:len(prefix)]))
	u := new(url.URL)
	*u = *r.URL
	u.Path = rest
	u.RawPath = ""
	r2.URL = u
	return r2
}
