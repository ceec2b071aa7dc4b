// Package common provides shared types used across the SPipeline packages.
package common

import (
	"net/http"
)

// Middleware wraps an http.Handler with pre- and post-processing.
// Code placed before next.ServeHTTP runs on the way in, code after it runs
// while the chain unwinds. Not calling next short-circuits the request.
type Middleware func(http.Handler) http.Handler

// Predicate decides, once per request, whether a conditional branch applies.
type Predicate func(*http.Request) bool
