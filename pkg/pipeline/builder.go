// Package pipeline composes HTTP middleware into an ordered request pipeline.
//
// Middleware runs in registration order. Each unit may do work before calling
// the next one, after it returns, or both, and may short-circuit the request
// by not calling next at all:
//
//	p := pipeline.New().
//		Use(middleware.Logging(logger)).
//		UseWhen(pipeline.StartsWithSegments("/special"), func(b *pipeline.Builder) {
//			b.UseFunc(auditUnit)
//		}).
//		Map("/api", func(b *pipeline.Builder) {
//			b.Run(apiRouter)
//		}).
//		Run(fallback).
//		Build()
//
// A built Pipeline is immutable and can serve concurrent requests.
package pipeline

import (
	"net/http"

	"github.com/Suhaibinator/SPipeline/pkg/common"
	"go.uber.org/zap"
)

// Unit is a middleware that receives the next handler at invocation time.
type Unit interface {
	Invoke(w http.ResponseWriter, r *http.Request, next http.Handler)
}

// UnitFunc adapts an inline function to Unit.
type UnitFunc func(w http.ResponseWriter, r *http.Request, next http.Handler)

// Invoke implements Unit.
func (f UnitFunc) Invoke(w http.ResponseWriter, r *http.Request, next http.Handler) {
	f(w, r, next)
}

// Builder accumulates pipeline components. It is not safe for concurrent use;
// configure it at startup and call Build.
type Builder struct {
	components common.MiddlewareChain
	terminal   http.Handler
	logger     *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger used for pipeline failures.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// New creates an empty builder.
func New(opts ...Option) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	return b
}

// branch creates a nested builder that shares the parent's logger.
func (b *Builder) branch(configure func(*Builder)) *Builder {
	sub := &Builder{logger: b.logger}
	if configure != nil {
		configure(sub)
	}
	return sub
}

// Use appends a conventional middleware.
func (b *Builder) Use(mw common.Middleware) *Builder {
	if mw != nil {
		b.components = append(b.components, mw)
	}
	return b
}

// UseFunc appends an inline middleware function.
func (b *Builder) UseFunc(fn func(w http.ResponseWriter, r *http.Request, next http.Handler)) *Builder {
	if fn == nil {
		return b
	}
	return b.UseUnit(UnitFunc(fn))
}

// UseUnit appends a unit that is shared by every request.
func (b *Builder) UseUnit(u Unit) *Builder {
	if u == nil {
		return b
	}
	return b.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u.Invoke(w, r, next)
		})
	})
}

// UseFactory appends a unit that is created anew for every request, so it can
// hold per-request state without synchronization.
func (b *Builder) UseFactory(newUnit func() Unit) *Builder {
	if newUnit == nil {
		return b
	}
	return b.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			newUnit().Invoke(w, r, next)
		})
	})
}

// UseWhen adds a conditional branch. When pred holds, the branch's components
// run and then control returns to the main pipeline right after the branch.
// When it does not, the branch is skipped entirely.
//
// A unit in the branch that does not call next ends the whole request, and a
// branch that calls Run terminates there instead of rejoining.
func (b *Builder) UseWhen(pred common.Predicate, configure func(*Builder)) *Builder {
	sub := b.branch(configure)
	components := sub.components.Append()
	terminal := sub.terminal

	return b.Use(func(next http.Handler) http.Handler {
		end := next
		if terminal != nil {
			end = terminal
		}
		branch := components.Then(end)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if pred != nil && pred(r) {
				branch.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
}

// MapWhen adds a terminal branch. When pred holds the request is handed to the
// branch and never returns to the main pipeline; a branch without Run answers
// 404.
func (b *Builder) MapWhen(pred common.Predicate, configure func(*Builder)) *Builder {
	branch := b.branch(configure).handler()

	return b.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if pred != nil && pred(r) {
				branch.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
}

// Map is MapWhen on a path prefix matched on segment boundaries. Inside the
// branch the prefix is removed from the request path and recorded as the
// path base (see PathBase).
func (b *Builder) Map(prefix string, configure func(*Builder)) *Builder {
	prefix = normalizePrefix(prefix)
	branch := b.branch(configure).handler()
	match := StartsWithSegments(prefix)

	return b.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !match(r) {
				next.ServeHTTP(w, r)
				return
			}
			branch.ServeHTTP(w, stripPrefix(r, prefix))
		})
	})
}

// Run sets the terminal handler reached when every component has called next.
// Calling Run again replaces the previous terminal.
func (b *Builder) Run(terminal http.Handler) *Builder {
	b.terminal = terminal
	return b
}

// RunFunc is Run for a plain handler function.
func (b *Builder) RunFunc(fn http.HandlerFunc) *Builder {
	return b.Run(fn)
}

// Build composes the configured components into a Pipeline. The result is a
// snapshot: changes made to the builder afterwards do not affect it.
func (b *Builder) Build() *Pipeline {
	return &Pipeline{handler: b.handler(), logger: b.logger}
}

func (b *Builder) handler() http.Handler {
	terminal := b.terminal
	if terminal == nil {
		terminal = http.HandlerFunc(http.NotFound)
	}
	return b.components.Then(terminal)
}
