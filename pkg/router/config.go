// Package router dispatches requests to handlers registered on declarative
// route templates. It is usually the terminal of a pipeline.
//
// Routes are tried in registration order and the first template that matches
// the whole path wins. Matched values are available to handlers through
// RouteValues, Param and GetParams.
package router

import (
	"net/http"
	"time"

	"github.com/Suhaibinator/SPipeline/pkg/common"
	"github.com/Suhaibinator/SPipeline/pkg/metrics"
	"github.com/Suhaibinator/SPipeline/pkg/middleware"
	"github.com/Suhaibinator/SPipeline/pkg/route"
	"go.uber.org/zap"
)

// RouterConfig defines the global configuration for the router.
type RouterConfig struct {
	Logger            *zap.Logger                  // Logger for all router operations
	GlobalTimeout     time.Duration                // Default response timeout for all routes
	GlobalMaxBodySize int64                        // Default maximum request body size in bytes
	GlobalRateLimit   *middleware.RateLimitConfig  // Default rate limit for all routes
	RateLimiter       middleware.RateLimiter       // Limiter backing every rate limit; default in-memory windows
	IPConfig          *middleware.IPConfig         // Configuration for client IP extraction
	EnableMetrics     bool                         // Collect Prometheus metrics labelled by route template
	MetricsConfig     *metrics.Config              // Metrics configuration used when EnableMetrics is set
	EnableTracing     bool                         // Assign every request a trace ID
	EnableTraceID     bool                         // Include trace IDs in router log entries
	SubRouters        []SubRouterConfig            // Sub-routers with their own configurations
	Middlewares       []common.Middleware          // Global middlewares applied to all routes
	Constraints       *route.Registry              // Constraint registry; nil means built-ins only
	NotFoundHandler   http.Handler                 // Fallback for unmatched requests; default 404
	// HandleMethodNotAllowed answers 405 with an Allow header when the path
	// matches a route registered for other methods. Otherwise such requests
	// reach the fallback.
	HandleMethodNotAllowed bool
}

// SubRouterConfig groups routes under a common path prefix with shared settings.
type SubRouterConfig struct {
	PathPrefix          string                      // Prefix joined to every route template
	TimeoutOverride     time.Duration               // Override global timeout for routes in this sub-router
	MaxBodySizeOverride int64                       // Override global max body size for routes in this sub-router
	RateLimitOverride   *middleware.RateLimitConfig // Override global rate limit for routes in this sub-router
	Routes              []RouteConfigBase           // Routes in this sub-router
	Middlewares         []common.Middleware         // Middlewares applied to all routes in this sub-router
}

// RouteConfigBase defines a route with a plain handler.
type RouteConfigBase struct {
	Name        string                      // Optional name for URL generation
	Path        string                      // Route template, e.g. "products/{id:int}"
	Methods     []string                    // HTTP methods; empty matches any method
	Timeout     time.Duration               // Override timeout for this route
	MaxBodySize int64                       // Override max body size for this route
	RateLimit   *middleware.RateLimitConfig // Rate limit for this route
	Handler     http.Handler                // Handler for matched requests
	Middlewares []common.Middleware         // Middlewares applied to this route
}

// RouteConfig defines a route whose handler works on decoded request values.
type RouteConfig[T any, U any] struct {
	Name        string
	Path        string
	Methods     []string
	Timeout     time.Duration
	MaxBodySize int64
	RateLimit   *middleware.RateLimitConfig
	Codec       Codec[T, U]          // Codec for the request and response bodies
	Handler     GenericHandler[T, U] // Typed handler
	Middlewares []common.Middleware
}

// Middleware is an alias for common.Middleware.
type Middleware = common.Middleware

// GenericHandler handles a decoded request value and returns the value to encode.
// Returning an *HTTPError controls the status code of the error response.
type GenericHandler[T any, U any] func(r *http.Request, data T) (U, error)

// Codec decodes request bodies into T and encodes U into responses.
// Implementations live in the codec package.
type Codec[T any, U any] interface {
	Decode(r *http.Request) (T, error)
	Encode(w http.ResponseWriter, resp U) error
}
