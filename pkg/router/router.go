package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Suhaibinator/SPipeline/pkg/codec"
	"github.com/Suhaibinator/SPipeline/pkg/common"
	"github.com/Suhaibinator/SPipeline/pkg/metrics"
	"github.com/Suhaibinator/SPipeline/pkg/middleware"
	"github.com/Suhaibinator/SPipeline/pkg/route"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Router matches requests against an ordered route table and dispatches them
// to the first matching route's handler chain.
//
// Routes are registered at startup. Registration is not synchronized with
// ServeHTTP, so every route must be added before the router starts serving.
type Router struct {
	config      RouterConfig
	logger      *zap.Logger
	table       *route.Table[*endpoint]
	names       map[string]*endpoint
	middlewares []common.Middleware
	rateLimiter middleware.RateLimiter
	metrics     *metrics.Collector
	fallback    http.Handler
	wg          sync.WaitGroup
	shutdown    bool
	shutdownMu  sync.RWMutex
}

// endpoint is the payload stored for each route in the table.
type endpoint struct {
	name     string
	methods  []string
	handler  http.Handler
	template *route.Template
}

// allows reports whether the endpoint serves method. GET routes also answer HEAD.
func (e *endpoint) allows(method string) bool {
	if len(e.methods) == 0 {
		return true
	}
	for _, m := range e.methods {
		if m == method || (method == http.MethodHead && m == http.MethodGet) {
			return true
		}
	}
	return false
}

// NewRouter creates a router and registers the routes of config.SubRouters.
// A sub-router route with an invalid template fails the whole construction.
func NewRouter(config RouterConfig) (*Router, error) {
	logger := config.Logger
	if logger == nil {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			logger = zap.NewNop()
		}
	}

	limiter := config.RateLimiter
	if limiter == nil {
		limiter = middleware.NewWindowLimiter()
	}

	ipConfig := config.IPConfig
	if ipConfig == nil {
		ipConfig = middleware.DefaultIPConfig()
	}

	r := &Router{
		config:      config,
		logger:      logger,
		table:       route.NewTable[*endpoint](config.Constraints),
		names:       make(map[string]*endpoint),
		rateLimiter: limiter,
	}

	// Trace IDs and client IPs are resolved before any user middleware runs.
	var builtin []common.Middleware
	if config.EnableTracing {
		builtin = append(builtin, middleware.TraceMiddleware())
	}
	builtin = append(builtin, middleware.ClientIPMiddleware(ipConfig))
	r.middlewares = append(builtin, config.Middlewares...)

	if config.EnableMetrics {
		mc := metrics.Config{EnableLatency: true, EnableThroughput: true, EnableQPS: true, EnableErrors: true}
		if config.MetricsConfig != nil {
			mc = *config.MetricsConfig
		}
		collector, err := metrics.NewCollector(mc)
		if err != nil {
			return nil, fmt.Errorf("router: create metrics collector: %w", err)
		}
		r.metrics = collector
	}

	r.MapFallback(config.NotFoundHandler)

	for _, sr := range config.SubRouters {
		if err := r.registerSubRouter(sr); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// registerSubRouter registers all routes in a sub-router under its prefix.
func (r *Router) registerSubRouter(sr SubRouterConfig) error {
	for _, rt := range sr.Routes {
		settings := routeSettings{
			timeout:     r.getEffectiveTimeout(rt.Timeout, sr.TimeoutOverride),
			maxBodySize: r.getEffectiveMaxBodySize(rt.MaxBodySize, sr.MaxBodySizeOverride),
			rateLimit:   r.getEffectiveRateLimit(rt.RateLimit, sr.RateLimitOverride),
			middlewares: append(append([]common.Middleware{}, sr.Middlewares...), rt.Middlewares...),
		}
		rt.Path = joinPath(sr.PathPrefix, rt.Path)
		if err := r.register(rt, settings); err != nil {
			return err
		}
	}
	return nil
}

// RegisterRoute adds a route to the end of the route table.
// For routes with typed request and response values use RegisterGenericRoute.
func (r *Router) RegisterRoute(rt RouteConfigBase) error {
	return r.register(rt, routeSettings{
		timeout:     r.getEffectiveTimeout(rt.Timeout, 0),
		maxBodySize: r.getEffectiveMaxBodySize(rt.MaxBodySize, 0),
		rateLimit:   r.getEffectiveRateLimit(rt.RateLimit, nil),
		middlewares: rt.Middlewares,
	})
}

// Map registers handler on template for the given methods (any method when none are given).
func (r *Router) Map(template string, handler http.Handler, methods ...string) error {
	return r.RegisterRoute(RouteConfigBase{Path: template, Methods: methods, Handler: handler})
}

// MapGet registers a GET route.
func (r *Router) MapGet(template string, handler http.HandlerFunc) error {
	return r.Map(template, handler, http.MethodGet)
}

// MapPost registers a POST route.
func (r *Router) MapPost(template string, handler http.HandlerFunc) error {
	return r.Map(template, handler, http.MethodPost)
}

// MapFallback sets the handler for requests no route matches. A nil handler
// restores the default 404 response. The fallback runs behind the same global
// middleware as routes.
func (r *Router) MapFallback(handler http.Handler) {
	if handler == nil {
		handler = http.HandlerFunc(http.NotFound)
	}
	r.fallback = r.wrapHandler(handler, routeSettings{}, "")
}

// RegisterGenericRoute registers a route whose handler receives the decoded
// request body and returns a value for the codec to encode.
// This is a standalone function because Go methods cannot have type parameters.
//
// Requests with methods that normally carry no body (GET, HEAD, DELETE,
// OPTIONS) may omit it; the handler then receives the zero value.
func RegisterGenericRoute[Req any, Resp any](r *Router, rt RouteConfig[Req, Resp]) error {
	if rt.Codec == nil || rt.Handler == nil {
		return fmt.Errorf("%w: %s", ErrNilHandler, rt.Path)
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		data, err := rt.Codec.Decode(req)
		if err != nil && !(errors.Is(err, codec.ErrEmptyBody) && bodyless(req.Method)) {
			r.handleError(w, req, err, http.StatusBadRequest, "Failed to decode request")
			return
		}

		resp, err := rt.Handler(req, data)
		if err != nil {
			r.handleError(w, req, err, http.StatusInternalServerError, "Handler error")
			return
		}

		if err := rt.Codec.Encode(w, resp); err != nil {
			r.handleError(w, req, err, http.StatusInternalServerError, "Failed to encode response")
		}
	})

	return r.RegisterRoute(RouteConfigBase{
		Name:        rt.Name,
		Path:        rt.Path,
		Methods:     rt.Methods,
		Timeout:     rt.Timeout,
		MaxBodySize: rt.MaxBodySize,
		RateLimit:   rt.RateLimit,
		Handler:     handler,
		Middlewares: rt.Middlewares,
	})
}

func bodyless(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}

// routeSettings are the effective per-route limits after overrides.
type routeSettings struct {
	timeout     time.Duration
	maxBodySize int64
	rateLimit   *middleware.RateLimitConfig
	middlewares []common.Middleware
}

func (r *Router) register(rt RouteConfigBase, settings routeSettings) error {
	if rt.Handler == nil {
		return fmt.Errorf("%w: %s", ErrNilHandler, rt.Path)
	}
	if rt.Name != "" {
		if _, dup := r.names[rt.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateRouteName, rt.Name)
		}
	}

	ep := &endpoint{name: rt.Name, methods: normalizeMethods(rt.Methods)}
	entry, err := r.table.Add(rt.Path, ep)
	if err != nil {
		r.logger.Error("Invalid route template",
			zap.String("template", rt.Path),
			zap.Error(err),
		)
		return err
	}
	ep.template = entry.Template
	ep.handler = r.wrapHandler(rt.Handler, settings, entry.Template.String())
	if rt.Name != "" {
		r.names[rt.Name] = ep
	}

	r.logger.Debug("Route registered",
		zap.String("template", entry.Template.String()),
		zap.Strings("methods", ep.methods),
		zap.Int("index", entry.Index()),
	)
	return nil
}

func normalizeMethods(methods []string) []string {
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			out = append(out, m)
		}
	}
	return out
}

// wrapHandler builds the chain every request of one route runs through:
// recovery, global middlewares, metrics, route middlewares, then the limits.
func (r *Router) wrapHandler(handler http.Handler, settings routeSettings, template string) http.Handler {
	chain := common.NewMiddlewareChain(r.recoveryMiddleware).Append(r.middlewares...)

	if r.metrics != nil {
		label := template
		if label == "" {
			label = metrics.UnmatchedRoute
		}
		chain = chain.Append(r.metrics.Middleware(func(*http.Request) string { return label }))
	}

	chain = chain.Append(settings.middlewares...)

	if settings.rateLimit != nil {
		chain = chain.Append(middleware.RateLimit(settings.rateLimit, r.rateLimiter, r.logger))
	}
	if settings.maxBodySize > 0 {
		chain = chain.Append(middleware.MaxBodySize(settings.maxBodySize))
	}
	if settings.timeout > 0 {
		chain = chain.Append(middleware.Timeout(settings.timeout))
	}

	return chain.Then(handler)
}

// ServeHTTP dispatches the request to the first route whose template and
// method match, or to the fallback.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.shutdownMu.RLock()
	if r.shutdown {
		r.shutdownMu.RUnlock()
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	r.wg.Add(1)
	r.shutdownMu.RUnlock()
	defer r.wg.Done()

	path := httprouter.CleanPath(req.URL.Path)
	entry, values, ok := r.table.MatchFunc(path, func(ep *endpoint) bool {
		return ep.allows(req.Method)
	})
	if !ok {
		if r.config.HandleMethodNotAllowed {
			if allowed := r.allowedMethods(path); len(allowed) > 0 {
				w.Header().Set("Allow", strings.Join(allowed, ", "))
				http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
				return
			}
		}
		r.fallback.ServeHTTP(w, req)
		return
	}

	ep := entry.Value
	m := &Match{Name: ep.name, Template: ep.template, Values: values}
	ep.handler.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), matchKey{}, m)))
}

// allowedMethods lists the methods of routes whose template matches path.
func (r *Router) allowedMethods(path string) []string {
	var allowed []string
	seen := make(map[string]struct{})
	for _, e := range r.table.Entries() {
		if _, ok := e.Template.Match(path); !ok {
			continue
		}
		for _, m := range e.Value.methods {
			if _, dup := seen[m]; !dup {
				seen[m] = struct{}{}
				allowed = append(allowed, m)
			}
		}
	}
	return allowed
}

// URL builds the path of the named route from values.
func (r *Router) URL(name string, values map[string]string) (string, error) {
	ep, ok := r.names[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrRouteNotFound, name)
	}
	return ep.template.Expand(values)
}

// RouteInfo describes a registered route.
type RouteInfo struct {
	Name     string
	Template string
	Methods  []string
}

// Routes lists the registered routes in matching order.
func (r *Router) Routes() []RouteInfo {
	entries := r.table.Entries()
	out := make([]RouteInfo, len(entries))
	for i, e := range entries {
		out[i] = RouteInfo{Name: e.Value.name, Template: e.Template.String(), Methods: e.Value.methods}
	}
	return out
}

// MetricsHandler serves the router's Prometheus metrics. It answers 404 when
// metrics are disabled.
func (r *Router) MetricsHandler() http.Handler {
	if r.metrics == nil {
		return http.HandlerFunc(http.NotFound)
	}
	return r.metrics.HTTPHandler()
}

// Shutdown stops accepting new requests, which are answered with 503, and
// waits for in-flight requests to finish or ctx to be done.
func (r *Router) Shutdown(ctx context.Context) error {
	r.shutdownMu.Lock()
	r.shutdown = true
	r.shutdownMu.Unlock()

	r.logger.Info("Router shutting down")

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) getEffectiveTimeout(routeTimeout, subRouterTimeout time.Duration) time.Duration {
	if routeTimeout > 0 {
		return routeTimeout
	}
	if subRouterTimeout > 0 {
		return subRouterTimeout
	}
	return r.config.GlobalTimeout
}

func (r *Router) getEffectiveMaxBodySize(routeMaxBodySize, subRouterMaxBodySize int64) int64 {
	if routeMaxBodySize > 0 {
		return routeMaxBodySize
	}
	if subRouterMaxBodySize > 0 {
		return subRouterMaxBodySize
	}
	return r.config.GlobalMaxBodySize
}

func (r *Router) getEffectiveRateLimit(routeRateLimit, subRouterRateLimit *middleware.RateLimitConfig) *middleware.RateLimitConfig {
	if routeRateLimit != nil {
		return routeRateLimit
	}
	if subRouterRateLimit != nil {
		return subRouterRateLimit
	}
	return r.config.GlobalRateLimit
}

// fields returns method and path fields followed by extra, with the trace ID
// in front when trace ID logging is enabled.
func (r *Router) fields(req *http.Request, extra ...zap.Field) []zap.Field {
	fields := make([]zap.Field, 0, len(extra)+3)
	if r.config.EnableTraceID {
		if traceID := middleware.GetTraceID(req); traceID != "" {
			fields = append(fields, zap.String("trace_id", traceID))
		}
	}
	fields = append(fields,
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
	)
	return append(fields, extra...)
}

// handleError logs err and answers with statusCode and message, unless err
// is an *HTTPError, whose status and message take precedence.
func (r *Router) handleError(w http.ResponseWriter, req *http.Request, err error, statusCode int, message string) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		statusCode = httpErr.StatusCode
		message = httpErr.Message
	}

	fields := r.fields(req, zap.Error(err), zap.Int("status", statusCode))
	if statusCode >= 500 {
		r.logger.Error(message, fields...)
	} else {
		r.logger.Warn(message, fields...)
	}

	http.Error(w, message, statusCode)
}

// recoveryMiddleware is the outermost middleware of every route.
func (r *Router) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				r.logger.Error("Panic recovered", r.fields(req, zap.Any("panic", rec))...)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, req)
	})
}

func joinPath(prefix, path string) string {
	prefix = strings.Trim(prefix, "/")
	path = strings.Trim(path, "/")
	switch {
	case prefix == "":
		return path
	case path == "":
		return prefix
	}
	return prefix + "/" + path
}
