package router

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Suhaibinator/SPipeline/pkg/codec"
	"github.com/Suhaibinator/SPipeline/pkg/middleware"
	"github.com/Suhaibinator/SPipeline/pkg/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRouter(t *testing.T, config RouterConfig) *Router {
	t.Helper()
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	r, err := NewRouter(config)
	require.NoError(t, err)
	return r
}

func serve(h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, body))
	return w
}

func text(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, body)
	}
}

func TestRouterFirstMatchWins(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	require.NoError(t, r.MapGet("products/{name}", text("generic")))
	require.NoError(t, r.MapGet("products/special", text("special")))

	w := serve(r, http.MethodGet, "/products/special", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "generic", w.Body.String())
}

func TestRouterConstraintsAndValues(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	require.NoError(t, r.MapGet("products/{id:int:range(1,1000)}", func(w http.ResponseWriter, req *http.Request) {
		id, err := RouteValues(req).Int("id")
		require.NoError(t, err)
		assert.Equal(t, "products/{id:int:range(1,1000)}", RouteTemplate(req))
		_, _ = io.WriteString(w, Param(req, "id"))
		assert.Equal(t, 42, id)
	}))

	w := serve(r, http.MethodGet, "/products/42", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Body.String())

	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/products/0", nil).Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/products/abc", nil).Code)
}

func TestRouterDefaultsAndOptionals(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	require.NoError(t, r.MapGet("employee/profile/{name:alpha=John}", func(w http.ResponseWriter, req *http.Request) {
		_, _ = io.WriteString(w, Param(req, "name"))
	}))
	require.NoError(t, r.MapGet("details/{id:int?}", func(w http.ResponseWriter, req *http.Request) {
		if !RouteValues(req).Has("id") {
			_, _ = io.WriteString(w, "none")
			return
		}
		_, _ = io.WriteString(w, Param(req, "id"))
	}))

	assert.Equal(t, "John", serve(r, http.MethodGet, "/employee/profile", nil).Body.String())
	assert.Equal(t, "Jane", serve(r, http.MethodGet, "/employee/profile/Jane", nil).Body.String())
	assert.Equal(t, "none", serve(r, http.MethodGet, "/details", nil).Body.String())
	assert.Equal(t, "7", serve(r, http.MethodGet, "/details/7", nil).Body.String())
}

func TestRouterMethods(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	require.NoError(t, r.MapGet("items", text("get")))
	require.NoError(t, r.MapPost("items", text("post")))
	require.NoError(t, r.Map("any", text("any")))

	assert.Equal(t, "get", serve(r, http.MethodGet, "/items", nil).Body.String())
	assert.Equal(t, "post", serve(r, http.MethodPost, "/items", nil).Body.String())
	assert.Equal(t, http.StatusOK, serve(r, http.MethodHead, "/items", nil).Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodDelete, "/items", nil).Code)
	assert.Equal(t, "any", serve(r, http.MethodPatch, "/any", nil).Body.String())
}

func TestRouterMethodNotAllowed(t *testing.T) {
	r := newTestRouter(t, RouterConfig{HandleMethodNotAllowed: true})
	require.NoError(t, r.MapGet("items", text("get")))
	require.NoError(t, r.MapPost("items", text("post")))

	w := serve(r, http.MethodDelete, "/items", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "GET, POST", w.Header().Get("Allow"))

	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodDelete, "/other", nil).Code)
}

func TestRouterFallback(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/missing", nil).Code)

	r.MapFallback(text("fallback"))
	w := serve(r, http.MethodGet, "/missing", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fallback", w.Body.String())
	assert.Nil(t, RouteValues(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestRouterCleansPath(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	require.NoError(t, r.MapGet("a/b", text("ab")))

	assert.Equal(t, "ab", serve(r, http.MethodGet, "/a//b/", nil).Body.String())
	assert.Equal(t, "ab", serve(r, http.MethodGet, "/a/c/../b", nil).Body.String())
}

func TestRouterInvalidTemplate(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})

	err := r.MapGet("bad/{id:nope}", text(""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, route.ErrUnknownConstraint))
	assert.Empty(t, r.Routes())

	err = r.Map("nil", nil)
	assert.True(t, errors.Is(err, ErrNilHandler))
}

func TestRouterCustomConstraint(t *testing.T) {
	reg := route.NewRegistry()
	require.NoError(t, reg.RegisterPredicate("even", func(raw string) bool {
		return strings.HasSuffix(raw, "0") || strings.HasSuffix(raw, "2") || strings.HasSuffix(raw, "4") ||
			strings.HasSuffix(raw, "6") || strings.HasSuffix(raw, "8")
	}))

	r := newTestRouter(t, RouterConfig{Constraints: reg})
	require.NoError(t, r.MapGet("n/{v:int:even}", text("even")))

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/n/4", nil).Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/n/5", nil).Code)
}

func TestRouterSubRouters(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	r := newTestRouter(t, RouterConfig{
		Middlewares: []Middleware{mw("global")},
		SubRouters: []SubRouterConfig{{
			PathPrefix:  "/api/v1/",
			Middlewares: []Middleware{mw("sub")},
			Routes: []RouteConfigBase{{
				Path:        "users/{id:int}",
				Methods:     []string{"get"},
				Handler:     text("user"),
				Middlewares: []Middleware{mw("route")},
			}},
		}},
	})

	w := serve(r, http.MethodGet, "/api/v1/users/3", nil)
	assert.Equal(t, "user", w.Body.String())
	assert.Equal(t, []string{"global", "sub", "route"}, order)
	assert.Equal(t, []RouteInfo{{Template: "api/v1/users/{id:int}", Methods: []string{"GET"}}}, r.Routes())
}

func TestNewRouterInvalidSubRouterRoute(t *testing.T) {
	_, err := NewRouter(RouterConfig{
		Logger: zap.NewNop(),
		SubRouters: []SubRouterConfig{{
			PathPrefix: "api",
			Routes:     []RouteConfigBase{{Path: "{id:int=abc}", Handler: text("")}},
		}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, route.ErrInvalidDefault))
}

func TestRouterEffectiveSettings(t *testing.T) {
	r := newTestRouter(t, RouterConfig{GlobalTimeout: time.Second, GlobalMaxBodySize: 100})
	limit := &middleware.RateLimitConfig{Limit: 1, Window: time.Minute}

	assert.Equal(t, 2*time.Second, r.getEffectiveTimeout(2*time.Second, 3*time.Second))
	assert.Equal(t, 3*time.Second, r.getEffectiveTimeout(0, 3*time.Second))
	assert.Equal(t, time.Second, r.getEffectiveTimeout(0, 0))
	assert.Equal(t, int64(10), r.getEffectiveMaxBodySize(10, 20))
	assert.Equal(t, int64(20), r.getEffectiveMaxBodySize(0, 20))
	assert.Equal(t, int64(100), r.getEffectiveMaxBodySize(0, 0))
	assert.Same(t, limit, r.getEffectiveRateLimit(nil, limit))
	assert.Nil(t, r.getEffectiveRateLimit(nil, nil))
}

func TestRouterMaxBodySize(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	require.NoError(t, r.RegisterRoute(RouteConfigBase{
		Path:        "upload",
		MaxBodySize: 4,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if _, err := io.ReadAll(req.Body); err != nil {
				http.Error(w, "too large", http.StatusRequestEntityTooLarge)
				return
			}
			_, _ = io.WriteString(w, "ok")
		}),
	}))

	assert.Equal(t, "ok", serve(r, http.MethodPost, "/upload", strings.NewReader("abc")).Body.String())
	assert.Equal(t, http.StatusRequestEntityTooLarge, serve(r, http.MethodPost, "/upload", strings.NewReader("abcdef")).Code)
}

func TestRouterRateLimit(t *testing.T) {
	r := newTestRouter(t, RouterConfig{
		GlobalRateLimit: &middleware.RateLimitConfig{BucketName: "global", Limit: 1, Window: time.Minute},
	})
	require.NoError(t, r.MapGet("limited", text("ok")))

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/limited", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodGet, "/limited", nil).Code)
}

func TestRouterTimeout(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	require.NoError(t, r.RegisterRoute(RouteConfigBase{
		Path:    "slow",
		Timeout: 20 * time.Millisecond,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			<-req.Context().Done()
		}),
	}))

	assert.Equal(t, http.StatusRequestTimeout, serve(r, http.MethodGet, "/slow", nil).Code)
}

func TestRouterRecoversPanics(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	r := newTestRouter(t, RouterConfig{Logger: zap.New(core)})
	require.NoError(t, r.MapGet("boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	assert.Equal(t, http.StatusInternalServerError, serve(r, http.MethodGet, "/boom", nil).Code)
	assert.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
}

func TestRouterTraceIDInLogs(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := newTestRouter(t, RouterConfig{Logger: zap.New(core), EnableTracing: true, EnableTraceID: true})
	type req struct{ N int }
	require.NoError(t, RegisterGenericRoute(r, RouteConfig[req, req]{
		Path:    "echo",
		Methods: []string{http.MethodPost},
		Codec:   codec.NewJSONCodec[req, req](),
		Handler: func(*http.Request, req) (req, error) { return req{}, nil },
	}))

	w := serve(r, http.MethodPost, "/echo", strings.NewReader("{"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	traceID := w.Header().Get(middleware.TraceHeader)
	require.NotEmpty(t, traceID)

	entries := logs.FilterMessage("Failed to decode request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, traceID, entries[0].ContextMap()["trace_id"])
}

type greetRequest struct {
	Name string `json:"name"`
}

type greetResponse struct {
	Message string `json:"message"`
}

func TestRegisterGenericRoute(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	require.NoError(t, RegisterGenericRoute(r, RouteConfig[greetRequest, greetResponse]{
		Path:    "greet/{greeting:alpha=Hello}",
		Methods: []string{http.MethodPost, http.MethodGet},
		Codec:   codec.NewJSONCodec[greetRequest, greetResponse](),
		Handler: func(req *http.Request, data greetRequest) (greetResponse, error) {
			switch data.Name {
			case "":
				data.Name = "nobody"
			case "teapot":
				return greetResponse{}, NewHTTPError(http.StatusTeapot, "short and stout")
			case "fail":
				return greetResponse{}, errors.New("failed")
			}
			return greetResponse{Message: Param(req, "greeting") + " " + data.Name}, nil
		},
	}))

	w := serve(r, http.MethodPost, "/greet/Hi", strings.NewReader(`{"name":"Ada"}`))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Hi Ada"}`, w.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	w = serve(r, http.MethodGet, "/greet", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Hello nobody"}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/greet", nil).Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/greet", strings.NewReader("{")).Code)

	w = serve(r, http.MethodPost, "/greet", strings.NewReader(`{"name":"teapot"}`))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Contains(t, w.Body.String(), "short and stout")

	w = serve(r, http.MethodPost, "/greet", strings.NewReader(`{"name":"fail"}`))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Handler error")

	err := RegisterGenericRoute(r, RouteConfig[greetRequest, greetResponse]{Path: "x"})
	assert.True(t, errors.Is(err, ErrNilHandler))
}

func TestRouterURL(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	require.NoError(t, r.RegisterRoute(RouteConfigBase{
		Name:    "report",
		Path:    "sales-report/{year:int}/{month?}",
		Handler: text(""),
	}))

	u, err := r.URL("report", map[string]string{"year": "2024", "month": "may"})
	require.NoError(t, err)
	assert.Equal(t, "/sales-report/2024/may", u)

	_, err = r.URL("report", map[string]string{"year": "soon"})
	assert.True(t, errors.Is(err, route.ErrValueType))

	_, err = r.URL("missing", nil)
	assert.True(t, errors.Is(err, ErrRouteNotFound))

	err = r.RegisterRoute(RouteConfigBase{Name: "report", Path: "other", Handler: text("")})
	assert.True(t, errors.Is(err, ErrDuplicateRouteName))
}

func TestGetParams(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	require.NoError(t, r.MapGet("files/{filename}.{ext}/{page:int?}", func(w http.ResponseWriter, req *http.Request) {
		params := GetParams(req)
		require.Len(t, params, 2)
		assert.Equal(t, "filename", params[0].Key)
		assert.Equal(t, "report.final", params[0].Value)
		assert.Equal(t, "pdf", GetParam(req, "ext"))
		assert.Equal(t, "", GetParam(req, "page"))
		w.WriteHeader(http.StatusNoContent)
	}))

	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/files/report.final.pdf", nil).Code)
	assert.Nil(t, GetParams(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestRouterMetrics(t *testing.T) {
	r := newTestRouter(t, RouterConfig{EnableMetrics: true})
	require.NoError(t, r.MapGet("items/{id:int}", text("ok")))

	serve(r, http.MethodGet, "/items/1", nil)
	serve(r, http.MethodGet, "/nowhere", nil)

	body := serve(r.MetricsHandler(), http.MethodGet, "/metrics", nil).Body.String()
	assert.Contains(t, body, `route="items/{id:int}"`)
	assert.Contains(t, body, `route="unmatched"`)

	disabled := newTestRouter(t, RouterConfig{})
	assert.Equal(t, http.StatusNotFound, serve(disabled.MetricsHandler(), http.MethodGet, "/metrics", nil).Code)
}

func TestRouterShutdown(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, r.MapGet("wait", func(w http.ResponseWriter, req *http.Request) {
		close(started)
		<-release
		_, _ = io.WriteString(w, "done")
	}))

	var wg sync.WaitGroup
	var inflight *httptest.ResponseRecorder
	wg.Add(1)
	go func() {
		defer wg.Done()
		inflight = serve(r, http.MethodGet, "/wait", nil)
	}()
	<-started

	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- r.Shutdown(context.Background()) }()

	// Wait for Shutdown to flip the flag before probing.
	require.Eventually(t, func() bool {
		return serve(r, http.MethodGet, "/wait", nil).Code == http.StatusServiceUnavailable
	}, time.Second, 5*time.Millisecond)

	close(release)
	wg.Wait()
	require.NoError(t, <-shutdownErr)
	assert.Equal(t, "done", inflight.Body.String())
}

func TestRouterShutdownTimeout(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, r.MapGet("wait", func(w http.ResponseWriter, req *http.Request) {
		close(started)
		<-release
	}))

	go serve(r, http.MethodGet, "/wait", nil)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Shutdown(ctx), context.DeadlineExceeded)
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "api/users", joinPath("/api/", "/users"))
	assert.Equal(t, "users", joinPath("", "users"))
	assert.Equal(t, "api", joinPath("api", ""))
	assert.Equal(t, "", joinPath("/", "/"))
}
