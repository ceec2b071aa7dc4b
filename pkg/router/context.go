package router

import (
	"net/http"

	"github.com/Suhaibinator/SPipeline/pkg/route"
	"github.com/julienschmidt/httprouter"
)

type matchKey struct{}

// Match describes the route that matched a request.
type Match struct {
	Name     string          // Route name, empty for unnamed routes
	Template *route.Template // Template that matched
	Values   route.Values    // Parameter values, coerced by their constraints
}

// RouteMatch returns the match stored in the request context by the router.
func RouteMatch(r *http.Request) (*Match, bool) {
	m, ok := r.Context().Value(matchKey{}).(*Match)
	return m, ok
}

// RouteValues returns the matched parameter values, or nil outside a routed request.
func RouteValues(r *http.Request) route.Values {
	if m, ok := RouteMatch(r); ok {
		return m.Values
	}
	return nil
}

// Param returns the string form of a route value, or "" if it is absent.
func Param(r *http.Request, name string) string {
	return RouteValues(r).String(name)
}

// GetParams returns the matched values as httprouter params in template order.
// Absent optional parameters are left out.
func GetParams(r *http.Request) httprouter.Params {
	m, ok := RouteMatch(r)
	if !ok {
		return nil
	}
	var params httprouter.Params
	for _, p := range m.Template.Parameters() {
		if m.Values.Has(p.Name) {
			params = append(params, httprouter.Param{Key: p.Name, Value: m.Values.String(p.Name)})
		}
	}
	return params
}

// GetParam is a shorthand for GetParams(r).ByName(name).
func GetParam(r *http.Request, name string) string {
	return GetParams(r).ByName(name)
}

// RouteTemplate returns the template text of the matched route.
func RouteTemplate(r *http.Request) string {
	if m, ok := RouteMatch(r); ok {
		return m.Template.String()
	}
	return ""
}

// RouteName returns the name of the matched route.
func RouteName(r *http.Request) string {
	if m, ok := RouteMatch(r); ok {
		return m.Name
	}
	return ""
}
