package route

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Constraint validates the raw string value of a route parameter.
// Match returns ok=false to reject the value. A non-nil value replaces the
// raw string as the parameter's resolved value (type coercion); a nil value
// leaves the current value untouched.
//
// Constraints are shared by every request that reaches their route and must
// be safe for concurrent use.
type Constraint interface {
	Match(raw string) (value any, ok bool)
}

// ConstraintFunc adapts a function to the Constraint interface.
type ConstraintFunc func(raw string) (any, bool)

// Match implements Constraint.
func (f ConstraintFunc) Match(raw string) (any, bool) {
	return f(raw)
}

// ConstraintFactory builds a constraint from the text between the parentheses
// of its template occurrence, e.g. "1,10" for range(1,10). arg is empty when
// the constraint was written without parentheses.
type ConstraintFactory func(arg string) (Constraint, error)

// Registry maps constraint names to factories. Names are case-insensitive.
//
// A registry is populated at startup. Templates resolve their constraints
// against it once, at compile time, so the registry is never consulted while
// requests are being matched.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ConstraintFactory
	frozen    bool
}

// NewRegistry returns a registry pre-populated with the built-in constraints:
// int, long, float, double, bool, guid, datetime, range, min, max, length,
// minlength, maxlength, alpha, regex and required.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]ConstraintFactory, len(builtinFactories))}
	for name, f := range builtinFactories {
		r.factories[name] = f
	}
	return r
}

// builtins is the frozen registry used when Compile is given a nil registry.
var builtins = func() *Registry {
	r := NewRegistry()
	r.Freeze()
	return r
}()

// Register adds a named constraint factory.
func (r *Registry) Register(name string, factory ConstraintFactory) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || strings.ContainsAny(key, "{}()/:=?*") {
		return fmt.Errorf("%w: invalid constraint name %q", ErrInvalidConstraint, name)
	}
	if factory == nil {
		return fmt.Errorf("%w: nil factory for %q", ErrInvalidConstraint, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: cannot register %q", ErrRegistryFrozen, name)
	}
	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateConstraint, name)
	}
	r.factories[key] = factory
	return nil
}

// RegisterPredicate registers an argument-less constraint backed by a boolean
// predicate. This is the usual way to add a custom constraint such as a list
// of accepted month names.
func (r *Registry) RegisterPredicate(name string, pred func(raw string) bool) error {
	if pred == nil {
		return fmt.Errorf("%w: nil predicate for %q", ErrInvalidConstraint, name)
	}
	c := ConstraintFunc(func(raw string) (any, bool) {
		return nil, pred(raw)
	})
	return r.Register(name, noArgs(name, c))
}

// Freeze makes the registry read-only. Subsequent Register calls fail.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (ConstraintFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[strings.ToLower(name)]
	return f, ok
}

// Names returns the registered constraint names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var builtinFactories = map[string]ConstraintFactory{
	"int":       noArgs("int", ConstraintFunc(matchInt)),
	"long":      noArgs("long", ConstraintFunc(matchLong)),
	"float":     noArgs("float", ConstraintFunc(matchFloat)),
	"double":    noArgs("double", ConstraintFunc(matchDouble)),
	"bool":      noArgs("bool", ConstraintFunc(matchBool)),
	"guid":      noArgs("guid", ConstraintFunc(matchGUID)),
	"datetime":  noArgs("datetime", ConstraintFunc(matchDateTime)),
	"alpha":     noArgs("alpha", ConstraintFunc(matchAlpha)),
	"required":  noArgs("required", ConstraintFunc(matchRequired)),
	"range":     newRange,
	"min":       newMin,
	"max":       newMax,
	"length":    newLength,
	"minlength": newMinLength,
	"maxlength": newMaxLength,
	"regex":     newRegex,
}

func noArgs(name string, c Constraint) ConstraintFactory {
	return func(arg string) (Constraint, error) {
		if arg != "" {
			return nil, fmt.Errorf("%w: %s takes no arguments, got %q", ErrInvalidConstraint, name, arg)
		}
		return c, nil
	}
}

// dateTimeLayouts are tried in order; all are culture-invariant.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"1/2/2006",
}

func matchInt(raw string) (any, bool) {
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return nil, false
	}
	return int(v), true
}

func matchLong(raw string) (any, bool) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, false
	}
	return v, true
}

func matchFloat(raw string) (any, bool) {
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, false
	}
	return float32(v), true
}

func matchDouble(raw string) (any, bool) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, false
	}
	return v, true
}

func matchBool(raw string) (any, bool) {
	switch {
	case strings.EqualFold(raw, "true"):
		return true, true
	case strings.EqualFold(raw, "false"):
		return false, true
	}
	return nil, false
}

func matchGUID(raw string) (any, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, false
	}
	return id, true
}

func matchDateTime(raw string) (any, bool) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return nil, false
}

func matchAlpha(raw string) (any, bool) {
	if raw == "" {
		return nil, false
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return nil, false
		}
	}
	return nil, true
}

func matchRequired(raw string) (any, bool) {
	return nil, raw != ""
}

// splitArgs splits a comma separated argument list and trims each entry.
func splitArgs(arg string) []string {
	if arg == "" {
		return nil
	}
	parts := strings.Split(arg, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseInts(name, arg string, want ...int) ([]int64, error) {
	parts := splitArgs(arg)
	countOK := false
	for _, n := range want {
		if len(parts) == n {
			countOK = true
			break
		}
	}
	if !countOK {
		return nil, fmt.Errorf("%w: %s(%s)", ErrInvalidConstraint, name, arg)
	}
	out := make([]int64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s(%s): %v", ErrInvalidConstraint, name, arg, err)
		}
		out[i] = v
	}
	return out, nil
}

// intBounds rejects values that are not 64-bit integers within [lo, hi].
func intBounds(lo, hi int64) Constraint {
	return ConstraintFunc(func(raw string) (any, bool) {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, false
		}
		return nil, v >= lo && v <= hi
	})
}

func newRange(arg string) (Constraint, error) {
	b, err := parseInts("range", arg, 2)
	if err != nil {
		return nil, err
	}
	if b[0] > b[1] {
		return nil, fmt.Errorf("%w: range(%s): min greater than max", ErrInvalidConstraint, arg)
	}
	return intBounds(b[0], b[1]), nil
}

func newMin(arg string) (Constraint, error) {
	b, err := parseInts("min", arg, 1)
	if err != nil {
		return nil, err
	}
	return intBounds(b[0], math.MaxInt64), nil
}

func newMax(arg string) (Constraint, error) {
	b, err := parseInts("max", arg, 1)
	if err != nil {
		return nil, err
	}
	return intBounds(math.MinInt64, b[0]), nil
}

// lengthBounds counts characters, not bytes.
func lengthBounds(lo, hi int64) Constraint {
	return ConstraintFunc(func(raw string) (any, bool) {
		n := int64(utf8.RuneCountInString(raw))
		return nil, n >= lo && n <= hi
	})
}

func newLength(arg string) (Constraint, error) {
	b, err := parseInts("length", arg, 1, 2)
	if err != nil {
		return nil, err
	}
	if len(b) == 1 {
		b = append(b, b[0])
	}
	if b[0] < 0 || b[0] > b[1] {
		return nil, fmt.Errorf("%w: length(%s): invalid bounds", ErrInvalidConstraint, arg)
	}
	return lengthBounds(b[0], b[1]), nil
}

func newMinLength(arg string) (Constraint, error) {
	b, err := parseInts("minlength", arg, 1)
	if err != nil {
		return nil, err
	}
	if b[0] < 0 {
		return nil, fmt.Errorf("%w: minlength(%s): negative length", ErrInvalidConstraint, arg)
	}
	return lengthBounds(b[0], math.MaxInt64), nil
}

func newMaxLength(arg string) (Constraint, error) {
	b, err := parseInts("maxlength", arg, 1)
	if err != nil {
		return nil, err
	}
	if b[0] < 0 {
		return nil, fmt.Errorf("%w: maxlength(%s): negative length", ErrInvalidConstraint, arg)
	}
	return lengthBounds(0, b[0]), nil
}

// newRegex anchors the pattern so it has to match the whole token.
func newRegex(arg string) (Constraint, error) {
	if arg == "" {
		return nil, fmt.Errorf("%w: regex requires a pattern", ErrInvalidConstraint)
	}
	rx, err := regexp.Compile("^(?:" + arg + ")$")
	if err != nil {
		return nil, fmt.Errorf("%w: regex(%s): %v", ErrInvalidConstraint, arg, err)
	}
	return ConstraintFunc(func(raw string) (any, bool) {
		return nil, rx.MatchString(raw)
	}), nil
}
