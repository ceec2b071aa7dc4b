package route

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrValueMissing is returned by typed accessors for absent parameters.
	ErrValueMissing = errors.New("route value not found")

	// ErrValueType is returned when a value cannot be converted to the requested type.
	ErrValueType = errors.New("route value has wrong type")
)

// Values maps parameter names to resolved values. Values produced by
// constrained parameters carry the constraint's type: int for int, int64 for
// long, float32/float64 for float/double, bool, uuid.UUID for guid and
// time.Time for datetime. Everything else is a string.
type Values map[string]any

// Get returns the value stored under name.
func (v Values) Get(name string) (any, bool) {
	val, ok := v[name]
	return val, ok
}

// Has reports whether name resolved to a value.
func (v Values) Has(name string) bool {
	_, ok := v[name]
	return ok
}

// String renders the value as text. Absent values render as "".
func (v Values) String(name string) string {
	switch val := v[name].(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// Int returns the value as an int, parsing strings when needed.
func (v Values) Int(name string) (int, error) {
	switch val := v[name].(type) {
	case nil:
		return 0, fmt.Errorf("%w: %s", ErrValueMissing, name)
	case int:
		return val, nil
	case int64:
		if int64(int(val)) != val {
			return 0, fmt.Errorf("%w: %s overflows int", ErrValueType, name)
		}
		return int(val), nil
	case string:
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%w: %s (%w)", ErrValueType, name, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s is %T", ErrValueType, name, val)
	}
}

// Int64 returns the value as an int64, parsing strings when needed.
func (v Values) Int64(name string) (int64, error) {
	switch val := v[name].(type) {
	case nil:
		return 0, fmt.Errorf("%w: %s", ErrValueMissing, name)
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	case string:
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s (%w)", ErrValueType, name, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s is %T", ErrValueType, name, val)
	}
}

// Float64 returns the value as a float64, parsing strings when needed.
func (v Values) Float64(name string) (float64, error) {
	switch val := v[name].(type) {
	case nil:
		return 0, fmt.Errorf("%w: %s", ErrValueMissing, name)
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s (%w)", ErrValueType, name, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %s is %T", ErrValueType, name, val)
	}
}

// Bool returns the value as a bool, parsing strings when needed.
func (v Values) Bool(name string) (bool, error) {
	switch val := v[name].(type) {
	case nil:
		return false, fmt.Errorf("%w: %s", ErrValueMissing, name)
	case bool:
		return val, nil
	case string:
		b, err := strconv.ParseBool(val)
		if err != nil {
			return false, fmt.Errorf("%w: %s (%w)", ErrValueType, name, err)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%w: %s is %T", ErrValueType, name, val)
	}
}

// UUID returns the value as a uuid.UUID, parsing strings when needed.
func (v Values) UUID(name string) (uuid.UUID, error) {
	switch val := v[name].(type) {
	case nil:
		return uuid.Nil, fmt.Errorf("%w: %s", ErrValueMissing, name)
	case uuid.UUID:
		return val, nil
	case string:
		id, err := uuid.Parse(val)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: %s (%w)", ErrValueType, name, err)
		}
		return id, nil
	default:
		return uuid.Nil, fmt.Errorf("%w: %s is %T", ErrValueType, name, val)
	}
}

// Time returns the value as a time.Time, parsing strings with the same
// layouts the datetime constraint accepts.
func (v Values) Time(name string) (time.Time, error) {
	switch val := v[name].(type) {
	case nil:
		return time.Time{}, fmt.Errorf("%w: %s", ErrValueMissing, name)
	case time.Time:
		return val, nil
	case string:
		t, ok := matchDateTime(val)
		if !ok {
			return time.Time{}, fmt.Errorf("%w: %s is not a date", ErrValueType, name)
		}
		return t.(time.Time), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %s is %T", ErrValueType, name, val)
	}
}
