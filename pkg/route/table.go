package route

// Entry is a compiled template registered in a Table together with the
// caller's payload (typically a handler).
type Entry[T any] struct {
	Template *Template
	Value    T
	index    int
}

// Index returns the entry's registration position.
func (e *Entry[T]) Index() int {
	return e.index
}

// Table holds routes in registration order and resolves paths
// first-match-wins: every entry is tried in the order it was added and the
// first whose full segment sequence matches is selected. A more specific
// route registered later is only reached if every earlier one fails.
//
// Add is meant for startup. Once requests are being served the table must
// not be modified; Match itself never mutates it.
type Table[T any] struct {
	registry *Registry
	entries  []*Entry[T]
}

// NewTable creates a table whose templates resolve constraints against reg.
// A nil registry means the built-in constraints only.
func NewTable[T any](reg *Registry) *Table[T] {
	return &Table[T]{registry: reg}
}

// Add compiles template and appends it to the table.
func (t *Table[T]) Add(template string, value T) (*Entry[T], error) {
	tmpl, err := Compile(template, t.registry)
	if err != nil {
		return nil, err
	}
	e := &Entry[T]{Template: tmpl, Value: value, index: len(t.entries)}
	t.entries = append(t.entries, e)
	return e, nil
}

// Len returns the number of registered entries.
func (t *Table[T]) Len() int {
	return len(t.entries)
}

// Entries returns the entries in registration order. The slice must not be modified.
func (t *Table[T]) Entries() []*Entry[T] {
	return t.entries
}

// Match returns the first entry whose template matches path.
func (t *Table[T]) Match(path string) (*Entry[T], Values, bool) {
	return t.MatchFunc(path, nil)
}

// MatchFunc is Match restricted to entries accepted by keep. Rejected entries
// are skipped without attempting their templates; the scan order is unchanged.
func (t *Table[T]) MatchFunc(path string, keep func(T) bool) (*Entry[T], Values, bool) {
	for _, e := range t.entries {
		if keep != nil && !keep(e.Value) {
			continue
		}
		if values, ok := e.Template.Match(path); ok {
			return e, values, true
		}
	}
	return nil, nil, false
}
