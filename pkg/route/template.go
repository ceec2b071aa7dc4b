// Package route compiles declarative path templates and matches request paths
// against them.
//
// A template is a slash separated list of segments. A segment is literal text,
// a parameter in braces, or a mix of both:
//
//	sales-report/{year:int:min(1990)}/{month:months}
//	files/{filename}.{extension}
//	products/details/{id:int:range(1,1000)?}
//	employee/profile/{name:alpha=John}
//	static/{*path}
//
// Constraints follow the parameter name, each introduced by a colon and
// optionally carrying parenthesized arguments. A trailing question mark makes
// the parameter optional and "=value" gives it a default. A leading asterisk
// makes a catch-all that absorbs the rest of the path.
//
// Compiled templates are immutable and safe for concurrent use.
package route

import (
	"strings"
)

// ConstraintRef is one resolved constraint of a parameter, kept together with
// the text it was written as.
type ConstraintRef struct {
	Name       string // Constraint name as written, e.g. "range"
	Arg        string // Text between the parentheses, e.g. "1,10"
	Constraint Constraint
}

// String returns the constraint as it appeared in the template.
func (c ConstraintRef) String() string {
	if c.Arg == "" {
		return c.Name
	}
	return c.Name + "(" + c.Arg + ")"
}

// Parameter is a named placeholder inside a segment.
type Parameter struct {
	Name        string
	Constraints []ConstraintRef
	Optional    bool
	CatchAll    bool
	HasDefault  bool
	Default     string // Raw default text
	value       any    // Default after constraint coercion
}

// accept runs the constraints in declared order. The resolved value is the
// last coerced value, or the raw string when no constraint coerces.
func (p *Parameter) accept(raw string) (any, bool) {
	var value any = raw
	for _, c := range p.Constraints {
		v, ok := c.Constraint.Match(raw)
		if !ok {
			return nil, false
		}
		if v != nil {
			value = v
		}
	}
	return value, true
}

// Part is a piece of a segment: either literal text or a parameter.
type Part struct {
	Literal string
	Param   *Parameter
}

// Segment is one slash delimited component of a template.
type Segment struct {
	Parts []Part
}

// IsLiteral reports whether the segment contains no parameters.
func (s Segment) IsLiteral() bool {
	return len(s.Parts) == 1 && s.Parts[0].Param == nil
}

// simpleParam returns the parameter of a segment made of exactly one parameter.
func (s Segment) simpleParam() *Parameter {
	if len(s.Parts) == 1 {
		return s.Parts[0].Param
	}
	return nil
}

// Template is a compiled route template.
type Template struct {
	raw      string
	segments []Segment
	params   []*Parameter
}

// String returns the template text it was compiled from.
func (t *Template) String() string {
	return t.raw
}

// Segments returns the compiled segments. The slice must not be modified.
func (t *Template) Segments() []Segment {
	return t.segments
}

// Parameters returns the template's parameters in declaration order.
func (t *Template) Parameters() []*Parameter {
	return t.params
}

// MustCompile is like Compile but panics on error.
func MustCompile(template string, reg *Registry) *Template {
	t, err := Compile(template, reg)
	if err != nil {
		panic(err)
	}
	return t
}

// Compile parses template and resolves every constraint against reg.
// A nil registry means the built-in constraints only.
// All failures are reported as *TemplateError.
func Compile(template string, reg *Registry) (*Template, error) {
	if reg == nil {
		reg = builtins
	}

	rawSegments, err := splitTemplate(template)
	if err != nil {
		return nil, err
	}

	t := &Template{raw: template, segments: make([]Segment, 0, len(rawSegments))}
	seen := make(map[string]struct{})
	trailingOptional := false

	for i, raw := range rawSegments {
		seg, err := parseSegment(template, raw, reg)
		if err != nil {
			return nil, err
		}

		for _, part := range seg.Parts {
			if part.Param == nil {
				continue
			}
			if _, dup := seen[part.Param.Name]; dup {
				return nil, templateErr(template, part.Param.Name, ErrDuplicateParameter, "")
			}
			seen[part.Param.Name] = struct{}{}
			t.params = append(t.params, part.Param)
		}

		p := seg.simpleParam()
		if p != nil && p.CatchAll && i != len(rawSegments)-1 {
			return nil, templateErr(template, p.Name, ErrMalformedTemplate, "catch-all must be the last segment")
		}

		omittable := p != nil && (p.Optional || p.HasDefault || p.CatchAll)
		if trailingOptional && !omittable {
			return nil, templateErr(template, "", ErrMalformedTemplate,
				"segment %q follows an optional segment", raw)
		}
		if omittable {
			trailingOptional = true
		}

		t.segments = append(t.segments, seg)
	}

	return t, nil
}

// splitTemplate splits on slashes that are outside braces and parentheses.
// Leading and trailing slashes are ignored.
func splitTemplate(template string) ([]string, error) {
	body := strings.TrimPrefix(template, "~")
	body = strings.Trim(body, "/")
	if body == "" {
		return nil, nil
	}

	var segments []string
	start := 0
	inBrace := false
	depth := 0

	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\' && inBrace && depth > 0:
			i++ // escaped character inside constraint arguments
		case c == '{' && !inBrace:
			inBrace = true
		case c == '{' && depth == 0:
			return nil, templateErr(template, "", ErrMalformedTemplate, "nested '{' at offset %d", i)
		case c == '}' && inBrace && depth == 0:
			inBrace = false
		case c == '}' && !inBrace:
			return nil, templateErr(template, "", ErrMalformedTemplate, "unbalanced '}' at offset %d", i)
		case c == '(' && inBrace:
			depth++
		case c == ')' && inBrace && depth > 0:
			depth--
		case c == '/' && !inBrace:
			if i == start {
				return nil, templateErr(template, "", ErrMalformedTemplate, "empty segment at offset %d", i)
			}
			segments = append(segments, body[start:i])
			start = i + 1
		}
	}

	if inBrace || depth != 0 {
		return nil, templateErr(template, "", ErrMalformedTemplate, "unterminated parameter")
	}
	return append(segments, body[start:]), nil
}

// parseSegment splits a raw segment into literal and parameter parts.
func parseSegment(template, raw string, reg *Registry) (Segment, error) {
	var seg Segment
	var lit strings.Builder

	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' {
			if raw[i] == '}' {
				return seg, templateErr(template, "", ErrMalformedTemplate, "unbalanced '}' in segment %q", raw)
			}
			lit.WriteByte(raw[i])
			continue
		}

		end := closingBrace(raw, i)
		if end < 0 {
			return seg, templateErr(template, "", ErrMalformedTemplate, "unterminated parameter in segment %q", raw)
		}
		if lit.Len() > 0 {
			seg.Parts = append(seg.Parts, Part{Literal: lit.String()})
			lit.Reset()
		}
		if n := len(seg.Parts); n > 0 && seg.Parts[n-1].Param != nil {
			return seg, templateErr(template, "", ErrMalformedTemplate,
				"adjacent parameters need a literal separator in segment %q", raw)
		}

		p, err := parseParameter(template, raw[i+1:end], reg)
		if err != nil {
			return seg, err
		}
		seg.Parts = append(seg.Parts, Part{Param: p})
		i = end
	}
	if lit.Len() > 0 {
		seg.Parts = append(seg.Parts, Part{Literal: lit.String()})
	}

	if len(seg.Parts) > 1 {
		for _, part := range seg.Parts {
			if p := part.Param; p != nil && (p.Optional || p.HasDefault || p.CatchAll) {
				return seg, templateErr(template, p.Name, ErrMalformedTemplate,
					"optional, default and catch-all parameters must fill their whole segment")
			}
		}
	}
	return seg, nil
}

// closingBrace returns the index of the '}' that closes the '{' at open,
// skipping anything inside constraint argument parentheses.
func closingBrace(s string, open int) int {
	depth := 0
	for i := open + 1; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\' && depth > 0:
			i++
		case c == '(':
			depth++
		case c == ')' && depth > 0:
			depth--
		case c == '}' && depth == 0:
			return i
		}
	}
	return -1
}

// parseParameter parses the text between braces.
func parseParameter(template, body string, reg *Registry) (*Parameter, error) {
	p := &Parameter{}

	if strings.HasPrefix(body, "*") {
		p.CatchAll = true
		body = strings.TrimLeft(body, "*")
	}

	head := body
	if idx := topLevelIndex(body, '='); idx >= 0 {
		head = body[:idx]
		p.HasDefault = true
		p.Default = body[idx+1:]
	}
	if strings.HasSuffix(head, "?") {
		if p.HasDefault {
			return nil, templateErr(template, "", ErrMalformedTemplate,
				"parameter %q cannot be both optional and defaulted", body)
		}
		p.Optional = true
		head = strings.TrimSuffix(head, "?")
	}

	pieces := splitTopLevel(head, ':')
	p.Name = pieces[0]
	if p.Name == "" || strings.ContainsAny(p.Name, "{}()/?*=:.\\") {
		return nil, templateErr(template, p.Name, ErrMalformedTemplate, "invalid parameter name in %q", body)
	}

	for _, raw := range pieces[1:] {
		ref, err := resolveConstraint(template, p.Name, raw, reg)
		if err != nil {
			return nil, err
		}
		p.Constraints = append(p.Constraints, ref)
	}

	if p.HasDefault {
		v, ok := p.accept(p.Default)
		if !ok {
			return nil, templateErr(template, p.Name, ErrInvalidDefault, "default %q", p.Default)
		}
		p.value = v
	}
	return p, nil
}

func resolveConstraint(template, param, raw string, reg *Registry) (ConstraintRef, error) {
	name, arg := raw, ""
	if open := strings.IndexByte(raw, '('); open >= 0 {
		if !strings.HasSuffix(raw, ")") {
			return ConstraintRef{}, templateErr(template, param, ErrMalformedTemplate, "constraint %q", raw)
		}
		name, arg = raw[:open], raw[open+1:len(raw)-1]
	}
	if name == "" {
		return ConstraintRef{}, templateErr(template, param, ErrMalformedTemplate, "empty constraint name")
	}

	factory, ok := reg.Lookup(name)
	if !ok {
		return ConstraintRef{}, templateErr(template, param, ErrUnknownConstraint, "%q", name)
	}
	c, err := factory(arg)
	if err != nil {
		detail := strings.TrimPrefix(err.Error(), ErrInvalidConstraint.Error()+": ")
		return ConstraintRef{}, &TemplateError{Template: template, Parameter: param, Detail: detail, Err: ErrInvalidConstraint}
	}
	return ConstraintRef{Name: name, Arg: arg, Constraint: c}, nil
}

// topLevelIndex finds sep outside parentheses.
func topLevelIndex(s string, sep byte) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\' && depth > 0:
			i++
		case c == '(':
			depth++
		case c == ')' && depth > 0:
			depth--
		case c == sep && depth == 0:
			return i
		}
	}
	return -1
}

// splitTopLevel splits s on sep outside parentheses.
func splitTopLevel(s string, sep byte) []string {
	var out []string
	for {
		idx := topLevelIndex(s, sep)
		if idx < 0 {
			return append(out, s)
		}
		out = append(out, s[:idx])
		s = s[idx+1:]
	}
}
