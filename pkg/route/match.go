package route

import (
	"strings"
)

// Match matches path against the template. On success it returns a fresh
// Values holding every present or defaulted parameter. Optional parameters
// without a default that are absent from the path have no key at all.
//
// A failed match is an ordinary negative result, not an error.
func (t *Template) Match(path string) (Values, bool) {
	tokens := splitPath(path)
	values := make(Values, len(t.params))

	for i, seg := range t.segments {
		if p := seg.simpleParam(); p != nil && p.CatchAll {
			if i >= len(tokens) {
				resolveAbsent(p, values)
				return values, true
			}
			v, ok := p.accept(strings.Join(tokens[i:], "/"))
			if !ok {
				return nil, false
			}
			values[p.Name] = v
			return values, true
		}

		if i >= len(tokens) {
			p := seg.simpleParam()
			if p == nil || !resolveAbsent(p, values) {
				return nil, false
			}
			continue
		}

		if !matchSegment(seg, tokens[i], values) {
			return nil, false
		}
	}

	if len(tokens) > len(t.segments) {
		return nil, false
	}
	return values, true
}

// resolveAbsent handles a parameter whose path token is missing.
func resolveAbsent(p *Parameter, values Values) bool {
	switch {
	case p.HasDefault:
		values[p.Name] = p.value
		return true
	case p.Optional, p.CatchAll:
		return true
	}
	return false
}

func matchSegment(seg Segment, token string, values Values) bool {
	if len(seg.Parts) == 1 {
		part := seg.Parts[0]
		if part.Param == nil {
			return part.Literal == token
		}
		if token == "" {
			return false
		}
		v, ok := part.Param.accept(token)
		if !ok {
			return false
		}
		values[part.Param.Name] = v
		return true
	}
	return matchComplex(seg.Parts, token, values)
}

// matchComplex matches a mixed literal/parameter segment right to left.
// Each parameter takes the text after the last occurrence of the literal that
// precedes it, so "{name}.{ext}" splits "a.b.c" into "a.b" and "c".
// Values are only written once the whole segment has matched.
func matchComplex(parts []Part, token string, values Values) bool {
	type capture struct {
		p   *Parameter
		raw string
	}
	captures := make([]capture, 0, len(parts))
	end := len(token)

	for j := len(parts) - 1; j >= 0; j-- {
		part := parts[j]
		if part.Param == nil {
			if !strings.HasSuffix(token[:end], part.Literal) {
				return false
			}
			end -= len(part.Literal)
			continue
		}

		start := 0
		if j > 0 {
			if end < 1 {
				return false
			}
			prev := parts[j-1].Literal
			idx := strings.LastIndex(token[:end-1], prev)
			if idx < 0 {
				return false
			}
			start = idx + len(prev)
		}
		if start >= end {
			return false
		}
		captures = append(captures, capture{p: part.Param, raw: token[start:end]})
		end = start
	}
	if end != 0 {
		return false
	}

	resolved := make([]any, len(captures))
	for i, c := range captures {
		v, ok := c.p.accept(c.raw)
		if !ok {
			return false
		}
		resolved[i] = v
	}
	for i, c := range captures {
		values[c.p.Name] = resolved[i]
	}
	return true
}

// splitPath trims surrounding slashes and splits the rest into tokens.
// The root path yields no tokens.
func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
