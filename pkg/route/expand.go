package route

import (
	"fmt"
	"net/url"
	"strings"
)

// Expand renders the template as a path using values. Every supplied value
// must satisfy its parameter's constraints. Missing required parameters are
// an error; missing optional and catch-all parameters are omitted, as are
// trailing segments that would only repeat their defaults. Parameter values
// are path-escaped; catch-all values keep their slashes.
func (t *Template) Expand(values map[string]string) (string, error) {
	out := make([]string, 0, len(t.segments))
	keep := 0 // number of leading segments that must be written

	for i, seg := range t.segments {
		var b strings.Builder
		explicit := true
		omit := false

		for _, part := range seg.Parts {
			if part.Param == nil {
				b.WriteString(part.Literal)
				continue
			}
			p := part.Param
			v, ok := values[p.Name]
			switch {
			case ok:
				if _, accepted := p.accept(v); !accepted {
					return "", fmt.Errorf("%w: %q rejects %q", ErrValueType, p.Name, v)
				}
			case p.HasDefault:
				v = p.Default
				explicit = false
			case p.Optional || p.CatchAll:
				omit = true
			default:
				return "", fmt.Errorf("%w: %s", ErrValueMissing, p.Name)
			}
			if omit {
				break
			}
			if p.CatchAll {
				b.WriteString(escapeSegments(v))
			} else {
				b.WriteString(url.PathEscape(v))
			}
		}

		if omit {
			if later := suppliedAfter(t.segments[i+1:], values); later != "" {
				return "", fmt.Errorf("%w: %s is needed to place %s", ErrValueMissing, seg.simpleParam().Name, later)
			}
			break
		}
		out = append(out, b.String())
		if explicit {
			keep = len(out)
		}
	}

	return "/" + strings.Join(out[:keep], "/"), nil
}

// suppliedAfter returns the first parameter in segs that has a value.
func suppliedAfter(segs []Segment, values map[string]string) string {
	for _, seg := range segs {
		for _, part := range seg.Parts {
			if part.Param == nil {
				continue
			}
			if _, ok := values[part.Param.Name]; ok {
				return part.Param.Name
			}
		}
	}
	return ""
}

func escapeSegments(v string) string {
	parts := strings.Split(v, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
