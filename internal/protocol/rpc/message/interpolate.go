// Package message renders the diagnostic text Perforce servers send as
// templates plus named arguments, and decodes the numeric message codes
// that accompany them.
//
// Template grammar:
//
//	%name%       replaced by args[name]; left as-is when name is unknown
//	%'text'%     literal text, emitted without the markers and never expanded
//	[a|b]        alternate: a when its placeholders have values, else b
//	[text %x%]   optional: dropped entirely unless one of its placeholders has a value
//
// Rendering is lenient. Malformed templates degrade to verbatim output and
// no function in this package returns an error for a bad template.
package message

import "strings"

const (
	marker      = '%'
	quote       = '\''
	quoteOpen   = "%'"
	quoteClose  = "'%"
	splitMarker = "|"
)

// Interpolate expands %name% placeholders and %'literal'% segments in a
// single left-to-right pass. Alternates are not handled here; use Format
// for full server templates.
func Interpolate(template string, args map[string]string) string {
	if strings.IndexByte(template, marker) < 0 {
		return template
	}

	var out strings.Builder
	out.Grow(len(template))

	for i := 0; i < len(template); {
		c := template[i]
		if c != marker {
			out.WriteByte(c)
			i++
			continue
		}

		// %'literal'%
		if i+1 < len(template) && template[i+1] == quote {
			body := i + len(quoteOpen)
			end := strings.Index(template[body:], quoteClose)
			if end < 0 {
				out.WriteString(template[i:])
				break
			}
			out.WriteString(template[body : body+end])
			i = body + end + len(quoteClose)
			continue
		}

		// %name%
		end := strings.IndexByte(template[i+1:], marker)
		if end < 0 {
			out.WriteString(template[i:])
			break
		}
		name := template[i+1 : i+1+end]
		next := i + 1 + end + 1
		if value, ok := args[name]; ok {
			out.WriteString(value)
		} else {
			out.WriteString(template[i:next])
		}
		i = next
	}

	return out.String()
}

// Format renders a server template: alternates first, then placeholders.
func Format(template string, args map[string]string) string {
	if !strings.ContainsAny(template, "%|[") {
		return template
	}
	return Interpolate(ResolveAlternates(template, args), args)
}
