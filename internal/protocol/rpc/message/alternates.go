package message

import (
	"regexp"
	"strings"
)

var (
	// a bracketed section with no nested brackets
	altPattern = regexp.MustCompile(`\[[^\[\]^]*\]`)

	placeholderPattern = regexp.MustCompile(`%[^%]*%`)
)

// ResolveAlternates rewrites the bracketed sections of template.
//
// An "[a|b]" section becomes whichever side carries the placeholders when
// they have values, otherwise the other side. A bracketed section without a
// "|" is kept (without brackets) if one of its placeholders has a value and
// dropped if it has placeholders but none with a value. Sections that
// contain no placeholders at all are left untouched, brackets included.
func ResolveAlternates(template string, args map[string]string) string {
	if !strings.Contains(template, "[") {
		return template
	}

	return altPattern.ReplaceAllStringFunc(template, func(section string) string {
		inner := section[1 : len(section)-1]

		if strings.Contains(inner, splitMarker) {
			parts := strings.Split(inner, splitMarker)
			if len(parts) != 2 {
				return section
			}
			switch {
			case strings.IndexByte(parts[0], marker) >= 0:
				if hasValue(parts[0], args) {
					return parts[0]
				}
				return parts[1]
			case strings.IndexByte(parts[1], marker) >= 0:
				if hasValue(parts[1], args) {
					return parts[1]
				}
				return parts[0]
			default:
				return section
			}
		}

		if hasValue(inner, args) {
			return inner
		}
		if strings.IndexByte(inner, marker) < 0 {
			return section
		}
		return ""
	})
}

// hasValue reports whether s contains a literal segment or a placeholder
// whose argument is non-empty.
func hasValue(s string, args map[string]string) bool {
	for _, match := range placeholderPattern.FindAllString(s, -1) {
		if isLiteral(match) {
			return true
		}
		if args[match[1:len(match)-1]] != "" {
			return true
		}
	}
	return false
}

func isLiteral(match string) bool {
	return len(match) >= 4 && match[1] == quote && match[len(match)-2] == quote
}
