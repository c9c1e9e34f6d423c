// Package selector converts between controller test selectors
// (path?Class/method/[param]) and pytest node ids (path::Class::method[param]).
package selector

import (
	"fmt"
	"strings"
)

const (
	caseSeparator   = "?"
	attrSeparator   = "&"
	nameAttrPrefix  = "name="
	pathSeparator   = "/"
	nodeSeparator   = "::"
	paramMarker     = "/["
	paramOpen       = "["
	paramClose      = "]"
	maxDecodePasses = 2
)

// FormatError is returned for structurally malformed selectors
type FormatError struct {
	Selector string
	Reason   string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid selector %q: %s", e.Selector, e.Reason)
}

// Converter translates selectors in both directions. The zero value decodes
// escaped parameter tokens once.
type Converter struct {
	doubleDecode bool
}

// NewConverter returns a converter. doubleDecode enables the compatibility
// mode for node ids produced by old pytest versions, which escaped parameter
// ids twice.
func NewConverter(doubleDecode bool) *Converter {
	return &Converter{doubleDecode: doubleDecode}
}

var defaultConverter = &Converter{}

// ToHostFormat converts a selector with the default converter
func ToHostFormat(selector string) (string, error) {
	return defaultConverter.ToHostFormat(selector)
}

// ToSelectorFormat converts a node id with the default converter
func ToSelectorFormat(nodeID string) string {
	return defaultConverter.ToSelectorFormat(nodeID)
}

// DoubleDecode reports whether the legacy double decode mode is on
func (c *Converter) DoubleDecode() bool {
	return c.doubleDecode
}

// FilePath returns the file component of a selector
func FilePath(selector string) string {
	path, _, _ := strings.Cut(selector, caseSeparator)
	return path
}

// ToHostFormat converts a controller selector into a pytest node id. A
// selector without a case path names the whole file and is returned as is.
func (c *Converter) ToHostFormat(selector string) (string, error) {
	path, casePath, found := strings.Cut(selector, caseSeparator)
	if !found || casePath == "" {
		return path, nil
	}

	casePath = extractCasePath(casePath)
	if casePath == "" {
		return path, nil
	}
	if err := checkCasePath(casePath); err != nil {
		return "", &FormatError{Selector: selector, Reason: err.Error()}
	}

	head, param := casePath, ""
	if idx := strings.Index(casePath, paramMarker); idx >= 0 {
		head, param = casePath[:idx], casePath[idx+1:]
		param = escapeUnicode(param)
	}
	head = strings.ReplaceAll(head, pathSeparator, nodeSeparator)

	return path + nodeSeparator + head + param, nil
}

// extractCasePath resolves the attribute form key=value&key=value. A name
// attribute wins; otherwise the first positional attribute is used.
func extractCasePath(casePath string) string {
	if !strings.Contains(casePath, attrSeparator) {
		return strings.TrimPrefix(casePath, nameAttrPrefix)
	}

	attrs := strings.Split(casePath, attrSeparator)
	for _, attr := range attrs {
		if value, ok := strings.CutPrefix(attr, nameAttrPrefix); ok {
			return value
		}
	}
	for _, attr := range attrs {
		if attr != "" && !strings.Contains(attr, "=") {
			return attr
		}
	}
	return ""
}

// checkCasePath validates the structure of a case path. The parameter token
// between the first "/[" and the trailing "]" is opaque, since pytest keeps
// brackets of parametrize ids as they are; only the part before it must
// have balanced brackets.
func checkCasePath(casePath string) error {
	head := casePath
	if idx := strings.Index(casePath, paramMarker); idx >= 0 {
		if !strings.HasSuffix(casePath, paramClose) {
			return fmt.Errorf("parameter at offset %d is not closed by ']'", idx+1)
		}
		head = casePath[:idx]
	}

	depth := 0
	for i, r := range head {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
			if depth < 0 {
				return fmt.Errorf("unexpected ']' at offset %d", i)
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("%d unclosed '['", depth)
	}
	return nil
}

// ToSelectorFormat converts a pytest node id into a controller selector. The
// node id must contain "::"; anything else is a programming error.
func (c *Converter) ToSelectorFormat(nodeID string) string {
	path, rest, found := strings.Cut(nodeID, nodeSeparator)
	if !found {
		panic(fmt.Sprintf("node id %q has no %q separator", nodeID, nodeSeparator))
	}
	return path + caseSeparator + c.DecodeCaseName(rest)
}

// DecodeCaseName turns a pytest case path (Class::name[param]) into the
// selector case path (Class/name/[param]), restoring escaped characters in
// the parameter token.
func (c *Converter) DecodeCaseName(name string) string {
	head, param := name, ""
	if idx := strings.Index(name, paramOpen); idx >= 0 && strings.HasSuffix(name, paramClose) {
		head, param = name[:idx], name[idx:]
	}

	head = strings.ReplaceAll(head, nodeSeparator, pathSeparator)
	if param == "" {
		return head
	}

	param = c.decode(param)
	if head == "" || strings.HasSuffix(head, pathSeparator) {
		return head + param
	}
	return head + pathSeparator + param
}

func (c *Converter) decode(param string) string {
	passes := 1
	if c.doubleDecode {
		passes = maxDecodePasses
	}
	for i := 0; i < passes && hasEscape(param); i++ {
		param = unescapeUnicode(param)
	}
	return param
}
