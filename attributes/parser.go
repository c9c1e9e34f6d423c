// Package attributes derives the attribute map of a test case from its
// docstring and its pytest markers.
package attributes

import (
	"strings"
)

// Well-known attribute keys
const (
	KeyDescription     = "description"
	KeyTag             = "tag"
	KeyOwner           = "owner"
	KeyExtraAttributes = "extra_attributes"
)

const (
	markerAttributes      = "attributes"
	markerOwner           = "owner"
	markerExtraAttributes = "extra_attributes"
)

// Marker is a declarative pytest marker attached to a test function, with
// arguments already decoded from JSON.
type Marker struct {
	Name   string         `json:"name"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

// Item is the view of a collected test the parser needs
type Item interface {
	Docstring() string
	OwnMarkers() []Marker
}

// Parse builds the attribute map of item. commentFields names the fields to
// mine from "<field>: <v1>, <v2>" lines of the docstring. Malformed markers
// are ignored.
func Parse(item Item, commentFields []string) map[string]string {
	desc := strings.TrimSpace(item.Docstring())
	attrs := map[string]string{
		KeyDescription: desc,
	}

	lists := make(map[string][]any)
	if len(commentFields) > 0 {
		scanCommentFields(desc, commentFields, attrs, lists)
	}

	for _, m := range item.OwnMarkers() {
		switch {
		case len(m.Args) == 0 && m.Name != markerAttributes:
			attrs[KeyTag] = m.Name
		case m.Name == markerOwner:
			attrs[KeyOwner] = pyStr(m.Args[0])
		case m.Name == markerExtraAttributes:
			extra, ok := m.Args[0].(map[string]any)
			if !ok {
				continue
			}
			kept := make(map[string]any, len(extra))
			for k, v := range extra {
				if v != nil {
					kept[k] = v
				}
			}
			lists[KeyExtraAttributes] = append(lists[KeyExtraAttributes], kept)
			attrs[KeyExtraAttributes] = dumps(lists[KeyExtraAttributes])
		case m.Name == markerAttributes:
			mergeAttributesMarker(m, attrs)
		}
	}
	return attrs
}

// mergeAttributesMarker handles @pytest.mark.attributes({"key": "value"}) and
// @pytest.mark.attributes(key="value").
func mergeAttributesMarker(m Marker, attrs map[string]string) {
	merge := func(values map[string]any) {
		for k, v := range values {
			if v == nil || k == KeyTag {
				continue
			}
			attrs[k] = pyStr(v)
		}
	}
	for _, arg := range m.Args {
		if values, ok := arg.(map[string]any); ok {
			merge(values)
		}
	}
	merge(m.Kwargs)
}

func scanCommentFields(desc string, fields []string, attrs map[string]string, lists map[string][]any) {
	for _, line := range strings.Split(desc, "\n") {
		for _, field := range fields {
			if field == "" || !strings.Contains(line, field) {
				continue
			}
			for _, v := range strings.Split(fieldValue(line), ",") {
				if v != "" {
					lists[field] = append(lists[field], v)
				}
			}
			if lists[field] == nil {
				lists[field] = []any{}
			}
			attrs[field] = dumps(lists[field])
		}
	}
}

// fieldValue returns the text after the first ':' (or '=' when the line has
// no ':') with all spaces removed.
func fieldValue(line string) string {
	sep := ":"
	if !strings.Contains(line, sep) {
		sep = "="
	}
	_, value, found := strings.Cut(line, sep)
	if !found {
		return ""
	}
	return strings.ReplaceAll(strings.TrimSpace(value), " ", "")
}
