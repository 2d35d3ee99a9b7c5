package http

import (
	"strings"

	"github.com/indigo-web/utils/strcomp"
)

// Field is a single header line.
type Field struct {
	Name  string
	Value string
}

// Header is an ordered list of header fields. Names compare
// case-insensitively; fields are sent in insertion order.
type Header struct {
	fields []Field
}

// NewHeader returns a header holding the given name/value pairs.
func NewHeader(pairs ...string) Header {
	var h Header
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Add(pairs[i], pairs[i+1])
	}
	return h
}

// Add appends a field, keeping existing fields of the same name.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// Set replaces all fields named name with a single one. The new field
// takes the position of the first replaced field.
func (h *Header) Set(name, value string) {
	for i := range h.fields {
		if strcomp.EqualFold(h.fields[i].Name, name) {
			h.fields[i] = Field{Name: name, Value: value}
			h.delFrom(i+1, name)
			return
		}
	}
	h.Add(name, value)
}

// Get returns the first value of name, or "" when absent.
func (h Header) Get(name string) string {
	for _, f := range h.fields {
		if strcomp.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns every value of name in order.
func (h Header) Values(name string) []string {
	var vals []string
	for _, f := range h.fields {
		if strcomp.EqualFold(f.Name, name) {
			vals = append(vals, f.Value)
		}
	}
	return vals
}

// Has reports whether name is present.
func (h Header) Has(name string) bool {
	for _, f := range h.fields {
		if strcomp.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

// Del removes every field named name.
func (h *Header) Del(name string) {
	h.delFrom(0, name)
}

func (h *Header) delFrom(start int, name string) {
	kept := h.fields[:start]
	for _, f := range h.fields[start:] {
		if !strcomp.EqualFold(f.Name, name) {
			kept = append(kept, f)
		}
	}
	h.fields = kept
}

// Len returns the number of fields.
func (h Header) Len() int {
	return len(h.fields)
}

// Fields returns the fields in order. The slice must not be modified.
func (h Header) Fields() []Field {
	return h.fields
}

// Clone returns an independent copy.
func (h Header) Clone() Header {
	if h.fields == nil {
		return Header{}
	}
	return Header{fields: append([]Field(nil), h.fields...)}
}

// Map returns the header as a map from canonical name to values, for
// display and serialization.
func (h Header) Map() map[string][]string {
	m := make(map[string][]string, len(h.fields))
	for _, f := range h.fields {
		key := canonicalName(f.Name)
		m[key] = append(m[key], f.Value)
	}
	return m
}

// hasToken reports whether the comma-separated header value list of name
// contains token.
func (h Header) hasToken(name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strcomp.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

func canonicalName(name string) string {
	b := []byte(name)
	upper := true
	for i, c := range b {
		switch {
		case upper && 'a' <= c && c <= 'z':
			b[i] = c - ('a' - 'A')
		case !upper && 'A' <= c && c <= 'Z':
			b[i] = c + ('a' - 'A')
		}
		upper = c == '-'
	}
	return string(b)
}
