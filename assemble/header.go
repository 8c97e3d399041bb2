package assemble

import (
	"slices"
	"strings"
)

// Field is a single header line. Name keeps the case it was added with.
type Field struct {
	Name  string
	Value string
}

// Header is an ordered, case-insensitive list of header fields. Unlike a
// map it remembers the position of every field, which is what the wire
// order of an impersonated request is built from. The zero value is empty
// and ready to use.
type Header struct {
	fields []Field
}

// NewHeader returns a header holding fields in order.
func NewHeader(fields ...Field) Header {
	return Header{fields: slices.Clone(fields)}
}

// Add appends a field, keeping any existing values of name.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// Set replaces every value of name with value. The field keeps the
// position of the first existing occurrence, or is appended.
func (h *Header) Set(name, value string) {
	i := h.index(name)
	if i < 0 {
		h.Add(name, value)
		return
	}
	h.fields[i].Value = value
	rest := slices.DeleteFunc(h.fields[i+1:], func(f Field) bool {
		return strings.EqualFold(f.Name, name)
	})
	h.fields = h.fields[:i+1+len(rest)]
}

// Get returns the first value of name, or "".
func (h Header) Get(name string) string {
	if i := h.index(name); i >= 0 {
		return h.fields[i].Value
	}
	return ""
}

// Values returns every value of name in order.
func (h Header) Values(name string) []string {
	var values []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			values = append(values, f.Value)
		}
	}
	return values
}

// Has reports whether name is present.
func (h Header) Has(name string) bool {
	return h.index(name) >= 0
}

// Del removes every field named name.
func (h *Header) Del(name string) {
	h.fields = slices.DeleteFunc(h.fields, func(f Field) bool {
		return strings.EqualFold(f.Name, name)
	})
}

// Names returns the distinct field names in order of first appearance.
func (h Header) Names() []string {
	names := make([]string, 0, len(h.fields))
	for _, f := range h.fields {
		if !slices.ContainsFunc(names, func(n string) bool { return strings.EqualFold(n, f.Name) }) {
			names = append(names, f.Name)
		}
	}
	return names
}

// Len returns the number of fields, counting repeated names.
func (h Header) Len() int {
	return len(h.fields)
}

// Fields returns a copy of the fields in order.
func (h Header) Fields() []Field {
	return slices.Clone(h.fields)
}

// Clone returns an independent copy of h.
func (h Header) Clone() Header {
	return Header{fields: slices.Clone(h.fields)}
}

func (h Header) index(name string) int {
	return slices.IndexFunc(h.fields, func(f Field) bool {
		return strings.EqualFold(f.Name, name)
	})
}

// SortHeaders reorders h so that names listed in order come first, in list
// order, followed by the remaining fields. Matching is case-insensitive.
// Repeated fields of one name stay together in their original relative
// order and values are never touched. Applying it twice is the same as
// applying it once.
func SortHeaders(h *Header, order []string) {
	if h == nil || len(h.fields) == 0 {
		return
	}

	sorted := make([]Field, 0, len(h.fields))
	taken := make([]bool, len(h.fields))
	take := func(name string) {
		for i, f := range h.fields {
			if !taken[i] && strings.EqualFold(f.Name, name) {
				sorted = append(sorted, f)
				taken[i] = true
			}
		}
	}

	for _, name := range order {
		take(name)
	}
	for i, f := range h.fields {
		if !taken[i] {
			take(f.Name)
		}
	}
	h.fields = sorted
}
