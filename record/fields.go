package record

import (
	"bytes"
	"encoding/json"
	"slices"
)

// Fields is an ordered field-name → value mapping. Values are one of
// string, int64, float64, bool, []byte, []any or nil.
type Fields struct {
	keys   []string
	values map[string]any
}

// NewFields returns an empty field set.
func NewFields() *Fields {
	return &Fields{values: make(map[string]any)}
}

// FieldsOf builds a field set from alternating name/value pairs.
func FieldsOf(kvs ...any) *Fields {
	f := NewFields()
	for i := 0; i+1 < len(kvs); i += 2 {
		if k, ok := kvs[i].(string); ok {
			f.Set(k, kvs[i+1])
		}
	}
	return f
}

// Len returns the number of fields.
func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.keys)
}

// Keys returns the field names in order.
func (f *Fields) Keys() []string {
	if f == nil {
		return nil
	}
	return slices.Clone(f.keys)
}

// Get returns the value of name.
func (f *Fields) Get(name string) (any, bool) {
	if f == nil {
		return nil, false
	}
	v, ok := f.values[name]
	return v, ok
}

// Set stores value under name, appending name if it is new.
func (f *Fields) Set(name string, value any) {
	if _, ok := f.values[name]; !ok {
		f.keys = append(f.keys, name)
	}
	f.values[name] = value
}

// Delete removes name.
func (f *Fields) Delete(name string) {
	if _, ok := f.values[name]; !ok {
		return
	}
	delete(f.values, name)
	f.keys = slices.DeleteFunc(f.keys, func(k string) bool { return k == name })
}

// Rename moves the value of from to to, keeping its position.
func (f *Fields) Rename(from, to string) bool {
	v, ok := f.values[from]
	if !ok || from == to {
		return ok
	}
	if _, exists := f.values[to]; exists {
		f.Delete(to)
	}
	idx := slices.Index(f.keys, from)
	f.keys[idx] = to
	delete(f.values, from)
	f.values[to] = v
	return true
}

// Clone returns an independent copy; slice values are shared.
func (f *Fields) Clone() *Fields {
	c := &Fields{keys: slices.Clone(f.keys), values: make(map[string]any, len(f.values))}
	for k, v := range f.values {
		c.values[k] = v
	}
	return c
}

// Map returns the fields as a plain map.
func (f *Fields) Map() map[string]any {
	m := make(map[string]any, f.Len())
	if f == nil {
		return m
	}
	for k, v := range f.values {
		m[k] = v
	}
	return m
}

// Each calls fn for every field in order.
func (f *Fields) Each(fn func(name string, value any)) {
	if f == nil {
		return
	}
	for _, k := range f.keys {
		fn(k, f.values[k])
	}
}

// MarshalJSON encodes the fields as a JSON object in field order.
func (f *Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range f.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(f.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
