package record

// Lookup resolves name against the uniform field view of r:
//
//	all variants: start, end, kind, incomplete
//	Raw:          bytes (string), len
//	Line:         text, line, len
//	Structured:   every field (fields shadow the common names)
func Lookup(r Record, name string) (any, bool) {
	m := r.Info()
	common := func() (any, bool) {
		switch name {
		case "start":
			return m.Span.Start, true
		case "end":
			return m.Span.End, true
		case "kind":
			return r.Kind().String(), true
		case "incomplete":
			return m.Incomplete, true
		}
		return nil, false
	}
	return Switch(r,
		func(v *Raw) lookupResult {
			switch name {
			case "bytes":
				return lookupResult{string(v.Bytes), true}
			case "len":
				return lookupResult{int64(len(v.Bytes)), true}
			}
			val, ok := common()
			return lookupResult{val, ok}
		},
		func(v *Line) lookupResult {
			switch name {
			case "text":
				return lookupResult{v.Text, true}
			case "line":
				return lookupResult{int64(v.Number), true}
			case "len":
				return lookupResult{int64(len(v.Text)), true}
			}
			val, ok := common()
			return lookupResult{val, ok}
		},
		func(v *Structured) lookupResult {
			if val, ok := v.Fields.Get(name); ok {
				return lookupResult{val, true}
			}
			val, ok := common()
			return lookupResult{val, ok}
		},
	).unpack()
}

type lookupResult struct {
	val any
	ok  bool
}

func (l lookupResult) unpack() (any, bool) { return l.val, l.ok }

// View returns the field view of r as a map, suitable as an expression
// environment.
func View(r Record) map[string]any {
	m := r.Info()
	env := map[string]any{
		"start":      m.Span.Start,
		"end":        m.Span.End,
		"kind":       r.Kind().String(),
		"incomplete": m.Incomplete,
	}
	Switch(r,
		func(v *Raw) struct{} {
			env["bytes"] = string(v.Bytes)
			env["len"] = int64(len(v.Bytes))
			return struct{}{}
		},
		func(v *Line) struct{} {
			env["text"] = v.Text
			env["line"] = int64(v.Number)
			env["len"] = int64(len(v.Text))
			return struct{}{}
		},
		func(v *Structured) struct{} {
			env["fields"] = v.Fields.Map()
			v.Fields.Each(func(name string, value any) { env[name] = value })
			return struct{}{}
		},
	)
	return env
}

// Key renders the values of names in r as a composite key. Missing names
// contribute an empty component, so records lacking a field group together.
func Key(r Record, names []string) string {
	var key []byte
	for i, n := range names {
		if i > 0 {
			key = append(key, 0x1f)
		}
		if v, ok := Lookup(r, n); ok {
			key = append(key, FormatValue(v)...)
		}
	}
	return string(key)
}
