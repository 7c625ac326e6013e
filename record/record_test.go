package record

import (
	"bytes"
	"strings"
	"testing"
)

func TestSwitch_DispatchesEveryVariant(t *testing.T) {
	records := []Record{
		NewRaw([]byte{1, 2}, Range{0, 2}),
		NewLine("a", 1, "\n", Range{0, 1}),
		NewStructured(FieldsOf("k", "v"), Range{0, 3}),
	}
	want := []string{"raw", "line", "structured"}
	for i, r := range records {
		got := Switch(r,
			func(*Raw) string { return "raw" },
			func(*Line) string { return "line" },
			func(*Structured) string { return "structured" },
		)
		if got != want[i] {
			t.Errorf("record %d: expected %s, got %s", i, want[i], got)
		}
		if r.Kind().String() != want[i] {
			t.Errorf("record %d: Kind() = %s", i, r.Kind())
		}
	}
}

func TestWithIssue_CopiesAndAppends(t *testing.T) {
	orig := NewLine("x", 1, "\n", Range{0, 1})
	first := WithIssue(orig, "one")
	second := WithIssue(first, "two")
	if orig.Issue != "" {
		t.Error("original record must not be modified")
	}
	if second.Info().Issue != "one; two" {
		t.Errorf("expected appended issue, got %q", second.Info().Issue)
	}
}

func TestRange(t *testing.T) {
	r := Range{2, 5}
	if r.Len() != 3 {
		t.Errorf("expected len 3, got %d", r.Len())
	}
	if !r.Within(5) || r.Within(4) {
		t.Error("Within bounds check failed")
	}
	if u := r.Union(Range{0, 3}); u != (Range{0, 5}) {
		t.Errorf("unexpected union %v", u)
	}
	if (Range{3, 2}).Within(10) {
		t.Error("inverted range must not be valid")
	}
}

func TestFields_OrderAndMutation(t *testing.T) {
	f := FieldsOf("a", "1", "b", int64(2), "c", true)
	f.Rename("b", "bee")
	f.Delete("a")
	f.Set("d", nil)
	keys := strings.Join(f.Keys(), ",")
	if keys != "bee,c,d" {
		t.Errorf("unexpected key order %q", keys)
	}
	c := f.Clone()
	c.Set("e", "x")
	if f.Len() != 3 {
		t.Error("clone must not share keys")
	}
	b, err := f.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"bee":2,"c":true,"d":null}` {
		t.Errorf("unexpected JSON %s", b)
	}
}

func TestFields_RenameOntoExisting(t *testing.T) {
	f := FieldsOf("a", "1", "b", "2")
	f.Rename("a", "b")
	if f.Len() != 1 {
		t.Fatalf("expected one field, got %v", f.Keys())
	}
	if v, _ := f.Get("b"); v != "1" {
		t.Errorf("expected renamed value, got %v", v)
	}
}

func TestLookup_FieldView(t *testing.T) {
	line := NewLine("hello", 4, "\n", Range{10, 15})
	if v, _ := Lookup(line, "text"); v != "hello" {
		t.Errorf("text: %v", v)
	}
	if v, _ := Lookup(line, "line"); v != int64(4) {
		t.Errorf("line: %v", v)
	}
	if v, _ := Lookup(line, "start"); v != int64(10) {
		t.Errorf("start: %v", v)
	}
	raw := NewRaw([]byte("ab"), Range{0, 2})
	if v, _ := Lookup(raw, "len"); v != int64(2) {
		t.Errorf("len: %v", v)
	}
	st := NewStructured(FieldsOf("start", "shadowed"), Range{1, 2})
	if v, _ := Lookup(st, "start"); v != "shadowed" {
		t.Errorf("fields should shadow common names, got %v", v)
	}
	if _, ok := Lookup(st, "missing"); ok {
		t.Error("expected missing field")
	}
}

func TestView_Structured(t *testing.T) {
	env := View(NewStructured(FieldsOf("status", "500"), Range{0, 3}))
	if env["status"] != "500" || env["kind"] != "structured" {
		t.Errorf("unexpected env %v", env)
	}
	if _, ok := env["fields"].(map[string]any); !ok {
		t.Error("expected nested fields map")
	}
}

func TestKey(t *testing.T) {
	a := NewStructured(FieldsOf("x", "1", "y", "2"), Range{})
	b := NewStructured(FieldsOf("x", "1"), Range{})
	if Key(a, []string{"x"}) != Key(b, []string{"x"}) {
		t.Error("expected equal keys on x")
	}
	if Key(a, []string{"x", "y"}) == Key(b, []string{"x", "y"}) {
		t.Error("expected different keys on x,y")
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		in      any
		typ     string
		want    any
		wantErr bool
	}{
		{"42", "int", int64(42), false},
		{"0x10", "int", int64(16), false},
		{"4.5", "int", nil, true},
		{"4.5", "float", 4.5, false},
		{"true", "bool", true, false},
		{int64(0), "bool", false, false},
		{int64(7), "string", "7", false},
		{"x", "float", nil, true},
		{"x", "complex", nil, true},
	}
	for _, tc := range tests {
		got, err := Coerce(tc.in, tc.typ)
		if (err != nil) != tc.wantErr {
			t.Errorf("Coerce(%v, %s) error = %v", tc.in, tc.typ, err)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("Coerce(%v, %s) = %v, want %v", tc.in, tc.typ, got, tc.want)
		}
	}
}

func TestCompare(t *testing.T) {
	if Compare("10", "9", true) <= 0 {
		t.Error("numeric compare: 10 > 9")
	}
	if Compare("10", "9", false) >= 0 {
		t.Error("lexical compare: \"10\" < \"9\"")
	}
	if Compare(nil, "a", false) >= 0 {
		t.Error("nil sorts first")
	}
	if Compare("1", "x", true) >= 0 {
		t.Error("numbers sort before non-numbers")
	}
}

func TestEncode_RoundTripsSource(t *testing.T) {
	src := "a\nb\nc"
	records := []Record{
		NewLine("a", 1, "\n", Range{0, 1}),
		NewLine("b", 2, "\n", Range{2, 3}),
		&Line{Text: "c", Number: 3, Meta: Meta{Span: Range{4, 5}, Incomplete: true}},
	}
	out, err := EncodeAll(records)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != src {
		t.Errorf("expected %q, got %q", src, out)
	}
}

func TestEncode_StructuredAndRaw(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Write(NewStructured(FieldsOf("a", int64(1)), Range{})); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(NewRaw([]byte{0xff, 0x00}, Range{})); err != nil {
		t.Fatal(err)
	}
	want := "{\"a\":1}\n\xff\x00"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}
	if w.Written() != int64(len(want)) {
		t.Errorf("expected %d bytes written, got %d", len(want), w.Written())
	}
}
