package operator_test

import (
	"context"
	"strings"
	"testing"

	"github.com/jae-editor/operate/errors"
	"github.com/jae-editor/operate/logger"
	"github.com/jae-editor/operate/operator"
	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/source"
	"github.com/jae-editor/operate/stream"
)

// spec builds a Spec from a kind and alternating option names and values.
func spec(kind operator.Kind, kvs ...any) operator.Spec {
	opts := map[string]any{}
	for i := 0; i+1 < len(kvs); i += 2 {
		opts[kvs[i].(string)] = kvs[i+1]
	}
	return operator.Spec{Kind: kind, Options: opts}
}

// pipe wires specs over input read in chunks of chunkSize bytes.
func pipe(t *testing.T, env *operator.Env, input string, chunkSize int, specs ...operator.Spec) *stream.Stream[record.Record] {
	t.Helper()
	ops, err := operator.BuildAll(specs)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if env == nil {
		env = &operator.Env{Logger: logger.Nop()}
	}
	s := source.Records(source.NewMemory([]byte(input), source.WithChunkSize(chunkSize)))
	for i, op := range ops {
		s = op.Apply(env.ForStage(i, op.Spec()), s)
	}
	return s
}

func run(t *testing.T, input string, specs ...operator.Spec) []record.Record {
	t.Helper()
	out, err := stream.Collect(context.Background(), pipe(t, nil, input, source.DefaultChunkSize, specs...))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return out
}

func texts(records []record.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = record.Switch(r,
			func(x *record.Raw) string { return string(x.Bytes) },
			func(x *record.Line) string { return x.Text },
			func(x *record.Structured) string {
				b, _ := x.Fields.MarshalJSON()
				return string(b)
			},
		)
	}
	return out
}

func field(t *testing.T, r record.Record, name string) any {
	t.Helper()
	v, ok := record.Lookup(r, name)
	if !ok {
		t.Fatalf("record %s has no field %q", texts([]record.Record{r})[0], name)
	}
	return v
}

func TestKindCapabilities(t *testing.T) {
	barriers := map[operator.Kind]bool{
		operator.KindAggregate: true,
		operator.KindSort:      true,
		operator.KindExternal:  true,
	}
	for _, k := range operator.Kinds() {
		if k.IsBarrier() != barriers[k] {
			t.Errorf("%s: IsBarrier = %v", k, k.IsBarrier())
		}
	}
	if len(operator.Kinds()) != 11 {
		t.Errorf("expected 11 built-in kinds, got %d", len(operator.Kinds()))
	}
	specs := []operator.Spec{spec(operator.KindLines), spec(operator.KindSort), spec(operator.KindRender), spec(operator.KindExternal)}
	if got := operator.Barriers(specs); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("unexpected barrier indexes %v", got)
	}
}

func TestBuild_Rejects(t *testing.T) {
	tests := []struct {
		name string
		spec operator.Spec
		code errors.ErrorCode
		want string
	}{
		{"unknown kind", spec("explode"), errors.ErrCodeConfigValidation, "explode"},
		{"unknown option", spec(operator.KindLines, "delimter", ","), errors.ErrCodeConfigValidation, "delimter"},
		{"missing expr", spec(operator.KindFilter), errors.ErrCodeConfigValidation, "expr"},
		{"bad expr", spec(operator.KindFilter, "expr", "len >"), errors.ErrCodeConfigValidation, "expr"},
		{"map without fn", spec(operator.KindMap), errors.ErrCodeConfigValidation, "fn"},
		{"rename without to", spec(operator.KindMap, "fn", "rename", "from", "a"), errors.ErrCodeConfigValidation, "to"},
		{"coerce without type", spec(operator.KindMap, "fn", "coerce", "field", "a"), errors.ErrCodeConfigValidation, "type"},
		{"sum without field", spec(operator.KindAggregate, "fn", "sum"), errors.ErrCodeConfigValidation, "field"},
		{"bad prefix", spec(operator.KindFrames, "mode", "length", "prefix_bytes", 3), errors.ErrCodeConfigValidation, "prefix_bytes"},
		{"zero prefix", spec(operator.KindFrames, "mode", "length", "prefix_bytes", 0), errors.ErrCodeConfigValidation, "prefix_bytes"},
		{"fixed without width", spec(operator.KindFrames, "mode", "fixed"), errors.ErrCodeConfigValidation, "width"},
		{"external without command", spec(operator.KindExternal), errors.ErrCodeConfigValidation, "command"},
		{"bad render format", spec(operator.KindRender, "format", "xml"), errors.ErrCodeConfigValidation, "format"},
		{"kv bad pattern", spec(operator.KindKV, "pattern", "(?P<a"), errors.ErrCodeConfigValidation, "pattern"},
		{"kv pattern without groups", spec(operator.KindKV, "pattern", `\d+`), errors.ErrCodeConfigValidation, "named group"},
		{"table long delimiter", spec(operator.KindTable, "delimiter", ";;"), errors.ErrCodeConfigValidation, "delimiter"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := operator.Build(tc.spec)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.HasCode(err, tc.code) {
				t.Errorf("expected %s, got %v", tc.code, err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected %q in %q", tc.want, err.Error())
			}
		})
	}
}

func TestBuildAll_AttributesStage(t *testing.T) {
	_, err := operator.BuildAll([]operator.Spec{
		spec(operator.KindLines),
		{Kind: operator.KindFilter, Name: "errors-only"},
	})
	appErr, ok := errors.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Stage != 1 || appErr.Operator != "errors-only" {
		t.Errorf("expected stage 1 (errors-only), got %d (%s)", appErr.Stage, appErr.Operator)
	}
}

func TestSpec_Fingerprint(t *testing.T) {
	a := operator.Spec{Kind: operator.KindFilter, Name: "x", Options: map[string]any{"expr": "len > 1", "invert": true}}
	b := operator.Spec{Kind: operator.KindFilter, Options: map[string]any{"invert": true, "expr": "len > 1"}}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint must ignore name and option order")
	}
	c := operator.Spec{Kind: operator.KindFilter, Options: map[string]any{"expr": "len > 2"}}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("different options must change the fingerprint")
	}
	if len(a.Fingerprint().String()) != 16 {
		t.Errorf("unexpected short form %q", a.Fingerprint())
	}
}

func TestParseSpec(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		want    operator.Spec
		wantErr bool
	}{
		{"nested", `{"kind":"filter","options":{"expr":"len > 3"}}`, spec(operator.KindFilter, "expr", "len > 3"), false},
		{"inline", `{"kind":"filter","name":"long","expr":"len > 3"}`, operator.Spec{Kind: operator.KindFilter, Name: "long", Options: map[string]any{"expr": "len > 3"}}, false},
		{"no kind", `{"expr":"x"}`, operator.Spec{}, true},
		{"bad json", `{`, operator.Spec{}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := operator.ParseSpec([]byte(tc.json))
			if (err != nil) != tc.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if got.Kind != tc.want.Kind || got.Name != tc.want.Name || got.Fingerprint() != tc.want.Fingerprint() {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

// collect applies op to the given records.
func collect(t *testing.T, op operator.Operator, in ...record.Record) []record.Record {
	t.Helper()
	env := &operator.Env{Logger: logger.Nop()}
	out, err := stream.Collect(context.Background(), op.Apply(env, stream.FromSlice(in)))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	return out
}
