package operator

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/stream"
	"github.com/jae-editor/operate/validation"
)

type framesOptions struct {
	Mode          string `mapstructure:"mode" validate:"required,oneof=fixed length"`
	Width         int    `mapstructure:"width" validate:"required_if=Mode fixed,gte=0"`
	PrefixBytes   int    `mapstructure:"prefix_bytes" validate:"oneof=1 2 4 8"`
	Endian        string `mapstructure:"endian" validate:"oneof=big little"`
	IncludePrefix bool   `mapstructure:"include_prefix"`
}

// frames slices binary content into Raw records at frame boundaries, either
// every width bytes or by a length prefix preceding each frame.
type frames struct {
	base
	opts  framesOptions
	order binary.ByteOrder
}

func newFrames(spec Spec) (Operator, error) {
	opts := framesOptions{Mode: "fixed", PrefixBytes: 4, Endian: "big"}
	if _, ok := spec.Options["mode"]; !ok {
		if _, ok := spec.Options["prefix_bytes"]; ok {
			opts.Mode = "length"
		}
	}
	if err := validation.Decode(spec.Label(), spec.Options, &opts); err != nil {
		return nil, err
	}
	op := &frames{base: base{spec}, opts: opts, order: binary.BigEndian}
	if opts.Endian == "little" {
		op.order = binary.LittleEndian
	}
	return op, nil
}

func (f *frames) Apply(_ *Env, in *stream.Stream[record.Record]) *stream.Stream[record.Record] {
	return stream.Transform(in, func() stream.Stage[record.Record, record.Record] {
		return &framesStage{f: f}
	})
}

type framesStage struct {
	f       *frames
	pending carry
}

func (s *framesStage) Step(_ context.Context, r record.Record, emit func(record.Record)) error {
	data, off, ok := bytesOf(r)
	if !ok {
		emit(r)
		return nil
	}
	s.pending.append(data, off)
	consumed := 0
	for {
		head, body, ok := s.next(s.pending.data[consumed:])
		if !ok {
			break
		}
		from := consumed + head
		if s.f.opts.IncludePrefix {
			from = consumed
		}
		to := consumed + head + body
		frame := append([]byte(nil), s.pending.data[from:to]...)
		emit(record.NewRaw(frame, s.pending.span(from, to)))
		consumed = to
	}
	s.pending.drop(consumed)
	return nil
}

// next reports the header and body length of the frame at the start of buf,
// and whether buf holds all of it.
func (s *framesStage) next(buf []byte) (head, body int, ok bool) {
	if s.f.opts.Mode == "fixed" {
		w := s.f.opts.Width
		return 0, w, len(buf) >= w
	}
	n := s.f.opts.PrefixBytes
	if len(buf) < n {
		return 0, 0, false
	}
	length := s.length(buf[:n])
	if length > uint64(len(buf)-n) {
		return 0, 0, false
	}
	return n, int(length), true
}

func (s *framesStage) length(prefix []byte) uint64 {
	switch len(prefix) {
	case 1:
		return uint64(prefix[0])
	case 2:
		return uint64(s.f.order.Uint16(prefix))
	case 4:
		return uint64(s.f.order.Uint32(prefix))
	case 8:
		return s.f.order.Uint64(prefix)
	default:
		panic(fmt.Sprintf("frames: unsupported prefix width %d", len(prefix)))
	}
}

func (s *framesStage) Finish(_ context.Context, emit func(record.Record)) error {
	rest := s.pending.data
	if len(rest) == 0 {
		return nil
	}
	want := s.f.opts.Width
	if s.f.opts.Mode == "length" {
		want = s.f.opts.PrefixBytes
		if len(rest) >= want {
			want += int(min(s.length(rest[:want]), uint64(1<<31)))
		}
	}
	out := record.NewRaw(append([]byte(nil), rest...), s.pending.span(0, len(rest)))
	out.Incomplete = true
	out.Issue = fmt.Sprintf("trailing partial frame: %d of %d bytes", len(rest), want)
	s.pending.drop(len(rest))
	emit(out)
	return nil
}
