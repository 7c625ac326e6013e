package record

import (
	"encoding/json"
	"io"
)

// AppendEncoded appends the byte serialisation of r to dst:
//
//	Raw:        bytes verbatim
//	Line:       text followed by its terminator
//	Structured: one JSON object, fields in order, followed by "\n"
func AppendEncoded(dst []byte, r Record) ([]byte, error) {
	return Switch(r,
		func(v *Raw) encoded {
			return encoded{append(dst, v.Bytes...), nil}
		},
		func(v *Line) encoded {
			dst = append(dst, v.Text...)
			return encoded{append(dst, v.Terminator...), nil}
		},
		func(v *Structured) encoded {
			b, err := json.Marshal(v.Fields)
			if err != nil {
				return encoded{dst, err}
			}
			dst = append(dst, b...)
			return encoded{append(dst, '\n'), nil}
		},
	).unpack()
}

type encoded struct {
	b   []byte
	err error
}

func (e encoded) unpack() ([]byte, error) { return e.b, e.err }

// Encode returns the byte serialisation of r.
func Encode(r Record) ([]byte, error) {
	return AppendEncoded(nil, r)
}

// EncodeAll concatenates the serialisation of every record.
func EncodeAll(records []Record) ([]byte, error) {
	var out []byte
	var err error
	for _, r := range records {
		if out, err = AppendEncoded(out, r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Writer serialises records onto an io.Writer.
type Writer struct {
	w   io.Writer
	buf []byte
	n   int64
}

// NewWriter returns a Writer writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write serialises r.
func (w *Writer) Write(r Record) error {
	var err error
	w.buf, err = AppendEncoded(w.buf[:0], r)
	if err != nil {
		return err
	}
	n, err := w.w.Write(w.buf)
	w.n += int64(n)
	return err
}

// Written returns the number of bytes written so far.
func (w *Writer) Written() int64 { return w.n }
