package operator

import (
	"bytes"

	"github.com/jae-editor/operate/record"
)

// carry holds bytes left over between input records together with the
// source offset of every contiguous segment, so that content joined across a
// gap in the input still maps back to the bytes it came from.
type carry struct {
	data []byte
	segs []segment
}

// segment marks that data[at:] starts at source offset off, up to the next
// segment.
type segment struct {
	at  int
	off int64
}

func (c *carry) append(data []byte, off int64) {
	if len(data) == 0 {
		return
	}
	if len(c.data) == 0 || c.offset(len(c.data)) != off {
		c.segs = append(c.segs, segment{at: len(c.data), off: off})
	}
	c.data = append(c.data, data...)
}

// offset returns the source offset of data[i]. i == len(data) gives the offset
// just past the last byte.
func (c *carry) offset(i int) int64 {
	for j := len(c.segs) - 1; j >= 0; j-- {
		if seg := c.segs[j]; seg.at <= i {
			return seg.off + int64(i-seg.at)
		}
	}
	return 0
}

// span returns the source range covering data[from:to].
func (c *carry) span(from, to int) record.Range {
	if to <= from {
		off := c.offset(from)
		return record.Range{Start: off, End: off}
	}
	return record.Range{Start: c.offset(from), End: c.offset(to-1) + 1}
}

// drop discards the first n bytes.
func (c *carry) drop(n int) {
	if n <= 0 {
		return
	}
	if n >= len(c.data) {
		c.data, c.segs = nil, nil
		return
	}
	segs := []segment{{at: 0, off: c.offset(n)}}
	for _, seg := range c.segs {
		if seg.at > n {
			segs = append(segs, segment{at: seg.at - n, off: seg.off})
		}
	}
	c.data = append([]byte(nil), c.data[n:]...)
	c.segs = segs
}

// lineSplitter cuts a byte stream into lines, carrying partial lines across
// record boundaries.
type lineSplitter struct {
	delim   []byte
	stripCR bool
	pending carry
	number  int
}

func newLineSplitter(delim string, stripCR bool) *lineSplitter {
	return &lineSplitter{delim: []byte(delim), stripCR: stripCR}
}

// feed appends data, read at offset off, and emits every complete line.
func (s *lineSplitter) feed(data []byte, off int64, emit func(*record.Line)) {
	scanFrom := max(len(s.pending.data)-len(s.delim)+1, 0)
	s.pending.append(data, off)
	consumed := 0
	for {
		idx := bytes.Index(s.pending.data[scanFrom:], s.delim)
		if idx < 0 {
			break
		}
		end := scanFrom + idx
		s.emitLine(consumed, end, string(s.delim), emit)
		consumed = end + len(s.delim)
		scanFrom = consumed
	}
	s.pending.drop(consumed)
}

// flush emits the trailing partial line, if any, flagged incomplete.
func (s *lineSplitter) flush(emit func(*record.Line)) {
	n := len(s.pending.data)
	if n == 0 {
		return
	}
	s.number++
	emit(&record.Line{
		Text:   string(s.pending.data),
		Number: s.number,
		Meta: record.Meta{
			Span:       s.pending.span(0, n),
			Incomplete: true,
		},
	})
	s.pending.drop(n)
}

func (s *lineSplitter) emitLine(from, to int, term string, emit func(*record.Line)) {
	s.number++
	text := s.pending.data[from:to]
	if s.stripCR && len(text) > 0 && text[len(text)-1] == '\r' {
		text = text[:len(text)-1]
		to--
		term = "\r" + term
	}
	emit(record.NewLine(string(text), s.number, term, s.pending.span(from, to)))
}

// bytesOf returns the byte content and source offset of a Raw or Line record.
// Structured records have no byte form and report ok=false.
func bytesOf(r record.Record) (data []byte, off int64, ok bool) {
	type view struct {
		data []byte
		ok   bool
	}
	v := record.Switch(r,
		func(x *record.Raw) view { return view{x.Bytes, true} },
		func(x *record.Line) view { return view{[]byte(x.Text + x.Terminator), true} },
		func(*record.Structured) view { return view{nil, false} },
	)
	return v.data, r.Info().Span.Start, v.ok
}
