package sink

import (
	"encoding/hex"
	"unicode/utf8"

	"github.com/jae-editor/operate/record"
)

// maxRawPreview caps the bytes of a Raw record shown in a row.
const maxRawPreview = 64

// Row is the display form of one output record.
type Row struct {
	Kind       record.Kind  `json:"kind"`
	Text       string       `json:"text"`
	Span       record.Range `json:"span"`
	Issue      string       `json:"issue,omitempty"`
	Incomplete bool         `json:"incomplete,omitempty"`
}

// Degraded reports whether the record carried a recoverable problem.
func (r Row) Degraded() bool { return r.Issue != "" }

// RowOf converts r for display. Raw bytes that are not valid UTF-8 are shown
// as hex.
func RowOf(r record.Record) Row {
	info := r.Info()
	text := record.Switch(r,
		func(raw *record.Raw) string {
			b := raw.Bytes
			if utf8.Valid(b) {
				return string(b)
			}
			if len(b) > maxRawPreview {
				return hex.EncodeToString(b[:maxRawPreview]) + "…"
			}
			return hex.EncodeToString(b)
		},
		func(l *record.Line) string { return l.Text },
		func(s *record.Structured) string {
			b, err := s.Fields.MarshalJSON()
			if err != nil {
				return err.Error()
			}
			return string(b)
		},
	)
	return Row{Kind: r.Kind(), Text: text, Span: info.Span, Issue: info.Issue, Incomplete: info.Incomplete}
}
