package session

import (
	"github.com/jae-editor/operate/buffer"
	"github.com/jae-editor/operate/record"
)

// adjust moves region to follow change and reports whether the change touched
// the region. A change ending at or before the region start shifts it; one
// starting at or after its end leaves it alone. An overlapping change widens
// the region to cover everything replaced. An empty region is touched by a
// change at its position.
func adjust(region record.Range, c buffer.Change) (record.Range, bool) {
	nonEmpty := region.Len() > 0
	switch {
	case c.End < region.Start || (nonEmpty && c.End == region.Start):
		d := c.Delta()
		return record.Range{Start: region.Start + d, End: region.End + d}, false
	case c.Start > region.End || (nonEmpty && c.Start == region.End):
		return region, false
	default:
		return record.Range{
			Start: min(region.Start, c.Start),
			End:   max(region.End, c.End) + c.Delta(),
		}, true
	}
}
