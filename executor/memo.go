package executor

import "github.com/jae-editor/operate/record"

type memoKey struct {
	stage int
	gen   uint64
}

// memoTable holds the complete outputs of stages, keyed by stage index and
// the generation the stage had when it ran.
type memoTable struct {
	entries map[memoKey][]record.Record
}

func newMemoTable() *memoTable {
	return &memoTable{entries: make(map[memoKey][]record.Record)}
}

func (m *memoTable) get(stage int, gen uint64) ([]record.Record, bool) {
	r, ok := m.entries[memoKey{stage, gen}]
	return r, ok
}

func (m *memoTable) put(stage int, gen uint64, records []record.Record) {
	m.entries[memoKey{stage, gen}] = records
}

// prune drops every entry that no longer matches the current generations.
func (m *memoTable) prune(gens []uint64) {
	for k := range m.entries {
		if k.stage >= len(gens) || gens[k.stage] != k.gen {
			delete(m.entries, k)
		}
	}
}

func (m *memoTable) clear() { clear(m.entries) }

func (m *memoTable) len() int { return len(m.entries) }

// recorder tees a stage's output while it is pulled. It gives up once the
// output exceeds limit records.
type recorder struct {
	limit     int
	records   []record.Record
	abandoned bool
}

func newRecorder(limit int) *recorder {
	return &recorder{limit: limit, abandoned: limit < 0}
}

func (r *recorder) add(rec record.Record) {
	if r.abandoned {
		return
	}
	if len(r.records) >= r.limit {
		r.abandoned = true
		r.records = nil
		return
	}
	r.records = append(r.records, rec)
}
