package operator

import (
	"slices"
	"sort"
)

// Kind names an operator type.
type Kind string

const (
	KindLines     Kind = "lines"
	KindTable     Kind = "table"
	KindKV        Kind = "kv"
	KindFrames    Kind = "frames"
	KindFilter    Kind = "filter"
	KindMap       Kind = "map"
	KindAggregate Kind = "aggregate"
	KindSort      Kind = "sort"
	KindDedup     Kind = "dedup"
	KindExternal  Kind = "external"
	KindRender    Kind = "render"
)

// Category groups kinds by the role they play in a pipeline.
type Category string

const (
	CategoryParse     Category = "parse"
	CategoryFilter    Category = "filter"
	CategoryMap       Category = "map"
	CategoryAggregate Category = "aggregate"
	CategorySort      Category = "sort"
	CategoryExternal  Category = "external"
	CategoryRender    Category = "render"
)

// Capability describes the static scheduling properties of a kind.
type Capability struct {
	Category Category
	// Barrier kinds consume their whole input before emitting anything.
	Barrier bool
	// SideEffects kinds touch the world outside the pipeline.
	SideEffects bool
}

var capabilities = map[Kind]Capability{
	KindLines:     {Category: CategoryParse},
	KindTable:     {Category: CategoryParse},
	KindKV:        {Category: CategoryParse},
	KindFrames:    {Category: CategoryParse},
	KindFilter:    {Category: CategoryFilter},
	KindMap:       {Category: CategoryMap},
	KindAggregate: {Category: CategoryAggregate, Barrier: true},
	KindSort:      {Category: CategorySort, Barrier: true},
	KindDedup:     {Category: CategorySort},
	KindExternal:  {Category: CategoryExternal, Barrier: true, SideEffects: true},
	KindRender:    {Category: CategoryRender},
}

// Capability returns the capability of k and whether k is a built-in kind.
func (k Kind) Capability() (Capability, bool) {
	c, ok := capabilities[k]
	return c, ok
}

// IsBarrier reports whether k must materialise its input.
func (k Kind) IsBarrier() bool {
	c, _ := k.Capability()
	return c.Barrier
}

// Kinds returns the built-in kinds in name order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(capabilities))
	for k := range capabilities {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Barriers returns the indexes of the barrier stages among specs.
func Barriers(specs []Spec) []int {
	var idx []int
	for i, s := range specs {
		if s.Kind.IsBarrier() {
			idx = append(idx, i)
		}
	}
	return slices.Clip(idx)
}
