// Package operator defines the pipeline stage contract and the built-in
// operators.
//
// An operator is built from a Spec (kind, optional display name and an option
// map). Options are decoded into an operator-specific struct and validated at
// construction, so a misconfigured stage never reaches the executor.
//
// Whether a kind is a barrier (must consume its whole input before emitting)
// is a static property of the kind, looked up with Kind.Capability. The
// executor uses it to decide where materialisation happens without running
// anything.
//
// Built-in kinds:
//
//	parse:     lines, table, kv, frames
//	filter:    filter
//	map:       map
//	aggregate: aggregate (barrier)
//	sort:      sort (barrier), dedup
//	external:  external (barrier)
//	render:    render
package operator
