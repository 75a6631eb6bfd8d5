// Package harness runs YAML submission scenarios against the commit
// pipeline and records a deterministic trace for golden comparison.
//
// A scenario names one object, an optional initial document and an
// ordered list of submissions. Each submission carries the base revision
// its client saw, so concurrent editing is expressed as several steps
// sharing a stale base. Steps run sequentially against a fresh store
// with a fixed clock and request ids, which makes the trace
// reproducible:
//
//	name: concurrent-field-writes
//	description: two clients edit different fields from the same base
//	object: gym/boulder/wall-7
//	initial: {color: blue}
//	steps:
//	  - client: alice
//	    base: 1
//	    patches: [{op: set, path: color, value: red}]
//	    expect: {revision: 2}
//	assertions:
//	  - {type: value, value: {color: red}}
//
// Golden files hold the trace in JSON lines, one event per line.
package harness
