// Package harness runs reconciliation scenarios as executable contract tests.
//
// A scenario loads a document into an in-memory tree, expresses caller
// intent through a sequence of steps, lets the engine tick, and asserts on
// the resulting tree, the patch trace and handler call counts.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: toggle_class
//	description: "A click handler writes a class in the same tick"
//	document: '<div id="box"></div>'
//	steps:
//	  - op: on
//	    select: "#box"
//	    event: click
//	    handler: toggle
//	    set: { class: "open" }
//	  - op: tick
//	  - op: trigger
//	    select: "#box"
//	    event: click
//	assertions:
//	  - type: attr
//	    select: "#box"
//	    key: class
//	    expect: open
//	  - type: handler_calls
//	    handler: toggle
//	    count: 1
//
// # Step Ops
//
//   - attr, remove_attr, text: write desired state on every match
//   - append: parse markup into a fragment and append it
//   - on, off, trigger: event binding intents
//   - ready: register a document-ready callback, optionally filtered
//   - call: invoke a registered plugin
//   - tick: advance the host Count ticks (default one)
//
// # Assertion Types
//
//   - attr: attribute value (or absence) on the first match
//   - text: text content of the first match
//   - html: rendered markup of the first match
//   - patch_count: number of patches, optionally of one op
//   - handler_calls: number of calls of a named handler
//
// # Deterministic Testing
//
// Run drives the engine from a manually stepped scheduler and a fixed
// session token, so the same scenario always produces a byte-identical
// trace for golden comparison. RunLive runs the same scenario on a real
// host loop.
package harness
