// Package engine implements the deferred, batched reconciliation engine.
//
// Callers never mutate external objects directly. They select objects into
// proxy collections and write intent (desired state); the engine queues
// every touched node and, once per host tick, flushes the queue through an
// ordered list of notification hooks that diff desired against observed
// state and apply the minimal set of external mutations.
//
// ARCHITECTURE:
//
// Identity:
// Every external object gets a registry index on first observation. The
// index never changes, so any number of nodes may view the same object.
// Selection reuses one canonical node per identity.
//
// Tick Processing Flow:
// 1. Chainable writes on a Collection update Desired and call Enqueue
// 2. Ticker fires on the host scheduler and calls Flush
// 3. Flush drains the queue to empty, including nodes enqueued mid-flush
// 4. Each notify hook runs per node, in registration order
// 5. AttributeHook applies appends, text, attributes then removals
// 6. Deferred nodes (documents not ready yet) are requeued for the next tick
//
// Hooks must be idempotent: the queue allows duplicates, and a node may be
// dequeued more than once per flush.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every flush takes the next tick from Clock.Next(). Journaled patches are
// stamped with it. NEVER use wall-clock time for ordering.
//
// Deterministic Scheduling:
// Hooks run in registration order. Attribute keys are applied in sorted
// order. Hook errors are logged and processing continues.
package engine
