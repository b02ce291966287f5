// Package events carries poller state changes to interested consumers.
//
// A poller publishes an Update every time the state it exposes changes: a new
// snapshot was applied, a transient query error appeared or cleared, or the
// polling loop came to an end. Consumers register a Handler with an Emitter
// and never read poller internals directly, which keeps presentation layers,
// journals and CLIs decoupled from the reconciliation loop.
//
// The primary components are:
// - Update: an immutable copy of one poller's visible state
// - Handler: interface for components that consume updates
// - InMemoryEmitter: dispatches updates to registered handlers in order
package events
