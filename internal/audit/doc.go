// Package audit implements async event dispatching for security-relevant
// operations of the session core: token reuse detection, IP blocks, and
// circuit state changes.
//
//   - [Sink] — interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher] — buffered async relay with drop-if-full / block-if-full
//     semantics.
//   - [Event] — structured audit record.
//
// This package owns event buffering and sink delivery. It does NOT decide
// which events to emit — that responsibility belongs to the engine and
// guards. It must not import the root package or perform network I/O beyond
// what a caller-supplied Sink does.
package audit
