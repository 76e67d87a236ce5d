// Package typedipc is a typed inter-process messaging runtime for
// applications split into one main process and many renderer windows. It is
// built on Watermill: every call, event, and stream chunk travels as a
// Watermill message over a pluggable bridge (in-memory Go channels for a
// single process, NATS across processes).
//
// The main process hosts a Service: it owns the window registry, the handler
// tables, the stream engine, and the renderer-to-renderer router. Each
// renderer window hosts a Client bound to its window id. Four call patterns
// are supported:
//
//   - invoke: renderer-to-main (or main-to-window) request with exactly one
//     reply or one error envelope
//   - event: fire-and-forget in either direction
//   - broadcast: main-to-all-windows or main-to-role fan-out
//   - stream: chunked transfers with ordering, backpressure, and
//     cancellation (upload, download, and stream-invoke)
//
// Errors crossing the process boundary are serialized into envelopes and
// reconstructed on the far side, so validation errors keep their issue lists
// and handler errors keep their codes. A bounded inspector retains the most
// recent exchanges and can serve them over a diagnostics HTTP API.
//
// A minimal setup fills Config, creates a Service, registers windows and
// handlers, and calls Start; renderer peers mirror that with NewClient. See
// the examples directory for runnable end-to-end setups.
package typedipc
