// Package session implements the remote-access session lifecycle and
// connection-health engine.
//
// A [Session] is one operator-initiated engagement with a managed device. It
// owns the session status ([StatusActive], [StatusDegraded],
// [StatusReconnecting], [StatusExpired]), an [ExpiryClock] that counts down to
// the hard expiry, a [Sampler] that periodically measures connection quality,
// and an [Arbiter] that keeps exactly one transport-facing [SubSession]
// (terminal or framebuffer) active at a time.
//
// # Concurrency
//
// Every session runs a single event loop goroutine. The expiry clock ticker,
// the active sub-session's background ticker, one-shot delays (connect,
// reconnect, command response) and caller commands are all funneled into that
// loop, so session state is only ever mutated by one goroutine. The sampler
// probes on its own goroutine (a real probe may block on the network) and
// posts its results into the loop.
//
// Events that become ready in the same wake-up are applied in a fixed order:
//
//  1. Expiry check. Once the expiry time is reached the session moves to
//     [StatusExpired] before anything else is looked at.
//  2. Caller commands (Extend, End, ManualReconnect, SelectView, SubmitCommand,
//     PointerEvent) in arrival order.
//  3. Automatic events (clock ticks, samples, transport faults, due one-shot
//     tasks, sub-session ticks) in timestamp order.
//
// Listeners registered with [Session.OnUpdate] are invoked on the loop
// goroutine after the state lock is released. They must not block and must
// not call back into the session synchronously.
//
// # Teardown
//
// [Session.End] stops every ticker, drops every pending one-shot task, stops
// the sampler and waits for it to exit before the teardown callback in
// [Options.OnEnd] runs. Nothing fires for a session after End returns.
//
// # Log Prefixes
//
// Session loops log at the [session] prefix, the sampler at [sampler] and the
// manager at [session-mgr].
package session
