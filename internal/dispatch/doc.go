// Package dispatch turns inbound bus commands into console round-trips or
// catalog lookups and publishes exactly one response per message.
//
// Lifecycle per message:
// received -> resolved -> executed -> published
// received -> rejected (unreadable envelope, unknown verb)
// received -> resolved -> failed (validation, console or decode error)
package dispatch
