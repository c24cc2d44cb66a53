// Package console owns the single connection to the game's remote console.
//
// Ownership boundary:
// - dialing with bounded retries and backoff
// - one in-flight script at a time
// - dropping a broken connection so the next send reconnects
//
// Scripts are never re-sent after they reach the wire; only dialing is retried.
package console
