// Package snapshot publishes the game's state export as per-field bus
// topics, suppressing payloads identical to the last one sent.
//
// Topic layout under the configured prefix:
//
//	<prefix>/<category>/<type_slug>                 [{"id": ...}, ...]
//	<prefix>/<category>/<type_slug>/<id>/<field>    one JSON value
package snapshot
