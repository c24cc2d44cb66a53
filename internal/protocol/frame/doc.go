// Package frame owns newline-delimited text framing for line consoles.
//
// Ownership boundary:
// - one request or reply per line
// - size limits on read and write
// - flattening multi-line scripts into a single frame
package frame
