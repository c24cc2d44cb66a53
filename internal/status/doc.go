// Package status decodes entity status bitmasks reported by the simulation.
//
// Two independent tables:
// - Flags enumerates every defined bit in ascending order
// - Priority orders human labels by operator importance, not bit value
package status
