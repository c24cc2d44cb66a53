// Package reply turns raw console output into structured results.
package reply
