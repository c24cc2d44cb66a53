// Package bridge owns the process lifecycle: bootstrap of the catalog,
// console session and bus, the command and snapshot loops, and the admin
// HTTP surface.
package bridge
