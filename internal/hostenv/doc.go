// Package hostenv owns host preflight checks.
//
// Ownership boundary:
// - effective privilege detection and sudo re-exec
// - nbd kernel module presence and on-demand loading
// - nbd-client binary resolution
//
// Everything here runs once at startup, before any session resource exists.
package hostenv
