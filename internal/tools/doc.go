// Package tools provides the external command execution boundary.
//
// Ownership boundary:
// - the CommandRunner abstraction and its process-spawning implementation
//
// Everything that shells out (modprobe, lsmod, nbd-client, the backend
// launch) goes through a CommandRunner so tests can substitute fakes.
package tools
