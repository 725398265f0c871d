// Package backend owns the storage backend process boundary.
//
// Ownership boundary:
// - launching the backend with the session's socket and log destination
// - parsing the "<pid> <blocksize>" startup handshake
// - waiting for the rendezvous socket to appear
//
// The backend's storage semantics are external; only its CLI contract lives
// here.
package backend
