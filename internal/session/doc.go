// Package session owns the attach-to-detach lifecycle state.
//
// Ownership boundary:
// - ephemeral resource provisioning and ownership tracking
// - rollback of partially created resources
// - the teardown plan, its inline executor and the generated script
// - the foreground/daemon session runner state machine
//
// Every ephemeral artifact has exactly one owner: the Session. Only handles
// the session created are ever deleted; caller-supplied paths survive both
// rollback and teardown.
package session
