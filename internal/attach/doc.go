// Package attach owns the session lifecycle pipeline.
//
// Ownership boundary:
// - ordering: module check -> client lookup -> device discovery ->
//   provisioning -> backend launch -> readiness -> kernel bind -> run
// - the rollback and inline-teardown decisions on each failure path
// - mapping failures to process exit codes
//
// The pipeline is strictly sequential; the kernel bind is never attempted
// before the handshake has completed and the socket exists.
package attach
