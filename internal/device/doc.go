// Package device owns nbd device node selection and kernel binding.
//
// Ownership boundary:
// - free device node discovery via the client utility's probe mode
// - attaching a device node to a backend socket
// - detach is owned by the session teardown plan, not this package
package device
