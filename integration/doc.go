// Package integration provides end-to-end tests for the qwatch library.
//
// The tests drive the whole stack the way a syncing phone app would:
// handshake, confirmation, configuration upload, and an encrypted activity
// fetch with telemetry decoding. They run against the in-process simulated
// watch, so no hardware or BLE stack is required.
package integration

// TestSuiteVersion returns version information for the integration test suite.
func TestSuiteVersion() string {
	return "qwatch integration tests v1.0.0"
}
