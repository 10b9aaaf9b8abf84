// Package metrics defines the narrow recording port consumed by the
// configuration and token layers, with Prometheus and no-op implementations.
package metrics

// Recorder records trust-verification events for monitoring.
type Recorder interface {
	// RecordConfigurationRefresh records a configuration refresh attempt
	// against a metadata address.
	RecordConfigurationRefresh(address string, success bool)

	// RecordSignatureVerification records the outcome of a token signature
	// verification.
	RecordSignatureVerification(success bool)
}

// NoopRecorder discards all recordings. Use when metrics are not wired.
type NoopRecorder struct{}

// NewNoopRecorder creates a no-op metrics recorder.
func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

// RecordConfigurationRefresh does nothing.
func (n *NoopRecorder) RecordConfigurationRefresh(string, bool) {}

// RecordSignatureVerification does nothing.
func (n *NoopRecorder) RecordSignatureVerification(bool) {}

// Ensure NoopRecorder implements Recorder
var _ Recorder = (*NoopRecorder)(nil)
