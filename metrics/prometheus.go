package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder records trust-verification metrics using Prometheus.
type PrometheusRecorder struct {
	configurationRefreshTotal  *prometheus.CounterVec
	signatureVerificationTotal *prometheus.CounterVec
}

// NewPrometheusRecorder creates a Prometheus recorder using the default
// Prometheus registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	return NewPrometheusRecorderWithRegistry(prometheus.DefaultRegisterer)
}

// NewPrometheusRecorderWithRegistry creates a Prometheus recorder with a
// custom registry. Use this for testing.
func NewPrometheusRecorderWithRegistry(reg prometheus.Registerer) *PrometheusRecorder {
	configurationRefreshTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identitymodel_configuration_refresh_total",
		Help: "Total trust configuration refresh attempts",
	}, []string{"address", "result"})

	signatureVerificationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identitymodel_signature_verifications_total",
		Help: "Total token signature verification attempts",
	}, []string{"result"})

	reg.MustRegister(
		configurationRefreshTotal,
		signatureVerificationTotal,
	)

	return &PrometheusRecorder{
		configurationRefreshTotal:  configurationRefreshTotal,
		signatureVerificationTotal: signatureVerificationTotal,
	}
}

// RecordConfigurationRefresh records a configuration refresh attempt.
func (p *PrometheusRecorder) RecordConfigurationRefresh(address string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	p.configurationRefreshTotal.WithLabelValues(address, result).Inc()
}

// RecordSignatureVerification records a token signature verification outcome.
func (p *PrometheusRecorder) RecordSignatureVerification(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	p.signatureVerificationTotal.WithLabelValues(result).Inc()
}

// Ensure PrometheusRecorder implements Recorder
var _ Recorder = (*PrometheusRecorder)(nil)
