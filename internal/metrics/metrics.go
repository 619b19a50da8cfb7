// Package metrics defines the Prometheus collectors exported on /metrics. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	verifications       *prometheus.CounterVec
	auditWriteFailures  prometheus.Counter
	certificatesCreated *prometheus.CounterVec
	publicationConfirms prometheus.Counter
	staleBatchItems     prometheus.Counter
	ledgerPublishes     *prometheus.CounterVec
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.verifications = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certverify_verifications_total",
			Help: "verification attempts by outcome and method",
		},
		[]string{"outcome", "method"},
	)
	m.auditWriteFailures = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "certverify_audit_write_failures_total",
			Help: "verification log appends that failed",
		},
	)
	m.certificatesCreated = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certverify_certificates_created_total",
			Help: "certificates stored, by ingestion source",
		},
		[]string{"source"},
	)
	m.publicationConfirms = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "certverify_publication_confirmed_total",
			Help: "certificates moved to published",
		},
	)
	m.staleBatchItems = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "certverify_publication_skipped_items_total",
			Help: "batch items skipped on confirmation",
		},
	)
	m.ledgerPublishes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certverify_ledger_publishes_total",
			Help: "ledger submissions by result",
		},
		[]string{"result"},
	)
	return m
}

func (m *Metrics) Verification(outcome, method string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome, method).Inc()
}

func (m *Metrics) AuditWriteFailed() {
	if m == nil {
		return
	}
	m.auditWriteFailures.Inc()
}

func (m *Metrics) CertificateCreated(source string) {
	if m == nil {
		return
	}
	m.certificatesCreated.WithLabelValues(source).Inc()
}

func (m *Metrics) PublicationConfirmed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.publicationConfirms.Add(float64(n))
}

func (m *Metrics) BatchItemsSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.staleBatchItems.Add(float64(n))
}

// LedgerPublish counts one submission; ok is false when the publisher returned an error.
func (m *Metrics) LedgerPublish(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.ledgerPublishes.WithLabelValues(result).Inc()
}
