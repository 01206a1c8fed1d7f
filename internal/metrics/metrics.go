package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	billingEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teamsaas",
		Subsystem: "billing",
		Name:      "events_total",
		Help:      "Counter of verified payment processor events by type and outcome",
	}, []string{"type", "outcome"})

	invoiceAttributionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teamsaas",
		Subsystem: "billing",
		Name:      "invoice_attribution_total",
		Help:      "Counter of invoice owner resolutions",
	}, []string{"outcome"})

	membershipOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teamsaas",
		Subsystem: "teams",
		Name:      "membership_operations_total",
		Help:      "Counter of team membership operations by outcome",
	}, []string{"operation", "outcome"})
)

const (
	AttributionMatched      = "matched"
	AttributionFallback     = "fallback"
	AttributionUnattributed = "unattributed"
)

func RegisterMetrics(reg prometheus.Registerer) error {
	metrics := []prometheus.Collector{
		billingEventsTotal,
		invoiceAttributionTotal,
		membershipOperationsTotal,
	}
	for _, metric := range metrics {
		if err := reg.Register(metric); err != nil {
			return errors.Wrap(err, "failed to register metric")
		}
	}
	return nil
}

func ReportBillingEvent(eventType, outcome string) {
	billingEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func ReportInvoiceAttribution(outcome string) {
	invoiceAttributionTotal.WithLabelValues(outcome).Inc()
}

// ReportMembershipOperation counts err as "fail", anything else as "success".
func ReportMembershipOperation(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "fail"
	}
	membershipOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// InvoiceAttributions exposes the attribution counter for assertions in tests.
func InvoiceAttributions(outcome string) prometheus.Counter {
	return invoiceAttributionTotal.WithLabelValues(outcome)
}

func BillingEvents(eventType, outcome string) prometheus.Counter {
	return billingEventsTotal.WithLabelValues(eventType, outcome)
}
