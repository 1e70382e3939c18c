// Package metrics exposes Prometheus counters for sale submissions and
// installment payments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Recorder struct {
	salesSubmitted    *prometheus.CounterVec
	saleFailures      *prometheus.CounterVec
	installmentsPaid  prometheus.Counter
	summaryCacheReads *prometheus.CounterVec
}

// New registers the collectors on reg. A nil registerer leaves them
// unregistered, which tests rely on to avoid duplicate registration.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		salesSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caderninho",
			Name:      "sales_submitted_total",
			Help:      "Sales fully persisted, by payment type.",
		}, []string{"payment_type"}),
		saleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caderninho",
			Name:      "sale_submit_failures_total",
			Help:      "Sale submissions that failed, by failing step.",
		}, []string{"step"}),
		installmentsPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "caderninho",
			Name:      "installments_paid_total",
			Help:      "Installments transitioned to pago.",
		}),
		summaryCacheReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caderninho",
			Name:      "summary_cache_reads_total",
			Help:      "Ledger summary cache lookups, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(r.salesSubmitted, r.saleFailures, r.installmentsPaid, r.summaryCacheReads)
	}
	return r
}

func (r *Recorder) SaleSubmitted(paymentType string) {
	if r == nil {
		return
	}
	r.salesSubmitted.WithLabelValues(paymentType).Inc()
}

func (r *Recorder) SaleFailed(step string) {
	if r == nil {
		return
	}
	r.saleFailures.WithLabelValues(step).Inc()
}

func (r *Recorder) InstallmentPaid() {
	if r == nil {
		return
	}
	r.installmentsPaid.Inc()
}

func (r *Recorder) SummaryCacheRead(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.summaryCacheReads.WithLabelValues(result).Inc()
}
