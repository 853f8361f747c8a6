package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for booking flows.
type BookingMetrics struct {
	createdTotal        *prometheus.CounterVec
	rejectionsTotal     *prometheus.CounterVec
	transitionsTotal    *prometheus.CounterVec
	availabilityLatency *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		createdTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barbershop",
			Subsystem: "bookings",
			Name:      "created_total",
			Help:      "Total bookings created",
		}, []string{"provider_id"}),
		rejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barbershop",
			Subsystem: "bookings",
			Name:      "rejections_total",
			Help:      "Booking requests refused by reason",
		}, []string{"operation", "reason"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barbershop",
			Subsystem: "bookings",
			Name:      "transitions_total",
			Help:      "Booking status transitions applied",
		}, []string{"from", "to", "actor"}),
		availabilityLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "barbershop",
			Subsystem: "bookings",
			Name:      "availability_latency_seconds",
			Help:      "Latency of availability queries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"working"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.createdTotal, m.rejectionsTotal, m.transitionsTotal, m.availabilityLatency)
	return m
}

func (m *BookingMetrics) ObserveCreated(providerID string) {
	if m == nil {
		return
	}
	m.createdTotal.WithLabelValues(providerID).Inc()
}

func (m *BookingMetrics) ObserveRejection(operation, reason string) {
	if m == nil {
		return
	}
	m.rejectionsTotal.WithLabelValues(operation, reason).Inc()
}

func (m *BookingMetrics) ObserveTransition(from, to, actor string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to, actor).Inc()
}

func (m *BookingMetrics) ObserveAvailability(working bool, seconds float64) {
	if m == nil {
		return
	}
	label := "false"
	if working {
		label = "true"
	}
	m.availabilityLatency.WithLabelValues(label).Observe(seconds)
}

// PaymentMetrics tracks reconciliation and gateway calls.
type PaymentMetrics struct {
	reconcileTotal *prometheus.CounterVec
	gatewayLatency *prometheus.HistogramVec
	webhookTotal   *prometheus.CounterVec
}

func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	m := &PaymentMetrics{
		reconcileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barbershop",
			Subsystem: "payments",
			Name:      "reconcile_total",
			Help:      "Payment events reconciled by source and outcome",
		}, []string{"source", "outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "barbershop",
			Subsystem: "payments",
			Name:      "gateway_latency_seconds",
			Help:      "Latency of payment provider calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barbershop",
			Subsystem: "payments",
			Name:      "webhook_total",
			Help:      "Inbound payment webhooks by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reconcileTotal, m.gatewayLatency, m.webhookTotal)
	return m
}

func (m *PaymentMetrics) ObserveReconcile(source, outcome string) {
	if m == nil {
		return
	}
	m.reconcileTotal.WithLabelValues(source, outcome).Inc()
}

func (m *PaymentMetrics) ObserveGateway(operation string, err error, seconds float64) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.gatewayLatency.WithLabelValues(operation, status).Observe(seconds)
}

func (m *PaymentMetrics) ObserveWebhook(result string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(result).Inc()
}
