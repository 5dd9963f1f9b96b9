package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics содержит метрики жизненного цикла броней.
type BookingMetrics struct {
	// Счётчики переходов
	bookingsCreated   prometheus.Counter
	bookingsCompleted prometheus.Counter
	bookingsConfirmed prometheus.Counter
	bookingsCanceled  prometheus.Counter

	// Счётчик неудачных сверок по причинам
	verifyFailed *prometheus.CounterVec

	// Гистограмма времени сверки оплаты
	verifyDuration prometheus.Histogram

	// Счётчики сопутствующих событий
	outboxEvents   prometheus.Counter
	auditEvents    prometheus.Counter
	mileageCredits prometheus.Counter

	// Gauge активных сверок
	activeVerifications prometheus.Gauge
}

// NewBookingMetrics создаёт новый экземпляр метрик.
func NewBookingMetrics() *BookingMetrics {
	return newBookingMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newBookingMetricsWithRegisterer(registerer prometheus.Registerer) *BookingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &BookingMetrics{
		bookingsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bms_bookings_created_total",
			Help: "Total number of bookings created",
		}),
		bookingsCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bms_bookings_completed_total",
			Help: "Total number of bookings completed after payment verification",
		}),
		bookingsConfirmed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bms_bookings_confirmed_total",
			Help: "Total number of bookings confirmed",
		}),
		bookingsCanceled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bms_bookings_canceled_total",
			Help: "Total number of bookings canceled",
		}),
		verifyFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bms_verify_failed_total",
			Help: "Total number of failed payment verifications by reason",
		}, []string{"reason"}),
		verifyDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "bms_verify_duration_seconds",
			Help:    "Duration of payment verification in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bms_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		auditEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bms_audit_events_total",
			Help: "Total number of audit events recorded",
		}),
		mileageCredits: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bms_mileage_credits_total",
			Help: "Total number of successful mileage accruals",
		}),
		activeVerifications: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "bms_active_verifications",
			Help: "Number of payment verifications currently in flight",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordBookingCreated увеличивает счётчик созданных броней.
func (m *BookingMetrics) RecordBookingCreated() {
	m.bookingsCreated.Inc()
}

// RecordBookingCompleted увеличивает счётчик завершённых броней.
func (m *BookingMetrics) RecordBookingCompleted() {
	m.bookingsCompleted.Inc()
}

// RecordBookingConfirmed увеличивает счётчик подтверждённых броней.
func (m *BookingMetrics) RecordBookingConfirmed() {
	m.bookingsConfirmed.Inc()
}

// RecordBookingCanceled увеличивает счётчик отменённых броней.
func (m *BookingMetrics) RecordBookingCanceled() {
	m.bookingsCanceled.Inc()
}

// RecordVerifyFailed увеличивает счётчик неудачных сверок с указанием причины.
func (m *BookingMetrics) RecordVerifyFailed(reason string) {
	m.verifyFailed.WithLabelValues(reason).Inc()
}

// RecordVerifyDuration записывает длительность сверки.
func (m *BookingMetrics) RecordVerifyDuration(duration time.Duration) {
	m.verifyDuration.Observe(duration.Seconds())
}

// RecordVerifyStarted увеличивает число активных сверок.
func (m *BookingMetrics) RecordVerifyStarted() {
	m.activeVerifications.Inc()
}

// RecordVerifyFinished уменьшает число активных сверок.
func (m *BookingMetrics) RecordVerifyFinished() {
	m.activeVerifications.Dec()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *BookingMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// RecordAuditEvent увеличивает счётчик записей аудита.
func (m *BookingMetrics) RecordAuditEvent() {
	m.auditEvents.Inc()
}

// RecordMileageCredit увеличивает счётчик начислений миль.
func (m *BookingMetrics) RecordMileageCredit() {
	m.mileageCredits.Inc()
}
