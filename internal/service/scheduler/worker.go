// Package scheduler содержит воркер отложенных автоподтверждений: опрашивает
// долговечные записи расписания и переводит дозревшие брони в confirmed.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vmaslennikov/bms/internal/domain"
)

const (
	defaultPollInterval      = 5 * time.Second
	defaultReconcileInterval = 1 * time.Minute
	defaultBatchSize         = 100

	actorScheduler = "scheduler"
)

var (
	schedulerConfirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bms_scheduler_confirmations_total",
		Help: "Total number of scheduled confirmation firings grouped by result.",
	}, []string{"result"})
	schedulerDueEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bms_scheduler_due_entries",
		Help: "Number of due scheduled confirmations seen on the last poll.",
	})
	schedulerReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bms_scheduler_reconciled_total",
		Help: "Total number of schedule entries restored from completed bookings.",
	})
)

// Confirmer выполняет подтверждение дозревшей брони.
type Confirmer interface {
	ConfirmBooking(ctx context.Context, bookingID, actor string) (domain.Booking, error)
}

// WorkerOptions задаёт параметры воркера автоподтверждений.
type WorkerOptions struct {
	Logger            *log.Entry
	PollInterval      time.Duration
	ReconcileInterval time.Duration
	BatchSize         int
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithPollInterval задаёт частоту опроса расписания.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollInterval = interval
	}
}

// WithReconcileInterval задаёт частоту восстановления расписания из броней.
func WithReconcileInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.ReconcileInterval = interval
	}
}

// WithBatchSize задаёт размер батча записей за один проход.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) {
		opts.BatchSize = batchSize
	}
}

// Worker опрашивает расписание и подтверждает дозревшие брони. Дубли
// срабатываний безопасны: повторное подтверждение гасится CAS-переходом.
type Worker struct {
	schedules         domain.ScheduleRepository
	bookings          domain.BookingRepository
	confirmer         Confirmer
	logger            *log.Entry
	pollInterval      time.Duration
	reconcileInterval time.Duration
	batchSize         int
}

// NewWorker создаёт воркер автоподтверждений.
func NewWorker(schedules domain.ScheduleRepository, bookings domain.BookingRepository, confirmer Confirmer, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:      defaultPollInterval,
		ReconcileInterval: defaultReconcileInterval,
		BatchSize:         defaultBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "scheduler")
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.ReconcileInterval <= 0 {
		opts.ReconcileInterval = defaultReconcileInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	return &Worker{
		schedules:         schedules,
		bookings:          bookings,
		confirmer:         confirmer,
		logger:            logger,
		pollInterval:      opts.PollInterval,
		reconcileInterval: opts.ReconcileInterval,
		batchSize:         opts.BatchSize,
	}
}

// Run восстанавливает расписание и запускает периодический опрос до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.schedules == nil || w.confirmer == nil {
		w.logger.Warn("scheduler worker is disabled: schedules or confirmer is nil")
		return
	}

	// Восстановление после рестарта: completed-брони без записи расписания
	// снова попадают в очередь по своему персистентному дедлайну.
	w.Reconcile(ctx)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	reconcileTicker := time.NewTicker(w.reconcileInterval)
	defer reconcileTicker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		case <-reconcileTicker.C:
			w.Reconcile(ctx)
		}
	}
}

// ProcessOnce выполняет один проход по дозревшим записям.
func (w *Worker) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	due, err := w.schedules.DuePending(time.Now(), w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull due confirmations")
		return
	}
	schedulerDueEntries.Set(float64(len(due)))
	if len(due) == 0 {
		return
	}

	for _, entry := range due {
		if ctx.Err() != nil {
			return
		}
		w.fire(ctx, entry)
	}
}

func (w *Worker) fire(ctx context.Context, entry domain.ScheduledConfirmation) {
	logger := w.logger.WithFields(log.Fields{
		"booking_id": entry.BookingID,
		"due_at":     entry.DueAt.UTC().Format(time.RFC3339),
		"attempts":   entry.Attempts,
	})

	if err := w.schedules.MarkAttempt(entry.BookingID); err != nil {
		logger.WithError(err).Warn("failed to mark confirmation attempt")
	}

	_, err := w.confirmer.ConfirmBooking(ctx, entry.BookingID, actorScheduler)
	switch {
	case err == nil:
		schedulerConfirmations.WithLabelValues("confirmed").Inc()
		logger.Info("booking auto-confirmed")
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrBookingNotFound):
		// Бронь уже ушла из completed — запись расписания больше не нужна.
		schedulerConfirmations.WithLabelValues("stale").Inc()
		if removeErr := w.schedules.Remove(entry.BookingID); removeErr != nil {
			logger.WithError(removeErr).Warn("failed to drop stale schedule entry")
		}
	default:
		// Временный сбой: запись остаётся и сработает на следующем проходе.
		schedulerConfirmations.WithLabelValues("error").Inc()
		logger.WithError(err).Warn("auto-confirm failed, will retry")
	}
}

// Reconcile восстанавливает записи расписания из completed-броней. Закрывает
// два сценария: рестарт процесса и сбой регистрации записи после сверки.
func (w *Worker) Reconcile(ctx context.Context) {
	if ctx.Err() != nil || w.bookings == nil {
		return
	}

	completed, err := w.bookings.ListByStatus(domain.BookingStatusCompleted, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to list completed bookings for reconciliation")
		return
	}

	for _, b := range completed {
		if b.ConfirmDeadline.IsZero() {
			continue
		}
		if err := w.schedules.Schedule(domain.ScheduledConfirmation{
			BookingID: b.ID,
			DueAt:     b.ConfirmDeadline,
		}); err != nil {
			w.logger.WithError(err).WithField("booking_id", b.ID).
				Warn("failed to restore schedule entry")
			continue
		}
		schedulerReconciled.Inc()
	}
}
