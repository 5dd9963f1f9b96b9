package payment

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrBreakerOpen возвращается, пока circuit breaker блокирует запросы к шлюзу.
var ErrBreakerOpen = errors.New("payment gateway circuit breaker is open")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// Breaker — circuit breaker для походов во внешний шлюз. После maxFailures
// подряд идущих сбоев запросы блокируются на resetTimeout, затем пропускается
// один пробный запрос.
type Breaker struct {
	maxFailures  int
	resetTimeout time.Duration
	logger       *log.Entry

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       breakerState
}

// NewBreaker создаёт circuit breaker.
func NewBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *Breaker {
	if logger == nil {
		logger = log.New().WithField("component", "payment-breaker")
	}
	return &Breaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        breakerClosed,
		logger:       logger,
	}
}

// Execute выполняет операцию через circuit breaker.
func (b *Breaker) Execute(operation string, fn func() error) error {
	if err := b.allow(operation); err != nil {
		return err
	}

	err := fn()
	b.record(operation, err)
	return err
}

func (b *Breaker) allow(operation string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerOpen {
		if time.Since(b.lastFailure) > b.resetTimeout {
			b.state = breakerHalfOpen
			b.logger.WithField("operation", operation).Info("circuit breaker half-open")
			return nil
		}
		return ErrBreakerOpen
	}
	return nil
}

func (b *Breaker) record(operation string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.lastFailure = time.Now()
		if b.state == breakerHalfOpen || b.failures >= b.maxFailures {
			b.state = breakerOpen
			b.logger.WithFields(log.Fields{
				"operation": operation,
				"failures":  b.failures,
			}).Warn("circuit breaker opened")
		}
		return
	}

	if b.state == breakerHalfOpen {
		b.logger.WithField("operation", operation).Info("circuit breaker closed")
	}
	b.state = breakerClosed
	b.failures = 0
}
