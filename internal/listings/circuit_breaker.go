package listings

import (
	"net/http"
	"sync"
	"time"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/logging"
)

// CircuitBreaker stops calling the listings API after repeated upstream failures
type CircuitBreaker struct {
	failureThreshold int
	resetTimeout     time.Duration

	failures            int
	totalRequests       int
	consecutiveFailures int
	isOpen              bool
	lastFailureTime     time.Time

	now   func() time.Time
	mutex sync.Mutex
}

// NewCircuitBreaker creates a breaker that opens after failureThreshold consecutive failures
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalRequests++
	cb.consecutiveFailures = 0
}

// RecordFailure records a failed request. statusCode is 0 for transport errors.
func (cb *CircuitBreaker) RecordFailure(statusCode int) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	cb.consecutiveFailures++
	cb.totalRequests++
	cb.lastFailureTime = cb.now()

	log := logging.ForComponent("listings")

	// Quota exhaustion and auth failures will not recover within a run
	if statusCode == http.StatusTooManyRequests || statusCode == http.StatusForbidden {
		if cb.consecutiveFailures >= 2 {
			cb.isOpen = true
			log.Warnf("Circuit breaker open: %d consecutive %d responses, retry after %v",
				cb.consecutiveFailures, statusCode, cb.resetTimeout)
			return
		}
	}

	if cb.consecutiveFailures >= cb.failureThreshold {
		cb.isOpen = true
		log.Warnf("Circuit breaker open: %d consecutive failures, retry after %v",
			cb.consecutiveFailures, cb.resetTimeout)
		return
	}

	if cb.totalRequests >= 20 {
		failureRate := float64(cb.failures) / float64(cb.totalRequests)
		if failureRate >= 0.40 {
			cb.isOpen = true
			log.Warnf("Circuit breaker open: failure rate %.1f%% (%d/%d)",
				failureRate*100, cb.failures, cb.totalRequests)
		}
	}
}

// CanProceed checks if requests are allowed
func (cb *CircuitBreaker) CanProceed() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.isOpen {
		return true
	}

	if cb.now().Sub(cb.lastFailureTime) > cb.resetTimeout {
		logging.ForComponent("listings").Infof("Circuit breaker half-open after %v", cb.resetTimeout)
		cb.isOpen = false
		cb.failures = 0
		cb.totalRequests = 0
		cb.consecutiveFailures = 0
		return true
	}

	return false
}

// GetStatus returns current circuit breaker status
func (cb *CircuitBreaker) GetStatus() (isOpen bool, failures int, total int) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.isOpen, cb.failures, cb.totalRequests
}
