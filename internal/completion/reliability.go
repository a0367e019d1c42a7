package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/spaceai-agentmesh/internal/infra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ReliableService оборачивает любой Service: rate limiter, circuit breaker, повторы с бэкоффом.
type ReliableService struct {
	next     Service
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	attempts uint
	timeout  time.Duration
	logger   *zap.Logger
}

// NewReliableService. cbState может быть nil, иначе в него пишется 0 (closed), 0.5 (half-open), 1 (open).
func NewReliableService(next Service, cfg infra.CompletionConfig, cbState prometheus.Gauge, logger *zap.Logger) *ReliableService {
	logger = logger.Named("completion-reliability")

	maxFailures := cfg.CBMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "completion-service",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Через сколько CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
			if cbState != nil {
				cbState.Set(stateValue(to))
			}
		},
	})

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}

	return &ReliableService{
		next:     next,
		cb:       cb,
		limiter:  rate.NewLimiter(limit, burst),
		attempts: attempts,
		timeout:  cfg.RequestTimeout,
		logger:   logger,
	}
}

func (w *ReliableService) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("completion: rate limit wait: %w", err)
	}

	// 2. Circuit Breaker
	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.attempts),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Провайдер сам сказал, сколько ждать
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		var (
			text      string
			permanent error
		)
		retryErr := r.Do(func() error {
			callCtx := ctx
			if w.timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, w.timeout)
				defer cancel()
			}

			var callErr error
			text, callErr = w.next.Complete(callCtx, system, messages)
			if callErr != nil && !retryable(callErr) {
				// Повтор не поможет: выходим из цикла, ошибку вернем ниже
				permanent = callErr
				return nil
			}
			return callErr
		})
		if permanent != nil {
			return nil, permanent
		}
		if retryErr != nil {
			return nil, retryErr
		}
		return text, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			w.logger.Warn("completion call rejected by circuit breaker", zap.Error(err))
		}
		return "", err
	}

	return cbResult.(string), nil
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrNotConfigured),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 0.5
	default:
		return 0
	}
}
