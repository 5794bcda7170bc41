package anchor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ReliabilityWrapper оборачивает клиент ledger в Circuit Breaker и
// Rate Limiter. Ретраев здесь нет намеренно: неудачное якорение
// деградирует в pending-placeholder на стороне batch processor'а,
// а не блокирует батч повторными попытками.
type ReliabilityWrapper struct {
	next    Client
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

type ReliabilityConfig struct {
	MaxRequests uint32        // Пробные запросы в half-open
	Interval    time.Duration // Окно подсчета ошибок
	Timeout     time.Duration // Время, через которое CB попробует "закрыться"
	RateLimit   rate.Limit    // Запросов в секунду к ledger
	Burst       int
}

func NewReliabilityWrapper(next Client, cfg ReliabilityConfig) *ReliabilityWrapper {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ledger-anchor",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Более 5 ошибок подряд — открываемся и перестаем долбить ledger
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			// Redundant — корректный исход, предохранитель не трогаем
			return err == nil || errors.Is(err, ErrRedundant)
		},
	})

	return &ReliabilityWrapper{
		next:    next,
		cb:      cb,
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.Burst),
	}
}

func (w *ReliabilityWrapper) Anchor(ctx context.Context, digest string) (string, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limit: %v", ErrUnavailable, err)
	}

	result, err := w.cb.Execute(func() (interface{}, error) {
		return w.next.Anchor(ctx, digest)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		return "", err
	}
	return result.(string), nil
}

func (w *ReliabilityWrapper) IsAnchored(ctx context.Context, digest string) (bool, error) {
	// Read-путь дешевый и редкий (спот-проверки), лимитер не нужен
	return w.next.IsAnchored(ctx, digest)
}
