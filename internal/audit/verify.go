package audit

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/helixcare/portal-core/internal/anchor"
)

// VerifyCache — опциональный кэш результатов спот-проверок
// (Redis с TTL в проде). Промах — (_, false).
type VerifyCache interface {
	Get(ctx context.Context, eventID string) (bool, bool)
	Set(ctx context.Context, eventID string, ok bool)
}

// Verifier независимо перепроверяет привязку события к ledger:
// движку не доверяем, считаем все заново по данным хранилища.
type Verifier struct {
	events  EventStore
	batches BatchStore
	ledger  anchor.Client
	cache   VerifyCache // может быть nil
	logger  *zap.Logger
}

func NewVerifier(events EventStore, batches BatchStore, ledger anchor.Client, cache VerifyCache, logger *zap.Logger) *Verifier {
	return &Verifier{
		events:  events,
		batches: batches,
		ledger:  ledger,
		cache:   cache,
		logger:  logger.With(zap.String("mod", "audit-verifier")),
	}
}

// Verify возвращает true только для события, чья привязка полна,
// согласована с батчем и подтверждается read-путем ledger. Unlinked
// события и placeholder-ссылки — всегда false (якоря по факту нет).
// Ошибка возвращается только при недоступности собственного хранилища.
func (v *Verifier) Verify(ctx context.Context, eventID string) (bool, error) {
	if v.cache != nil {
		if ok, hit := v.cache.Get(ctx, eventID); hit {
			return ok, nil
		}
	}

	ev, err := v.events.GetEvent(ctx, eventID)
	if err != nil {
		return false, fmt.Errorf("audit: verify load event: %w", err)
	}

	ok := v.check(ctx, ev)
	if v.cache != nil {
		v.cache.Set(ctx, eventID, ok)
	}
	return ok, nil
}

func (v *Verifier) check(ctx context.Context, ev Event) bool {
	if !ev.Linked() {
		return false
	}
	if anchor.IsPlaceholder(ev.AnchorRef) {
		return false
	}

	// Согласованность привязки: корень на событии обязан совпадать
	// с корнем, записанным на самом батче
	batch, err := v.batches.GetBatch(ctx, ev.BatchID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			v.logger.Warn("verify: batch lookup failed",
				zap.String("batch_id", ev.BatchID), zap.Error(err))
		}
		return false
	}
	if batch.MerkleRoot != ev.MerkleRoot || batch.AnchorRef != ev.AnchorRef {
		return false
	}

	anchored, err := v.ledger.IsAnchored(ctx, ev.MerkleRoot)
	if err != nil {
		// Недоступность ledger трактуем как неподтвержденность
		v.logger.Warn("verify: ledger read failed",
			zap.String("merkle_root", ev.MerkleRoot), zap.Error(err))
		return false
	}
	return anchored
}
