package infra

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/helixcare/portal-core/internal/audit"
)

// BatchSignal транслирует запечатанные батчи в Redis Pub/Sub, чтобы
// админ-дашборды обновлялись без поллинга. Отказ публикации только
// логируется: сигнал best-effort и не влияет на целостность батча.
type BatchSignal struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewBatchSignal(rdb *redis.Client, logger *zap.Logger) *BatchSignal {
	return &BatchSignal{
		rdb:    rdb,
		logger: logger.With(zap.String("mod", "batch-signal")),
	}
}

func (s *BatchSignal) BatchSealed(ctx context.Context, b audit.Batch) {
	payload, err := json.Marshal(map[string]interface{}{
		"batch_id":     b.ID,
		"merkle_root":  b.MerkleRoot,
		"status":       b.Status,
		"member_count": b.MemberCount,
	})
	if err != nil {
		s.logger.Error("marshal batch signal", zap.Error(err))
		return
	}

	if err := s.rdb.Publish(ctx, RedisChanBatchSealed, payload).Err(); err != nil {
		s.logger.Warn("publish batch signal failed", zap.Error(err))
	}
}
