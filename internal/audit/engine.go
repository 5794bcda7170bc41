package audit

/*
Файл engine.go реализует ядро audit trail: аккумулятор событий,
планировщик и batch processor.

Ключевые особенности архитектуры:
- Durable-first Ingestion: событие сначала пишется в Event Store и только
  потом попадает в буфер. Отказ базы виден вызывающему, событие в систему
  не входит — потерь нет по построению.
- Batching & Anchoring: буфер сбрасывается по таймеру или при достижении
  лимита; по снапшоту строится Merkle-корень, корень якорится во внешнем
  ledger, исход записывается на батч и на каждое событие (reconcile).
- Degraded Mode: отказ якорения НЕ роняет прогон — батч запечатывается
  со статусом failed и pending-placeholder'ом, события помечаются, чтобы
  не уйти в бесконечную переобработку.
- Snapshot Isolation: прогон работает по неизменяемому снапшоту буфера,
  события, принятые во время прогона, ждут следующего.
*/

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"go.uber.org/zap"

	"github.com/helixcare/portal-core/internal/anchor"
)

type Config struct {
	BatchInterval      time.Duration // Максимальный возраст буфера до запечатывания
	PollInterval       time.Duration // Шаг кооперативного поллинга (<< BatchInterval)
	MaxBatchSize       int           // Порог немедленного запуска
	AnchorTimeout      time.Duration // Дедлайн одной попытки якорения
	ReconcileAttempts  uint          // Всего попыток updateEvent на событие
	ReconcileBaseDelay time.Duration // База экспоненциального бэкоффа
}

// Engine — один экземпляр на процесс, передается хендлерам явно
// (никаких глобальных синглтонов). Буфер и флаг processing — локальное
// состояние процесса; координации между репликами нет.
type Engine struct {
	cfg     Config
	events  EventStore
	batches BatchStore
	ledger  anchor.Client
	logger  *zap.Logger
	metrics *Metrics
	sealed  SealListener // может быть nil

	mu              sync.Mutex
	buffer          []Event
	processing      bool
	lastProcessedAt time.Time
}

func NewEngine(
	cfg Config,
	events EventStore,
	batches BatchStore,
	ledger anchor.Client,
	metrics *Metrics,
	sealed SealListener,
	logger *zap.Logger,
) *Engine {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 100
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = 5 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.AnchorTimeout <= 0 {
		cfg.AnchorTimeout = 10 * time.Second
	}
	if cfg.ReconcileAttempts == 0 {
		cfg.ReconcileAttempts = 3
	}
	if cfg.ReconcileBaseDelay <= 0 {
		cfg.ReconcileBaseDelay = 100 * time.Millisecond
	}

	return &Engine{
		cfg:             cfg,
		events:          events,
		batches:         batches,
		ledger:          ledger,
		logger:          logger.With(zap.String("mod", "audit-engine")),
		metrics:         metrics,
		sealed:          sealed,
		buffer:          make([]Event, 0, cfg.MaxBatchSize),
		lastProcessedAt: time.Now(),
	}
}

// LogEvent валидирует и durably записывает событие, затем ставит его в
// буфер. При заполнении буфера до лимита батч запускается синхронно,
// не дожидаясь тика планировщика.
func (e *Engine) LogEvent(ctx context.Context, ev Event) (Event, error) {
	if ev.ActorID == "" || ev.Action == "" {
		return Event{}, fmt.Errorf("%w: actor_id and action are required", ErrInvalidEvent)
	}
	if ev.OccurredAt == "" {
		ev.OccurredAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	// Привязка назначается только reconcile-шагом
	ev.BatchID, ev.MerkleRoot, ev.AnchorRef = "", "", ""

	stored, err := e.events.CreateEvent(ctx, ev)
	if err != nil {
		// Не буферизуем то, что не легло в базу
		return Event{}, fmt.Errorf("audit: durable store failed: %w", err)
	}

	e.mu.Lock()
	e.buffer = append(e.buffer, stored)
	full := len(e.buffer) >= e.cfg.MaxBatchSize
	e.metrics.BufferFill.Set(float64(len(e.buffer)))
	e.mu.Unlock()

	e.metrics.EventsIngested.Inc()

	if full {
		// Eager trigger ограничивает рост буфера в худшем случае.
		// Повторный вход отсеет guard внутри runBatch.
		if err := e.runBatch(ctx); err != nil {
			e.logger.Warn("eager batch run failed", zap.Error(err))
		}
	}
	return stored, nil
}

// Run — кооперативный планировщик: низкочастотный тик проверяет условие
// «батч созрел». Точность срабатывания ограничена шагом поллинга, это
// осознанный компромисс. На закрытие контекста — финальный сброс буфера
// (drain), чтобы плановая остановка не оставляла событий незапечатанными.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	e.logger.Info("batch scheduler started",
		zap.Duration("batch_interval", e.cfg.BatchInterval),
		zap.Int("max_batch_size", e.cfg.MaxBatchSize),
	)

	for {
		select {
		case <-ctx.Done():
			// Основной контекст уже закрыт — доливаем на Background
			if err := e.runBatch(context.Background()); err != nil {
				e.logger.Error("final drain failed", zap.Error(err))
			}
			e.logger.Info("batch scheduler stopped")
			return
		case <-ticker.C:
			if e.batchDue() {
				if err := e.runBatch(ctx); err != nil {
					e.logger.Warn("scheduled batch run failed", zap.Error(err))
				}
			}
		}
	}
}

func (e *Engine) batchDue() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.processing || len(e.buffer) == 0 {
		return false
	}
	return time.Since(e.lastProcessedAt) >= e.cfg.BatchInterval ||
		len(e.buffer) >= e.cfg.MaxBatchSize
}

// ForceBatchNow — сервисный хук (админка, тесты): запустить прогон,
// минуя таймер. Под защитой того же re-entrancy guard'а.
func (e *Engine) ForceBatchNow(ctx context.Context) error {
	return e.runBatch(ctx)
}

// PendingCount — размер буфера для observability.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buffer)
}

// runBatch — полный прогон: снапшот -> merkle -> anchor -> batch record ->
// reconcile -> очистка снапшота из буфера. Инварианты:
//   - одновременно не более одного прогона (флаг processing);
//   - processing снимается в defer, отказ якорения или базы не может
//     навсегда заклинить планировщик;
//   - буфер чистится только после того, как все события снапшота учтены.
func (e *Engine) runBatch(ctx context.Context) error {
	e.mu.Lock()
	if e.processing || len(e.buffer) == 0 {
		e.mu.Unlock()
		return nil
	}

	// Событие без ID не пройдет reconcile — защитно выкидываем сразу
	snapshot := make([]Event, 0, len(e.buffer))
	kept := e.buffer[:0]
	for _, ev := range e.buffer {
		if ev.ID == "" {
			e.logger.Warn("dropping buffered event without store id",
				zap.String("action", ev.Action))
			continue
		}
		snapshot = append(snapshot, ev)
		kept = append(kept, ev)
	}
	e.buffer = kept
	if len(snapshot) == 0 {
		e.metrics.BufferFill.Set(0)
		e.mu.Unlock()
		return nil
	}
	e.processing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.processing = false
		e.mu.Unlock()
	}()

	started := time.Now()

	root, err := BuildRoot(snapshot)
	if err != nil {
		// Буфер не тронут, события остаются на следующий прогон
		return fmt.Errorf("audit: merkle root: %w", err)
	}

	ref, status := e.anchorRoot(ctx, root)

	stored, err := e.batches.CreateBatch(ctx, Batch{
		CreatedAt:   time.Now().UTC(),
		MerkleRoot:  root,
		AnchorRef:   ref,
		Status:      status,
		MemberCount: len(snapshot),
	})
	if err != nil {
		// Без записи батча reconcile невозможен: оставляем буфер как
		// есть, прогон повторится на следующем тике
		return fmt.Errorf("audit: persist batch: %w", err)
	}

	e.reconcile(ctx, snapshot, BatchLink{
		BatchID:    stored.ID,
		MerkleRoot: root,
		AnchorRef:  ref,
	})

	e.mu.Lock()
	inFlight := make(map[string]struct{}, len(snapshot))
	for _, ev := range snapshot {
		inFlight[ev.ID] = struct{}{}
	}
	remaining := e.buffer[:0]
	for _, ev := range e.buffer {
		if _, ok := inFlight[ev.ID]; !ok {
			remaining = append(remaining, ev)
		}
	}
	e.buffer = remaining
	e.lastProcessedAt = time.Now()
	e.metrics.BufferFill.Set(float64(len(e.buffer)))
	e.mu.Unlock()

	e.metrics.BatchesTotal.WithLabelValues(string(stored.Status)).Inc()
	e.metrics.BatchDuration.Observe(time.Since(started).Seconds())

	e.logger.Info("batch sealed",
		zap.String("batch_id", stored.ID),
		zap.String("merkle_root", root),
		zap.String("status", string(stored.Status)),
		zap.Int("member_count", stored.MemberCount),
	)

	if e.sealed != nil {
		e.sealed.BatchSealed(ctx, stored)
	}
	return nil
}

// anchorRoot пытается заякорить корень и классифицирует исход.
// Любой отказ деградирует в pending-placeholder: батч обязан быть
// запечатан, иначе события уйдут в повторную обработку навсегда.
func (e *Engine) anchorRoot(ctx context.Context, root string) (string, BatchStatus) {
	actx, cancel := context.WithTimeout(ctx, e.cfg.AnchorTimeout)
	defer cancel()

	ref, err := e.ledger.Anchor(actx, root)
	switch {
	case err == nil:
		return ref, StatusConfirmed

	case errors.Is(err, anchor.ErrRedundant):
		// Дайджест уже в ledger — это подтверждение, а не ошибка
		e.logger.Info("root already anchored, synthesizing reference",
			zap.String("merkle_root", root))
		return anchor.RedundantReference(root), StatusConfirmed

	default:
		kind := "unavailable"
		if errors.Is(err, anchor.ErrRejected) {
			kind = "rejected"
		}
		e.metrics.AnchorErrors.WithLabelValues(kind).Inc()
		e.logger.Warn("anchoring failed, sealing batch in degraded mode",
			zap.String("merkle_root", root), zap.Error(err))
		return anchor.PendingReference(root), StatusFailed
	}
}

// reconcile пишет привязку на каждое событие снапшота. Ретраи ограничены
// и с экспоненциальным бэкоффом; исчерпание ретраев по одному событию
// не блокирует остальные — событие остается unlinked и видно оператору.
func (e *Engine) reconcile(ctx context.Context, snapshot []Event, link BatchLink) {
	for _, ev := range snapshot {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(e.cfg.ReconcileAttempts),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				return e.cfg.ReconcileBaseDelay << n
			}),
		)

		eventID := ev.ID
		err := r.Do(func() error {
			_, uerr := e.events.UpdateEventLink(ctx, eventID, link)
			return uerr
		})
		if err != nil {
			e.metrics.ReconcileFailures.Inc()
			e.logger.Error("event left unlinked after retries",
				zap.String("event_id", eventID),
				zap.String("batch_id", link.BatchID),
				zap.Error(err),
			)
		}
	}
}

// RecoverOrphans добирает события, созданные до рестарта процесса, но так
// и не попавшие ни в один батч (буфер живет только в памяти). Вызывается
// на старте под распределенным локом, чтобы реплики не дублировали работу.
func (e *Engine) RecoverOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	orphans, err := e.events.ListEvents(ctx, EventFilter{
		UnlinkedOnly: true,
		Before:       time.Now().Add(-olderThan),
	})
	if err != nil {
		return 0, fmt.Errorf("audit: orphan sweep: %w", err)
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	e.mu.Lock()
	buffered := make(map[string]struct{}, len(e.buffer))
	for _, ev := range e.buffer {
		buffered[ev.ID] = struct{}{}
	}
	added := 0
	for _, ev := range orphans {
		if _, ok := buffered[ev.ID]; ok {
			continue
		}
		e.buffer = append(e.buffer, ev)
		added++
	}
	e.metrics.BufferFill.Set(float64(len(e.buffer)))
	e.mu.Unlock()

	e.logger.Info("recovered orphaned events into buffer", zap.Int("count", added))
	return added, nil
}
