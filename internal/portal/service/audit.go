package service

import (
	"context"
	"fmt"

	"github.com/helixcare/portal-core/internal/audit"
	"github.com/helixcare/portal-core/internal/portal/domain"
)

// AuditService — слой между HTTP и ядром аудита. Горячий путь (прием
// событий) идет через движок, отчетность — напрямую из хранилищ.
type AuditService struct {
	engine   *audit.Engine
	events   audit.EventStore
	batches  audit.BatchStore
	verifier *audit.Verifier
}

func NewAuditService(engine *audit.Engine, events audit.EventStore, batches audit.BatchStore, verifier *audit.Verifier) *AuditService {
	return &AuditService{
		engine:   engine,
		events:   events,
		batches:  batches,
		verifier: verifier,
	}
}

// LogEvent принимает событие от поверхности портала (запись на прием,
// правка профиля, действие админа) от имени актора из токена.
func (s *AuditService) LogEvent(ctx context.Context, actorID, traceID string, req domain.LogEventRequest) (audit.Event, error) {
	ev, err := s.engine.LogEvent(ctx, audit.Event{
		TraceID:    traceID,
		OccurredAt: req.OccurredAt,
		ActorID:    actorID,
		Action:     req.Action,
		ResourceID: req.ResourceID,
		Details:    req.Details,
	})
	if err != nil {
		return audit.Event{}, fmt.Errorf("audit_service: log event: %w", err)
	}
	return ev, nil
}

func (s *AuditService) ForceBatch(ctx context.Context) error {
	if err := s.engine.ForceBatchNow(ctx); err != nil {
		return fmt.Errorf("audit_service: force batch: %w", err)
	}
	return nil
}

func (s *AuditService) PendingCount() int {
	return s.engine.PendingCount()
}

// FetchEvents — отчетный путь с фильтрацией, не горячий.
func (s *AuditService) FetchEvents(ctx context.Context, f audit.EventFilter) ([]audit.Event, error) {
	events, err := s.events.ListEvents(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch events: %w", err)
	}
	return events, nil
}

func (s *AuditService) FetchBatches(ctx context.Context, limit int) ([]audit.Batch, error) {
	batches, err := s.batches.ListBatches(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch batches: %w", err)
	}
	return batches, nil
}

func (s *AuditService) VerifyIntegrity(ctx context.Context, eventID string) (bool, error) {
	ok, err := s.verifier.Verify(ctx, eventID)
	if err != nil {
		return false, fmt.Errorf("audit_service: verify: %w", err)
	}
	return ok, nil
}
