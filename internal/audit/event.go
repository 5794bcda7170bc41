package audit

import (
	"context"
	"errors"
	"time"
)

// Статусы батча: отражают исход якорения, а не факт записи в БД.
type BatchStatus string

const (
	StatusPending   BatchStatus = "pending"
	StatusConfirmed BatchStatus = "confirmed"
	StatusFailed    BatchStatus = "failed"
)

// Ошибки уровня хранилища. Репозитории оборачивают свои ошибки в эти
// сентинелы, чтобы движок различал «база недоступна» и «записи нет».
var (
	ErrStoreUnavailable = errors.New("audit: store unavailable")
	ErrNotFound         = errors.New("audit: record not found")
	ErrInvalidEvent     = errors.New("audit: invalid event")
	ErrEmptyBatch       = errors.New("audit: empty batch")
)

type Event struct {
	ID         string                 `json:"id"`          // UUID, присваивается хранилищем
	TraceID    string                 `json:"trace_id"`    // Сквозной ID запроса портала
	OccurredAt string                 `json:"occurred_at"` // ISO-8601, время самого действия (не created_at БД)
	ActorID    string                 `json:"actor_id"`    // Кто делал (пациент, врач, админ)
	Action     string                 `json:"action"`      // Что делал: "appointment.create", "profile.update"...
	ResourceID string                 `json:"resource_id"` // Над чем
	Details    map[string]interface{} `json:"details"`     // Произвольный контекст, в БД уходит строкой

	// Поля привязки к батчу. Либо все три пустые (unlinked),
	// либо все три заполнены (fully linked) — см. reconcile в движке.
	BatchID    string `json:"batch_id,omitempty"`
	MerkleRoot string `json:"merkle_root,omitempty"`
	AnchorRef  string `json:"anchor_ref,omitempty"`
}

// Linked — событие полностью привязано к запечатанному батчу.
func (e Event) Linked() bool {
	return e.BatchID != "" && e.MerkleRoot != "" && e.AnchorRef != ""
}

type Batch struct {
	ID          string      `json:"id"`
	CreatedAt   time.Time   `json:"created_at"`
	MerkleRoot  string      `json:"merkle_root"` // lowercase hex, воспроизводим по списку событий
	AnchorRef   string      `json:"anchor_ref"`  // ссылка внешнего ledger либо placeholder
	Status      BatchStatus `json:"status"`
	MemberCount int         `json:"member_count"`
}

// BatchLink — патч, который reconcile пишет на каждое событие батча.
type BatchLink struct {
	BatchID    string
	MerkleRoot string
	AnchorRef  string
}

type EventFilter struct {
	ActorID      string
	Action       string
	UnlinkedOnly bool
	Before       time.Time
	Limit        int
}

// EventStore — долговременное хранилище событий (Postgres в проде).
// Движок не знает про SQL: контракт определен здесь, у потребителя.
type EventStore interface {
	CreateEvent(ctx context.Context, e Event) (Event, error)
	GetEvent(ctx context.Context, id string) (Event, error)
	UpdateEventLink(ctx context.Context, id string, link BatchLink) (Event, error)
	ListEvents(ctx context.Context, f EventFilter) ([]Event, error)
}

type BatchStore interface {
	CreateBatch(ctx context.Context, b Batch) (Batch, error)
	GetBatch(ctx context.Context, id string) (Batch, error)
	ListBatches(ctx context.Context, limit int) ([]Batch, error)
}

// SealListener получает уведомление о каждом запечатанном батче
// (Redis pub/sub в проде, чтобы дашборды обновлялись без поллинга).
type SealListener interface {
	BatchSealed(ctx context.Context, b Batch)
}
