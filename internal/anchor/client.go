package anchor

import (
	"context"
	"errors"
	"strings"
)

// Классификация отказов внешнего ledger. Клиент сам НЕ ретраит:
// политика восстановления живет у вызывающего (batch processor).
var (
	// ErrRedundant — этот же дайджест уже заякорен нами ранее.
	// Сеть запрещает повторную подачу, и это сигнал корректности,
	// а не ошибка: вызывающий синтезирует placeholder и продолжает.
	ErrRedundant = errors.New("anchor: digest already anchored")

	// ErrUnavailable — ledger недоступен или вышел таймаут.
	ErrUnavailable = errors.New("anchor: ledger unavailable")

	// ErrRejected — ledger отверг дайджест (невалидный формат и т.п.).
	ErrRejected = errors.New("anchor: digest rejected")
)

// Client — граница внешнего ledger: записать дайджест, проверить наличие.
type Client interface {
	// Anchor пытается долговременно записать дайджест и возвращает
	// ссылку на запись (entry id провайдера).
	Anchor(ctx context.Context, digest string) (string, error)

	// IsAnchored — read-путь для спот-проверок верификатора.
	IsAnchored(ctx context.Context, digest string) (bool, error)
}

const (
	redundantPrefix = "redundant:"
	pendingPrefix   = "pending:"

	// Длина хвоста дайджеста в синтетической ссылке.
	placeholderHexLen = 16
)

// RedundantReference — детерминированный placeholder для повторно
// поданного дайджеста: префикс + первые 16 hex-символов корня.
func RedundantReference(digest string) string {
	return redundantPrefix + head(digest)
}

// PendingReference — распознаваемый placeholder на случай, когда
// якорение не удалось и батч ждет повторной обработки оператором.
func PendingReference(digest string) string {
	return pendingPrefix + head(digest)
}

// IsPlaceholder — ссылка синтезирована нами, а не выдана ledger'ом.
func IsPlaceholder(ref string) bool {
	return strings.HasPrefix(ref, redundantPrefix) || strings.HasPrefix(ref, pendingPrefix)
}

// IsPending — батч остался без реального якоря.
func IsPending(ref string) bool {
	return strings.HasPrefix(ref, pendingPrefix)
}

func head(digest string) string {
	if len(digest) < placeholderHexLen {
		return digest
	}
	return digest[:placeholderHexLen]
}
