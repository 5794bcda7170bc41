package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// canonicalEvent — фиксированный порядок полей для хеширования.
// Ключи Details сортирует сам encoding/json, поэтому сериализация
// детерминирована для одинакового содержимого.
type canonicalEvent struct {
	OccurredAt string                 `json:"occurred_at"`
	ActorID    string                 `json:"actor_id"`
	Action     string                 `json:"action"`
	ResourceID string                 `json:"resource_id"`
	Details    map[string]interface{} `json:"details"`
}

// HashEvent считает SHA-256 канонической формы события (lowercase hex).
// Чистая функция: одинаковый вход — одинаковый дайджест на любой машине.
func HashEvent(e Event) (string, error) {
	payload, err := json.Marshal(canonicalEvent{
		OccurredAt: e.OccurredAt,
		ActorID:    e.ActorID,
		Action:     e.Action,
		ResourceID: e.ResourceID,
		Details:    e.Details,
	})
	if err != nil {
		return "", fmt.Errorf("audit: canonical serialization failed: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// HashPair хеширует конкатенацию двух hex-дайджестов как строк.
// Порядок значим: HashPair(a,b) != HashPair(b,a).
func HashPair(left, right string) string {
	sum := sha256.Sum256([]byte(left + right))
	return hex.EncodeToString(sum[:])
}
