package domain

// LogEventRequest — тело POST /v1/audit/events. ActorID берется из
// токена, не из тела: клиент не может писать аудит от чужого имени.
type LogEventRequest struct {
	Action     string                 `json:"action"`
	ResourceID string                 `json:"resource_id"`
	OccurredAt string                 `json:"occurred_at,omitempty"` // ISO-8601; пустое — время сервера
	Details    map[string]interface{} `json:"details,omitempty"`
}

type PendingResponse struct {
	Pending int `json:"pending"`
}

type VerifyResponse struct {
	EventID string `json:"event_id"`
	Valid   bool   `json:"valid"`
}

type ForceBatchResponse struct {
	Triggered bool `json:"triggered"`
	Pending   int  `json:"pending"`
}
