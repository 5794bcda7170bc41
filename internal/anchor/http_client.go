package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LedgerClient — HTTP-клиент витнесс-сервиса (external ledger).
// Протокол: POST /anchors {"digest": "..."} -> {"entry_id": "..."},
// GET /anchors/{digest} -> 200 если дайджест заякорен.
type LedgerClient struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

func NewLedgerClient(endpoint string, timeout time.Duration, logger *zap.Logger) *LedgerClient {
	return &LedgerClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With(zap.String("mod", "ledger-client")),
	}
}

func (c *LedgerClient) Anchor(ctx context.Context, digest string) (string, error) {
	payload, err := json.Marshal(map[string]string{"digest": digest})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrRejected, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/anchors", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// Сетевой отказ и таймаут классифицируем одинаково
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		// Сеть запрещает дубликаты: наш дайджест уже в ledger
		return "", ErrRedundant
	case resp.StatusCode == http.StatusUnprocessableEntity:
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: %s", ErrRejected, string(body))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var result struct {
		EntryID string `json:"entry_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if result.EntryID == "" {
		return "", fmt.Errorf("%w: response missing entry_id", ErrRejected)
	}
	return result.EntryID, nil
}

func (c *LedgerClient) IsAnchored(ctx context.Context, digest string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/anchors/"+digest, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
}
