package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type HTTPClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

type httpLedger struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient создаёт клиента к HTTP API леджера.
func NewHTTPClient(cfg HTTPClientConfig) (Ledger, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ledger base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpLedger{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type transferRequest struct {
	PlayerID int     `json:"player_id"`
	Amount   float64 `json:"amount"`
}

type transferResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (l *httpLedger) Authorize(ctx context.Context, playerID int, amount float64) error {
	resp, err := l.post(ctx, "/authorize", transferRequest{PlayerID: playerID, Amount: amount})
	if err != nil {
		return err
	}
	if resp.Status != "authorized" {
		return fmt.Errorf("%w: %s", ErrDeclined, resp.Reason)
	}
	return nil
}

func (l *httpLedger) Payout(ctx context.Context, playerID int, amount float64) error {
	resp, err := l.post(ctx, "/payout", transferRequest{PlayerID: playerID, Amount: amount})
	if err != nil {
		return err
	}
	if resp.Status != "transferred" {
		return fmt.Errorf("%w: %s", ErrTransferFailed, resp.Reason)
	}
	return nil
}

func (l *httpLedger) post(ctx context.Context, path string, payload transferRequest) (*transferResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ledger request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := l.client.Do(req)
	if err != nil {
		// Таймаут трактуем как отказ: успех не предполагается.
		return nil, fmt.Errorf("ledger call %s failed: %w", path, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("ledger call %s returned status %d", path, httpResp.StatusCode)
	}

	var resp transferResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode ledger response: %w", err)
	}
	return &resp, nil
}
