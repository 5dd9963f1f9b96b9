// Package mileage содержит клиент сервиса накопления миль.
package mileage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vmaslennikov/bms/internal/domain"
)

const (
	defaultTimeout = 3 * time.Second
	creditPath     = "/v1/mileage/credits"
)

// Config — настройки клиента миль.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client начисляет мили через внешний сервис. Используется только best-effort:
// все ошибки доходят до вызывающей стороны, но она их лишь логирует.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *log.Entry
}

// NewClient создаёт клиент сервиса миль.
func NewClient(cfg Config, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.New().WithField("component", "mileage")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Credit начисляет amountMinor миль покупателю и возвращает баланс после
// начисления.
func (c *Client) Credit(ctx context.Context, buyerID string, amountMinor int64, reason string) (int64, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"user_id": buyerID,
		"amount":  amountMinor,
		"reason":  reason,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal credit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+creditPath, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build credit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("mileage service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("mileage service returned %d", resp.StatusCode)
	}

	var body struct {
		Balance int64 `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode credit response: %w", err)
	}
	return body.Balance, nil
}

var _ domain.MileageLedger = (*Client)(nil)
