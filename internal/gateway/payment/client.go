// Package payment содержит HTTP-клиент внешнего платёжного шлюза: выпуск
// токена доступа с кэшированием и загрузку платежа по внешнему идентификатору.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vmaslennikov/bms/internal/domain"
)

const (
	defaultTimeout  = 5 * time.Second
	defaultTokenTTL = 10 * time.Minute

	tokenPath   = "/v1/auth/token"
	paymentPath = "/v1/payments/"
)

// Config — настройки клиента шлюза.
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
	// TokenTTL ограничивает срок жизни токена в кэше, если шлюз
	// не прислал собственный expires_in.
	TokenTTL time.Duration
}

// Client — клиент платёжного шлюза. Все сетевые сбои и отрицательные ответы
// схлопываются в domain.ErrPaymentLookupFailed: вызывающая сторона различает
// только «платёж сверен» и «сверка не удалась».
type Client struct {
	cfg        Config
	httpClient *http.Client
	cache      TokenCache
	breaker    *Breaker
	logger     *log.Entry
}

// NewClient создаёт клиент шлюза. cache обязателен; при отсутствии Redis
// используется MemoryTokenCache.
func NewClient(cfg Config, cache TokenCache, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.New().WithField("component", "payment-gateway")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cache == nil {
		cache = NewMemoryTokenCache()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache,
		breaker:    NewBreaker(5, 30*time.Second, logger),
		logger:     logger,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type paymentResponse struct {
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Method    string `json:"method"`
	Status    string `json:"status"`
	PaidAt    string `json:"paid_at"`
}

// GetPayment возвращает платёж по внешнему идентификатору.
func (c *Client) GetPayment(ctx context.Context, externalID string) (domain.PaymentRecord, error) {
	var record domain.PaymentRecord
	err := c.breaker.Execute("GetPayment", func() error {
		var err error
		record, err = c.getPayment(ctx, externalID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrBreakerOpen) {
			return domain.PaymentRecord{}, fmt.Errorf("%w: %v", domain.ErrPaymentLookupFailed, err)
		}
		return domain.PaymentRecord{}, err
	}
	return record, nil
}

func (c *Client) getPayment(ctx context.Context, externalID string) (domain.PaymentRecord, error) {
	resp, err := c.doAuthorized(ctx, externalID)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Разбираем ниже.
	case resp.StatusCode == http.StatusNotFound:
		return domain.PaymentRecord{}, fmt.Errorf("%w: payment %s not found",
			domain.ErrPaymentLookupFailed, externalID)
	default:
		return domain.PaymentRecord{}, fmt.Errorf("%w: gateway returned %d",
			domain.ErrPaymentLookupFailed, resp.StatusCode)
	}

	var body paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("%w: decode response: %v",
			domain.ErrPaymentLookupFailed, err)
	}
	if body.Status != "paid" {
		return domain.PaymentRecord{}, fmt.Errorf("%w: payment %s is %q",
			domain.ErrPaymentLookupFailed, externalID, body.Status)
	}

	record := domain.PaymentRecord{
		ExternalID:  body.PaymentID,
		AmountMinor: body.Amount,
		Method:      body.Method,
	}
	if body.PaidAt != "" {
		if paidAt, parseErr := time.Parse(time.RFC3339, body.PaidAt); parseErr == nil {
			record.PaidAt = paidAt
		}
	}
	return record, nil
}

// doAuthorized выполняет запрос платежа с токеном; на 401 сбрасывает кэш
// и повторяет один раз со свежим токеном.
func (c *Client) doAuthorized(ctx context.Context, externalID string) (*http.Response, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.token(ctx, attempt > 0)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.cfg.BaseURL+paymentPath+externalID, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPaymentLookupFailed, err)
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			c.logger.Debug("gateway token rejected, refreshing")
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("%w: token rejected twice", domain.ErrPaymentLookupFailed)
}

// token возвращает токен из кэша либо выпускает новый.
func (c *Client) token(ctx context.Context, force bool) (string, error) {
	if force {
		if err := c.cache.Invalidate(ctx); err != nil {
			c.logger.WithError(err).Warn("failed to invalidate token cache")
		}
	} else {
		cached, err := c.cache.Get(ctx)
		if err != nil {
			c.logger.WithError(err).Warn("token cache unavailable, issuing fresh token")
		} else if cached != "" {
			return cached, nil
		}
	}

	payload, _ := json.Marshal(map[string]string{
		"api_key":    c.cfg.APIKey,
		"api_secret": c.cfg.APISecret,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+tokenPath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPaymentLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		io.Copy(io.Discard, resp.Body)
		return "", domain.ErrPaymentTokenRejected
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned %d",
			domain.ErrPaymentLookupFailed, resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", domain.ErrPaymentLookupFailed, err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", domain.ErrPaymentLookupFailed)
	}

	ttl := c.cfg.TokenTTL
	if body.ExpiresIn > 0 {
		issued := time.Duration(body.ExpiresIn) * time.Second
		if issued < ttl {
			ttl = issued
		}
	}
	if err := c.cache.Set(ctx, body.AccessToken, ttl); err != nil {
		c.logger.WithError(err).Warn("failed to cache gateway token")
	}
	return body.AccessToken, nil
}

var _ domain.PaymentGateway = (*Client)(nil)
