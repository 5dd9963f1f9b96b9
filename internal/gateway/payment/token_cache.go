package payment

import (
	"context"
	"sync"
	"time"
)

// TokenCache хранит токен доступа к шлюзу между запросами.
// Пустая строка без ошибки означает промах.
type TokenCache interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

// MemoryTokenCache — процессный кэш токена с TTL.
type MemoryTokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewMemoryTokenCache создаёт пустой кэш.
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{}
}

// Get возвращает токен, если он ещё не истёк.
func (c *MemoryTokenCache) Get(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" || time.Now().After(c.expiresAt) {
		return "", nil
	}
	return c.token, nil
}

// Set сохраняет токен на ttl.
func (c *MemoryTokenCache) Set(_ context.Context, token string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = token
	c.expiresAt = time.Now().Add(ttl)
	return nil
}

// Invalidate сбрасывает токен.
func (c *MemoryTokenCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = ""
	c.expiresAt = time.Time{}
	return nil
}
