package payment

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisTokenKey = "bms:payment-gateway:token"

// RedisTokenCache хранит токен шлюза в Redis: экземпляры сервиса делят один
// токен и не выпускают лишние.
type RedisTokenCache struct {
	client *redis.Client
	key    string
}

// NewRedisTokenCache создаёт кэш поверх готового клиента Redis.
func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{client: client, key: redisTokenKey}
}

// Get возвращает токен; промах кэша ошибкой не считается.
func (c *RedisTokenCache) Get(ctx context.Context) (string, error) {
	token, err := c.client.Get(ctx, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

// Set сохраняет токен с TTL.
func (c *RedisTokenCache) Set(ctx context.Context, token string, ttl time.Duration) error {
	return c.client.Set(ctx, c.key, token, ttl).Err()
}

// Invalidate удаляет токен.
func (c *RedisTokenCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}
