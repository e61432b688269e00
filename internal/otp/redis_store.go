package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"campus-auth-service/internal/client"
	"campus-auth-service/internal/util"
)

const otpKeyPrefix = "login_otp:"

// consumeScript is the check-and-delete from Consume as one atomic server
// round trip: exactly one of two racing attempts with the correct code can
// observe the key. Expiry is Redis TTL, set from the absolute expiry on Put.
var consumeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
  return 0
end
if v == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)

// RedisStore is the Store implementation for sharded deployments where
// login requests may land on different instances.
type RedisStore struct {
	client *client.RedisClient
}

func NewRedisStore(client *client.RedisClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, userID, code string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// An already-expired entry still supersedes the previous one.
		if err := s.client.Client.Del(ctx, otpKeyPrefix+userID).Err(); err != nil {
			return fmt.Errorf("failed to supersede one-time code: %w", err)
		}
		return nil
	}

	if err := s.client.Client.Set(ctx, otpKeyPrefix+userID, code, ttl).Err(); err != nil {
		util.Error("Failed to store one-time code",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to store one-time code: %w", err)
	}

	util.Debug("One-time code stored",
		zap.String("user_id", userID),
		zap.Duration("ttl", ttl))
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, userID, code string) (bool, error) {
	res, err := consumeScript.Run(ctx, s.client.Client, []string{otpKeyPrefix + userID}, code).Int()
	if err != nil {
		util.Error("Failed to consume one-time code",
			zap.String("user_id", userID),
			zap.Error(err))
		return false, fmt.Errorf("failed to consume one-time code: %w", err)
	}
	return res == 1, nil
}
