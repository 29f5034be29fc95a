// internal/idempotency/store.go
//
// Package idempotency 保存帶有 Idempotency-Key 的寫入請求之回應，
// 讓客戶端重送同一個請求時取得相同結果，而不會重複記帳。
// 另外以短期鎖避免同一個 key 的兩個請求同時進入帳本核心。
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "ledger:idempotency:"
	lockSuffix = ":lock"
	lockTTL    = 30 * time.Second
)

// Response is a replayable HTTP response.
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

// Store 為回應快取的抽象；找不到時 Get 回傳 (nil, nil)。
type Store interface {
	Get(ctx context.Context, key string) (*Response, error)
	Set(ctx context.Context, key string, r Response, ttl time.Duration) error
	Reserve(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisStore 以 Redis 實作 Store。
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore 包裝既有的 client；client 的生命週期由呼叫端管理。
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Connect 解析 redis:// URL 並以 PING 確認連線。
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Get 讀取 key 對應的回應。
func (s *RedisStore) Get(ctx context.Context, key string) (*Response, error) {
	val, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var r Response
	if err := json.Unmarshal(val, &r); err != nil {
		return nil, fmt.Errorf("decode cached response: %w", err)
	}
	return &r, nil
}

// Set 保存回應；ttl 為 0 代表不過期。
func (s *RedisStore) Set(ctx context.Context, key string, r Response, ttl time.Duration) error {
	val, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+key, val, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Reserve 嘗試取得 key 的處理權；已有其他請求處理中時回傳 false。
func (s *RedisStore) Reserve(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, keyPrefix+key+lockSuffix, 1, lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Release 釋放處理權；鎖不存在時不視為錯誤。
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key+lockSuffix).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Key 將請求者與客戶端提供的 key 組合，不同使用者的 key 互不影響。
func Key(requester, clientKey string) string {
	return requester + ":" + clientKey
}
