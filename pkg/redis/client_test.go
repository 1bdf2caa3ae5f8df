package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/pharmacy-backend/pkg/config"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{cmd: mock}

	allowed, count, err := client.FixedWindowAllow(ctx, "staff-1", 2, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 1 {
		t.Fatalf("expected first request allowed, got allowed=%v count=%d", allowed, count)
	}
	if len(mock.expireCalls) != 1 || mock.expireCalls[0].ttl != time.Minute {
		t.Fatalf("expected a single expire with the window, got %+v", mock.expireCalls)
	}

	if allowed, _, _ = client.FixedWindowAllow(ctx, "staff-1", 2, time.Minute); !allowed {
		t.Fatalf("expected second request allowed")
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expire should not be set again")
	}

	allowed, count, err = client.FixedWindowAllow(ctx, "staff-1", 2, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed || count != 3 {
		t.Fatalf("expected limit reached, got allowed=%v count=%d", allowed, count)
	}
}

func TestIdempotencyRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmd: newMockCmdable()}
	key := client.IdempotencyKey("staff|POST|/api/v1/prescriptions/p1/fulfill", "abc")

	if _, err := client.Get(ctx, key); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil for missing key, got %v", err)
	}
	if ok, err := client.SetNX(ctx, key, "first", time.Hour); err != nil || !ok {
		t.Fatalf("expected first SetNX to win, ok=%v err=%v", ok, err)
	}
	if ok, _ := client.SetNX(ctx, key, "second", time.Hour); ok {
		t.Fatalf("second SetNX must not overwrite")
	}
	if got, _ := client.Get(ctx, key); got != "first" {
		t.Fatalf("expected stored value, got %q", got)
	}
	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestKeys(t *testing.T) {
	keys := NewKeys("prod")
	if got := keys.Idempotency("scope", "id"); got != "rx:prod:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := keys.RateLimit(" staff "); got != "rx:prod:rate_limit:staff" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := keys.Lock("maintenance-worker"); got != "rx:prod:lock:maintenance-worker" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := NewKeys("").Idempotency("", "id"); got != "rx:idempotency:id" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
	if got := (Keys{}).Lock("x"); got != "rx:lock:x" {
		t.Fatalf("zero Keys should still use the root namespace, got %s", got)
	}

	client := &Client{keys: keys}
	if client.LockKey("a") != keys.Lock("a") || client.IdempotencyKey("s", "i") != keys.Idempotency("s", "i") {
		t.Fatalf("client key helpers should delegate to Keys")
	}
}

func TestSetOverwrites(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmd: newMockCmdable()}
	if ok, _ := client.SetNX(ctx, "k", "pending", time.Minute); !ok {
		t.Fatalf("expected claim to succeed")
	}
	if err := client.Set(ctx, "k", "final", time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got, _ := client.Get(ctx, "k"); got != "final" {
		t.Fatalf("expected overwrite, got %q", got)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatalf("expected error from uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on uninitialized client should be a no-op, got %v", err)
	}
	if _, err := client.CompareAndDelete(context.Background(), "k", "t"); !errors.Is(err, errNotInitialized) {
		t.Fatalf("compare-and-delete needs a live client, got %v", err)
	}
	var nilClient *Client
	if _, err := nilClient.Get(context.Background(), "k"); !errors.Is(err, errNotInitialized) {
		t.Fatalf("nil client should report not initialized, got %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected error without url or address")
	}

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 2 || opts.PoolSize != 7 {
		t.Fatalf("unexpected options db=%d pool=%d", opts.DB, opts.PoolSize)
	}

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 3, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6379" || opts.DB != 3 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
}

type mockCmdable struct {
	data        map[string]string
	incr        map[string]int64
	expireCalls []expireCall
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		incr: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(_ context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: expiration})
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
