package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreSetGetDel(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, found, _ := s.Get(ctx, "k"); found {
		t.Fatal("empty store should miss")
	}
	if err := s.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatal(err)
	}
	v, found, err := s.Get(ctx, "k")
	if err != nil || !found || v != "v" {
		t.Fatalf("get: %q %v %v", v, found, err)
	}

	n, err := s.Del(ctx, "k", "absent")
	if err != nil || n != 1 {
		t.Fatalf("del: %d %v", n, err)
	}
	if _, found, _ := s.Get(ctx, "k"); found {
		t.Fatal("deleted key should miss")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Set(ctx, "short", "v", time.Nanosecond)
	time.Sleep(5 * time.Millisecond)

	if _, found, _ := s.Get(ctx, "short"); found {
		t.Fatal("expired entry should miss")
	}
	ttl, err := s.TTL(ctx, "short")
	if err != nil || ttl != TTLMissing {
		t.Fatalf("ttl after expiry: %d %v", ttl, err)
	}
}

func TestMemoryStoreTTLSentinels(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if ttl, _ := s.TTL(ctx, "absent"); ttl != TTLMissing {
		t.Fatalf("missing key ttl: %d", ttl)
	}

	_ = s.Set(ctx, "forever", "v", 0)
	if ttl, _ := s.TTL(ctx, "forever"); ttl != TTLNoExpiry {
		t.Fatalf("no-expiry ttl: %d", ttl)
	}

	_ = s.Set(ctx, "timed", "v", 90*time.Second)
	ttl, _ := s.TTL(ctx, "timed")
	if ttl < 1 || ttl > 90 {
		t.Fatalf("timed ttl out of range: %d", ttl)
	}
}

func TestMemoryStoreSetNX(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "lock", "1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first setnx: %v %v", ok, err)
	}
	ok, err = s.SetNX(ctx, "lock", "2", time.Minute)
	if err != nil || ok {
		t.Fatalf("second setnx should lose: %v %v", ok, err)
	}

	// An expired holder releases the slot.
	_ = s.Set(ctx, "stale", "1", time.Nanosecond)
	time.Sleep(5 * time.Millisecond)
	if ok, _ := s.SetNX(ctx, "stale", "2", time.Minute); !ok {
		t.Fatal("setnx over expired entry should win")
	}
}

func TestMemoryStoreKeysAndDBSize(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Set(ctx, "reading:daily:u1:2025-01-01", "a", time.Minute)
	_ = s.Set(ctx, "reading:daily:u1:2025-01-02", "b", time.Minute)
	_ = s.Set(ctx, "reading:list:u1", "c", time.Minute)

	keys, err := s.Keys(ctx, "reading:daily:u1:*")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("keys: %v", keys)
	}

	n, err := s.DBSize(ctx)
	if err != nil || n != 3 {
		t.Fatalf("dbsize: %d %v", n, err)
	}

	if _, err := s.Keys(ctx, "[bad"); err == nil {
		t.Fatal("malformed pattern should error")
	}
}
