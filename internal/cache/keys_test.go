package cache

import (
	"context"
	"testing"
	"time"
)

func TestKeyFormats(t *testing.T) {
	if got := ReadingKey("daily", "u1", "2025-03-14"); got != "reading:daily:u1:2025-03-14" {
		t.Fatalf("reading key: %s", got)
	}
	if got := ListKey("u1"); got != "reading:list:u1" {
		t.Fatalf("list key: %s", got)
	}
	if got := LatestKey("u1"); got != "reading:latest:u1" {
		t.Fatalf("latest key: %s", got)
	}
	if got := LockKey("u1", "2025-03-14"); got != "reading:lock:u1:2025-03-14" {
		t.Fatalf("lock key: %s", got)
	}
}

func TestPatterns(t *testing.T) {
	if got := UserReadingPattern("u1"); got != "reading:*:u1:*" {
		t.Fatalf("user pattern: %s", got)
	}
	if got := TypeReadingPattern("daily", "u1"); got != "reading:daily:u1:*" {
		t.Fatalf("type pattern: %s", got)
	}
	if got := AllReadingPattern(); got != "reading:*:*:*" {
		t.Fatalf("all pattern: %s", got)
	}
}

func TestParseReadingDate(t *testing.T) {
	d, ok := ParseReadingDate("reading:daily:u1:2025-03-14")
	if !ok {
		t.Fatal("expected parseable key")
	}
	want := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	if !d.Equal(want) {
		t.Fatalf("date: got %v want %v", d, want)
	}

	// List, latest and lock keys carry no reading date.
	for _, key := range []string{
		"reading:list:u1",
		"reading:latest:u1",
		"reading:lock:u1:2025-03-14",
		"reading:daily:u1:not-a-date",
		"reading:daily:u1",
		"other:daily:u1:2025-03-14",
		"",
	} {
		if _, ok := ParseReadingDate(key); ok {
			t.Fatalf("expected unparseable key: %q", key)
		}
	}
}

func TestIsSingleReadingKey(t *testing.T) {
	if !IsSingleReadingKey("reading:weekly:u2:2024-12-31") {
		t.Fatal("weekly key should count as single reading")
	}
	if IsSingleReadingKey("reading:list:u2") {
		t.Fatal("list key is not a single reading")
	}
}

// A user-scoped wildcard must never cross user boundaries: the class
// segment precedes the user id in every key shape.
func TestUserPatternIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Set(ctx, ReadingKey("daily", "u1", "2025-01-01"), "a", time.Minute)
	_ = s.Set(ctx, ReadingKey("daily", "u10", "2025-01-01"), "b", time.Minute)
	_ = s.Set(ctx, ListKey("u1"), "c", time.Minute)

	keys, err := s.Keys(ctx, UserReadingPattern("u1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "reading:daily:u1:2025-01-01" {
		t.Fatalf("pattern crossed boundaries: %v", keys)
	}
}
