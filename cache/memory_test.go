package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSetGetRoundTrip(t *testing.T) {
	s := NewMemoryStorage()
	defer s.Close()
	ctx := context.Background()

	in := payload{Name: "checkpoint", Count: 3}
	if err := s.Set(ctx, "k1", in, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var out payload
	if err := s.Get(ctx, "k1", &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out != in {
		t.Errorf("Get = %+v, want %+v", out, in)
	}
}

func TestGetMiss(t *testing.T) {
	s := NewMemoryStorage()
	defer s.Close()

	var out payload
	if err := s.Get(context.Background(), "absent", &out); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get(absent) = %v, want ErrCacheMiss", err)
	}
}

func TestExpiry(t *testing.T) {
	s := NewMemoryStorage()
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "k1", payload{Name: "x"}, 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	var out payload
	if err := s.Get(ctx, "k1", &out); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expired entry: Get = %v, want ErrCacheMiss", err)
	}
}

func TestDeleteAndClear(t *testing.T) {
	s := NewMemoryStorage()
	defer s.Close()
	ctx := context.Background()

	_ = s.Set(ctx, "k1", payload{}, time.Minute)
	_ = s.Set(ctx, "k2", payload{}, time.Minute)

	if err := s.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	var out payload
	if err := s.Get(ctx, "k1", &out); !errors.Is(err, ErrCacheMiss) {
		t.Error("deleted key should miss")
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := s.Get(ctx, "k2", &out); !errors.Is(err, ErrCacheMiss) {
		t.Error("cleared key should miss")
	}
}
