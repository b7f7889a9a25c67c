package filecache

import (
	"errors"
	"testing"
	"time"
)

func TestCache_SetGetRoundTrip(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New err=%v", err)
	}

	type payload struct {
		Summary string `json:"summary"`
		Count   int    `json:"count"`
	}
	in := payload{Summary: "Новости дня", Count: 3}
	if err := c.Set("https://ex.com/a1", in, time.Hour); err != nil {
		t.Fatalf("Set err=%v", err)
	}

	var out payload
	if err := c.Get("https://ex.com/a1", &out); err != nil {
		t.Fatalf("Get err=%v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestCache_ExpiryIsLazy(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New err=%v", err)
	}
	base := time.Date(2025, 7, 29, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	if err := c.Set("k", "v", time.Minute); err != nil {
		t.Fatalf("Set err=%v", err)
	}

	var got string
	if err := c.Get("k", &got); err != nil {
		t.Fatalf("fresh entry missing: %v", err)
	}

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	if err := c.Get("k", &got); !errors.Is(err, ErrMiss) {
		t.Fatalf("want ErrMiss after expiry, got %v", err)
	}
	// The expired file was removed on read.
	if err := c.Get("k", &got); !errors.Is(err, ErrMiss) {
		t.Fatalf("want ErrMiss on second read, got %v", err)
	}
}

func TestCache_Sweep(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New err=%v", err)
	}
	base := time.Date(2025, 7, 29, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	_ = c.Set("old", 1, time.Minute)
	_ = c.Set("fresh", 2, time.Hour)

	c.now = func() time.Time { return base.Add(10 * time.Minute) }
	purged, err := c.Sweep()
	if err != nil {
		t.Fatalf("Sweep err=%v", err)
	}
	if purged != 1 {
		t.Fatalf("want 1 purged, got %d", purged)
	}

	var v int
	if err := c.Get("fresh", &v); err != nil || v != 2 {
		t.Fatalf("fresh entry lost: v=%d err=%v", v, err)
	}
}

func TestCache_MissOnUnknownKey(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New err=%v", err)
	}
	var v string
	if err := c.Get("nope", &v); !errors.Is(err, ErrMiss) {
		t.Fatalf("want ErrMiss, got %v", err)
	}
}
