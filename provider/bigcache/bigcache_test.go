package bigcache

import (
	"bytes"
	"context"
	"testing"
)

func TestRoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	p, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close(ctx) })

	if _, hit, err := p.Get(ctx, "journal:x:0"); hit || err != nil {
		t.Fatalf("empty cache: hit=%v err=%v", hit, err)
	}
	val := []byte("request bytes")
	if ok, err := p.Set(ctx, "journal:x:0", val, 0, 0); !ok || err != nil {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	got, hit, err := p.Get(ctx, "journal:x:0")
	if err != nil || !hit || !bytes.Equal(got, val) {
		t.Fatalf("Get: hit=%v got=%q err=%v", hit, got, err)
	}
	if err := p.Del(ctx, "journal:x:0"); err != nil {
		t.Fatal(err)
	}
	if err := p.Del(ctx, "journal:x:0"); err != nil {
		t.Fatalf("deleting a missing key must not fail: %v", err)
	}
}

func TestRejectsZeroLifeWindow(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for zero LifeWindow")
	}
}
