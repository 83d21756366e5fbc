package redis

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

func TestNilClient(t *testing.T) {
	if _, err := New(Config{}); err != ErrNilClient {
		t.Fatalf("want ErrNilClient, got %v", err)
	}
}

// TestRoundTrip runs against a real server when TELEPEER_REDIS_ADDR is set.
func TestRoundTrip(t *testing.T) {
	addr := os.Getenv("TELEPEER_REDIS_ADDR")
	if addr == "" {
		t.Skip("TELEPEER_REDIS_ADDR not set")
	}
	ctx := context.Background()
	p, err := New(Config{
		Client:      goredis.NewClient(&goredis.Options{Addr: addr}),
		Prefix:      fmt.Sprintf("telepeer:test:%d:", time.Now().UnixNano()),
		CloseClient: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close(ctx)

	if _, ok, err := p.Get(ctx, "journal:x:1"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	want := []byte{0x00, 0xff, 'A', 0x10}
	if ok, err := p.Set(ctx, "journal:x:1", want, 4, time.Minute); err != nil || !ok {
		t.Fatalf("set ok=%v err=%v", ok, err)
	}
	got, ok, err := p.Get(ctx, "journal:x:1")
	if err != nil || !ok || !bytes.Equal(got, want) {
		t.Fatalf("get=%v ok=%v err=%v", got, ok, err)
	}
	if err := p.Del(ctx, "journal:x:1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := p.Get(ctx, "journal:x:1"); ok {
		t.Fatalf("expected miss after Del")
	}
	if err := p.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
