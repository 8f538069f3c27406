package redisstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/micro-ha/remeha-home/addon/internal/model"
	"github.com/micro-ha/remeha-home/addon/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	store, err := Open(context.Background(), url)
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestTokensRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	id := "test-zone-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = store.DeleteTokens(ctx, id) })

	tokens := model.TokenData{
		AccessToken:  "access",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
		ExpiresAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		RefreshToken: "refresh",
	}
	if err := store.SaveTokens(ctx, id, tokens); err != nil {
		t.Fatalf("SaveTokens() error: %v", err)
	}
	got, err := store.LoadTokens(ctx, id)
	if err != nil {
		t.Fatalf("LoadTokens() error: %v", err)
	}
	if diff := cmp.Diff(tokens, got); diff != "" {
		t.Fatalf("tokens mismatch (-want +got):\n%s", diff)
	}

	if err := store.DeleteTokens(ctx, id); err != nil {
		t.Fatalf("DeleteTokens() error: %v", err)
	}
	if _, err := store.LoadTokens(ctx, id); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestKeyLayout(t *testing.T) {
	if got := key("zone-1"); got != "remeha:tokens:zone-1" {
		t.Fatalf("key = %q", got)
	}
}
