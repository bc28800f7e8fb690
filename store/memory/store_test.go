package memory_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/warrennet/warren"
	"github.com/warrennet/warren/store/memory"
)

func TestStore_PutGetRoundTrip(t *testing.T) {
	ctx := t.Context()
	m := memory.New()

	if err := m.Put(ctx, "k1", []byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := m.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Errorf("Get = %q, want %q", got, "hello")
	}
}

func TestStore_GetMissingKey(t *testing.T) {
	m := memory.New()

	_, err := m.Get(t.Context(), "nope")
	if !errors.Is(err, warren.ErrRequestNotFound) {
		t.Fatalf("err = %v, want ErrRequestNotFound", err)
	}
}

func TestStore_PutOverwrites(t *testing.T) {
	ctx := t.Context()
	m := memory.New()

	if err := m.Put(ctx, "k1", []byte("old")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := m.Put(ctx, "k1", []byte("new")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := m.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "new" {
		t.Errorf("Get = %q, want %q", got, "new")
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}

func TestStore_BlobIsolation(t *testing.T) {
	ctx := t.Context()
	m := memory.New()

	in := []byte("stable")
	if err := m.Put(ctx, "k1", in); err != nil {
		t.Fatalf("Put: %v", err)
	}
	in[0] = 'X'

	out, err := m.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(out) != "stable" {
		t.Errorf("stored blob mutated through caller slice: %q", out)
	}

	out[0] = 'Y'
	again, err := m.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(again) != "stable" {
		t.Errorf("stored blob mutated through returned slice: %q", again)
	}
}

func TestStore_DeleteAndKeys(t *testing.T) {
	ctx := t.Context()
	m := memory.New()

	for _, k := range []string{"a", "b", "c"} {
		if err := m.Put(ctx, k, []byte(k)); err != nil {
			t.Fatalf("Put %q: %v", k, err)
		}
	}
	if err := m.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Deleting an absent key is not an error.
	if err := m.Delete(ctx, "b"); err != nil {
		t.Fatalf("repeat Delete: %v", err)
	}

	keys, err := m.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("Keys = %v, want 2 entries", keys)
	}
	seen := map[string]bool{}
	for _, k := range keys {
		seen[k] = true
	}
	if !seen["a"] || !seen["c"] {
		t.Errorf("Keys = %v, want a and c", keys)
	}
}

func TestStore_ClosedRefusesEverything(t *testing.T) {
	ctx := t.Context()
	m := memory.New()
	if err := m.Put(ctx, "k1", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := m.Put(ctx, "k2", []byte("v")); !errors.Is(err, warren.ErrStoreClosed) {
		t.Errorf("Put err = %v, want ErrStoreClosed", err)
	}
	if _, err := m.Get(ctx, "k1"); !errors.Is(err, warren.ErrStoreClosed) {
		t.Errorf("Get err = %v, want ErrStoreClosed", err)
	}
	if err := m.Delete(ctx, "k1"); !errors.Is(err, warren.ErrStoreClosed) {
		t.Errorf("Delete err = %v, want ErrStoreClosed", err)
	}
	if _, err := m.Keys(ctx); !errors.Is(err, warren.ErrStoreClosed) {
		t.Errorf("Keys err = %v, want ErrStoreClosed", err)
	}
}

func TestStore_MigrateAndPing(t *testing.T) {
	ctx := t.Context()
	m := memory.New()
	if err := m.Migrate(ctx); err != nil {
		t.Errorf("Migrate: %v", err)
	}
	if err := m.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
