package localstate

import (
	"context"
	"testing"
)

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, exists, err := m.Get(ctx, "missing"); err != nil || exists {
		t.Fatalf("expected miss for unknown key, exists=%v err=%v", exists, err)
	}

	if err := m.Set(ctx, "k", []byte(`{"n":1}`)); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	raw, exists, err := m.Get(ctx, "k")
	if err != nil || !exists {
		t.Fatalf("expected hit, exists=%v err=%v", exists, err)
	}
	if string(raw) != `{"n":1}` {
		t.Fatalf("round-trip mismatch: %s", raw)
	}

	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, exists, _ := m.Get(ctx, "k"); exists {
		t.Fatalf("expected key gone after delete")
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	value := []byte("original")
	if err := m.Set(ctx, "k", value); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value[0] = 'X'

	raw, _, _ := m.Get(ctx, "k")
	if string(raw) != "original" {
		t.Fatalf("stored value must not alias caller buffer, got %s", raw)
	}
	raw[0] = 'Y'

	again, _, _ := m.Get(ctx, "k")
	if string(again) != "original" {
		t.Fatalf("returned value must not alias stored buffer, got %s", again)
	}
}
