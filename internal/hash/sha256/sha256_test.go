package sha256

import "testing"

func TestHashIsStableAndHex(t *testing.T) {
	t.Parallel()

	h := New()
	a, err := h.Hash([]byte("screenshot-bytes"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	b, err := h.Hash([]byte("screenshot-bytes"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if a != b {
		t.Fatalf("expected stable digest, got %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	c, _ := h.Hash([]byte("other"))
	if c == a {
		t.Fatal("distinct inputs must not collide")
	}
}
