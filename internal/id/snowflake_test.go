package id

import "testing"

func TestNew_UniqueAndOrdered(t *testing.T) {
	if err := Init(7); err != nil {
		t.Fatalf("Init: %v", err)
	}

	prev := New()
	seen := map[int64]bool{prev: true}
	for i := 0; i < 1000; i++ {
		next := New()
		if seen[next] {
			t.Fatalf("duplicate id %d", next)
		}
		if next <= prev {
			t.Fatalf("id %d not greater than %d", next, prev)
		}
		seen[next] = true
		prev = next
	}
}

func TestInit_RejectsOutOfRangeNode(t *testing.T) {
	if err := Init(4096); err == nil {
		t.Fatal("expected error for node 4096")
	}
}
