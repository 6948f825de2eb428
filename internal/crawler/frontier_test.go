package crawler

import (
	"slices"
	"testing"
)

func TestFrontierPushDeduplicates(t *testing.T) {
	t.Parallel()

	f := NewFrontier()
	if !f.Push("https://a.test") {
		t.Fatal("first push rejected")
	}
	if f.Push("https://a.test") {
		t.Error("duplicate push accepted")
	}
	if got := f.Size(); got != 1 {
		t.Errorf("Size = %d, want 1", got)
	}
}

func TestFrontierDrainOrdersLeastVisitedFirst(t *testing.T) {
	t.Parallel()

	counts := map[string]int{"a.test": 5, "b.test": 0, "c.test": 2, "d.test": 0}
	f := NewFrontier()
	for _, u := range []string{"https://a.test", "https://c.test", "https://d.test", "https://b.test"} {
		f.Push(u)
	}

	got := f.Drain(func(root string) int { return counts[root] })
	want := []string{"https://b.test", "https://d.test", "https://c.test", "https://a.test"}
	if !slices.Equal(got, want) {
		t.Errorf("Drain() = %v, want %v", got, want)
	}

	if f.Size() != 0 {
		t.Errorf("frontier not empty after Drain")
	}
	if !f.Push("https://a.test") {
		t.Error("drained URL cannot be pushed again")
	}
}

func TestFrontierDrainUnknownDomainsCountZero(t *testing.T) {
	t.Parallel()

	f := NewFrontier()
	f.Push("https://known.test")
	f.Push("https://new.test")

	got := f.Drain(func(root string) int {
		if root == "known.test" {
			return 1
		}
		return 0
	})
	if got[0] != "https://new.test" {
		t.Errorf("Drain() = %v, want new.test first", got)
	}
}
