package review

import (
	"fmt"
	"reflect"
	"slices"
	"testing"
)

func sampleItems() []Item {
	var items []Item
	for c := 0; c < 6; c++ {
		for q := 0; q < 4; q++ {
			items = append(items, Item{
				Context:  fmt.Sprintf("context %d", c),
				Question: fmt.Sprintf("question %d.%d", c, q),
				Answer:   fmt.Sprintf("answer %d.%d", c, q),
			})
		}
	}
	return items
}

func sortedItems(items []Item) []Item {
	out := slices.Clone(items)
	slices.SortFunc(out, func(a, b Item) int {
		if a.Context != b.Context {
			if a.Context < b.Context {
				return -1
			}
			return 1
		}
		switch {
		case a.Question < b.Question:
			return -1
		case a.Question > b.Question:
			return 1
		}
		return 0
	})
	return out
}

func TestShufflePreservesMultiset(t *testing.T) {
	items := sampleItems()
	for _, id := range []string{"alice", "bob", "", "prolific-5f3c"} {
		got := Shuffle(id, items)
		if !reflect.DeepEqual(sortedItems(got), sortedItems(items)) {
			t.Errorf("Shuffle(%q) changed the item multiset", id)
		}
	}
}

func TestShuffleKeepsContextsContiguous(t *testing.T) {
	items := sampleItems()
	// Interleave contexts in the input; output must still group them.
	items = append(items, Item{Context: "context 0", Question: "late", Answer: "x"})

	for _, id := range []string{"alice", "bob", "carol"} {
		got := Shuffle(id, items)
		closed := map[string]bool{}
		prev := ""
		for _, it := range got {
			if it.Context != prev {
				if closed[it.Context] {
					t.Fatalf("Shuffle(%q): context %q is not contiguous", id, it.Context)
				}
				if prev != "" {
					closed[prev] = true
				}
				prev = it.Context
			}
		}
	}
}

func TestShuffleDeterministic(t *testing.T) {
	items := sampleItems()
	a := Shuffle("alice", items)
	b := Shuffle("alice", items)
	if !reflect.DeepEqual(a, b) {
		t.Error("same identity and input produced different orders")
	}

	c := Shuffle("bob", items)
	if reflect.DeepEqual(a, c) {
		t.Error("different identities produced the same order")
	}
}

func TestShuffleDoesNotModifyInput(t *testing.T) {
	items := sampleItems()
	orig := slices.Clone(items)
	Shuffle("alice", items)
	if !reflect.DeepEqual(items, orig) {
		t.Error("Shuffle modified its input")
	}
}

func TestShuffleEmpty(t *testing.T) {
	if got := Shuffle("alice", nil); len(got) != 0 {
		t.Errorf("Shuffle(nil) = %v, want empty", got)
	}
}
