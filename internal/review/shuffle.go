package review

import (
	"hash/fnv"
	"math/rand/v2"
)

// Shuffle returns items in a reviewer-specific order. Items are grouped by
// context in first-seen order, each group is permuted, then the groups
// themselves are permuted, all from one generator seeded by identity. Items
// sharing a context stay contiguous. The input slice is not modified.
func Shuffle(identity string, items []Item) []Item {
	rng := rand.New(seedFor(identity))

	var order []string
	groups := make(map[string][]Item)
	for _, it := range items {
		if _, ok := groups[it.Context]; !ok {
			order = append(order, it.Context)
		}
		groups[it.Context] = append(groups[it.Context], it)
	}

	for _, ctx := range order {
		g := groups[ctx]
		rng.Shuffle(len(g), func(i, j int) { g[i], g[j] = g[j], g[i] })
	}
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	out := make([]Item, 0, len(items))
	for _, ctx := range order {
		out = append(out, groups[ctx]...)
	}
	return out
}

func seedFor(identity string) *rand.PCG {
	h := fnv.New64a()
	h.Write([]byte(identity))
	seed := h.Sum64()
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}
