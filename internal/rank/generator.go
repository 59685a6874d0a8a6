package rank

import "sort"

// Item is the (id, rank) view of one entry in an ordered column.
type Item struct {
	ID   string
	Rank Rank
}

// Assignment pairs an item with a freshly generated rank.
type Assignment struct {
	ID   string
	Rank Rank
}

// CalculateNewRank returns the rank that places movedID at newIndex of items.
//
// items must be sorted by ascending rank. Any entry for movedID is removed
// first, so newIndex addresses the column as it looks without the moved
// item. Indexes past the end append; negative indexes prepend.
func CalculateNewRank(items []Item, movedID string, newIndex int) (Rank, error) {
	working := make([]Item, 0, len(items))
	for _, it := range items {
		if it.ID != movedID {
			working = append(working, it)
		}
	}

	if len(working) == 0 {
		return Min(), nil
	}
	if newIndex <= 0 {
		return Before(working[0].Rank)
	}
	if newIndex >= len(working) {
		return After(working[len(working)-1].Rank)
	}
	return Between(working[newIndex-1].Rank, working[newIndex].Rank)
}

// InitializeRanks assigns fresh, strictly increasing ranks to items in the
// order given.
func InitializeRanks(items []Item) []Assignment {
	ranks := GenerateRanks(len(items))
	out := make([]Assignment, len(items))
	for i, it := range items {
		out[i] = Assignment{ID: it.ID, Rank: ranks[i]}
	}
	return out
}

// LengthSlack is how far ranks may grow past a fresh assignment in a column
// too large for the configured length limit.
const LengthSlack = 4

// GeneratedLength returns the length of the longest rank GenerateRanks(count)
// produces. After steps the last character from MidChar to MaxChar before
// growing the rank by one.
func GeneratedLength(count int) int {
	if count <= 0 {
		return 0
	}
	return 1 + (count-1)/(int(MaxChar-MidChar)+1)
}

// LengthLimit returns the rank length above which a column of count items is
// worth rewriting. It is limit unless fresh ranks for that many items would
// already exceed it; then rewriting cannot get under limit, and the bound
// moves to GeneratedLength(count) + LengthSlack.
func LengthLimit(count, limit int) int {
	if fresh := GeneratedLength(count); fresh > limit {
		return fresh + LengthSlack
	}
	return limit
}

// SortByRank returns a copy of items stably sorted by rank.
func SortByRank(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Rank.Less(out[j].Rank)
	})
	return out
}
