package catalog

import (
	"errors"
	"strconv"
	"testing"
)

func ranksOf(items []RequiredAssignment) map[string]int {
	out := make(map[string]int, len(items))
	for _, item := range items {
		out[item.AssignmentID] = item.Rank
	}
	return out
}

func TestReassignRanks(t *testing.T) {
	t.Parallel()

	base := []RequiredAssignment{
		{AssignmentID: "a", Rank: 1},
		{AssignmentID: "b", Rank: 2},
		{AssignmentID: "c", Rank: 3},
		{AssignmentID: "d", Rank: 5},
	}

	cases := []struct {
		name   string
		id     string
		target int
		want   map[string]int
	}{
		{name: "move to top bumps chain until gap", id: "d", target: 1, want: map[string]int{"d": 1, "a": 2, "b": 3, "c": 4}},
		{name: "move into free slot", id: "a", target: 4, want: map[string]int{"b": 2, "c": 3, "a": 4, "d": 5}},
		{name: "chain crosses previous slot of moved item", id: "c", target: 1, want: map[string]int{"c": 1, "a": 2, "b": 3, "d": 5}},
		{name: "same rank is a no-op", id: "b", target: 2, want: map[string]int{"a": 1, "b": 2, "c": 3, "d": 5}},
		{name: "move past the end", id: "a", target: 9, want: map[string]int{"b": 2, "c": 3, "d": 5, "a": 9}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ReassignRanks(base, tc.id, tc.target)
			if err != nil {
				t.Fatalf("ReassignRanks returned error: %v", err)
			}
			ranks := ranksOf(got)
			for id, want := range tc.want {
				if ranks[id] != want {
					t.Fatalf("expected %s at %d, got %d (all: %v)", id, want, ranks[id], ranks)
				}
			}
			for i := 1; i < len(got); i++ {
				if got[i-1].Rank >= got[i].Rank {
					t.Fatalf("expected strictly ascending ranks, got %v", ranks)
				}
			}
		})
	}

	if base[3].Rank != 5 || base[0].Rank != 1 {
		t.Fatalf("input must not be modified: %+v", base)
	}
}

func TestReassignRanks_LongChainIsIterative(t *testing.T) {
	t.Parallel()

	const n = 50000
	items := make([]RequiredAssignment, n)
	for i := range items {
		items[i] = RequiredAssignment{AssignmentID: "x" + strconv.Itoa(i), Rank: i + 1}
	}

	got, err := ReassignRanks(items, "x"+strconv.Itoa(n-1), 1)
	if err != nil {
		t.Fatalf("ReassignRanks returned error: %v", err)
	}
	if got[0].AssignmentID != "x"+strconv.Itoa(n-1) || got[n-1].Rank != n {
		t.Fatalf("unexpected ordering: first=%+v last=%+v", got[0], got[n-1])
	}
}

func TestReassignRanks_Errors(t *testing.T) {
	t.Parallel()

	items := []RequiredAssignment{{AssignmentID: "a", Rank: 1}}
	if _, err := ReassignRanks(items, "a", 0); !errors.Is(err, ErrInvalidRank) {
		t.Fatalf("expected ErrInvalidRank, got %v", err)
	}
	if _, err := ReassignRanks(items, "z", 1); !errors.Is(err, ErrRequirementNotFound) {
		t.Fatalf("expected ErrRequirementNotFound, got %v", err)
	}
}
