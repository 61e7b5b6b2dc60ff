package catalog

import "sort"

// ReassignRanks は assignmentID を target の順位へ移動した後の順位表を返します。
//
// 移動先に既存の項目があれば一つ下へずらし、ずらした先でも衝突があれば同様に繰り返します。
// 衝突が無くなった時点で止まるため、空き順位より後ろの項目は動きません。
// 入力は変更せず、Rank 昇順の新しいスライスを返します。
func ReassignRanks(items []RequiredAssignment, assignmentID string, target int) ([]RequiredAssignment, error) {
	if target < 1 {
		return nil, ErrInvalidRank
	}

	out := make([]RequiredAssignment, len(items))
	copy(out, items)

	moved := -1
	occupant := make(map[int]int, len(out))
	for i, item := range out {
		if item.AssignmentID == assignmentID {
			moved = i
			continue
		}
		occupant[item.Rank] = i
	}
	if moved < 0 {
		return nil, ErrRequirementNotFound
	}

	out[moved].Rank = target
	rank := target
	bumped, conflict := occupant[rank]
	for conflict {
		rank++
		next, nextConflict := occupant[rank]
		out[bumped].Rank = rank
		bumped, conflict = next, nextConflict
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}
