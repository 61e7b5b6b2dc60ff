package changes

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
)

// Replay は previous に差分レポートのパッチを適用した StateTree を返します。
func Replay(previous *snapshot.StateTree, report *Report) (snapshot.StateTree, error) {
	var base snapshot.StateTree
	if previous != nil {
		base = *previous
	}
	base.Normalize()

	doc, err := json.Marshal(base)
	if err != nil {
		return snapshot.StateTree{}, fmt.Errorf("encode previous tree: %w", err)
	}
	if report == nil || len(report.Patch) == 0 {
		return base, nil
	}

	raw, err := json.Marshal(report.Patch)
	if err != nil {
		return snapshot.StateTree{}, fmt.Errorf("encode patch: %w", err)
	}
	patch, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return snapshot.StateTree{}, fmt.Errorf("decode patch: %w", err)
	}
	applied, err := patch.Apply(doc)
	if err != nil {
		return snapshot.StateTree{}, fmt.Errorf("apply patch: %w", err)
	}

	var out snapshot.StateTree
	if err := json.Unmarshal(applied, &out); err != nil {
		return snapshot.StateTree{}, fmt.Errorf("decode replayed tree: %w", err)
	}
	out.Normalize()
	return out, nil
}

// Consistent は previous にパッチを適用した結果が proposed と一致するかを返します。
func Consistent(previous *snapshot.StateTree, proposed snapshot.StateTree, report *Report) (bool, error) {
	replayed, err := Replay(previous, report)
	if err != nil {
		return false, err
	}
	proposed.Normalize()

	left, err := json.Marshal(replayed)
	if err != nil {
		return false, err
	}
	right, err := json.Marshal(proposed)
	if err != nil {
		return false, err
	}
	return jsonpatch.Equal(left, right), nil
}
