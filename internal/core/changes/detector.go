package changes

import (
	"fmt"
	"sort"

	"github.com/wI2L/jsondiff"

	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
)

// Category は差分の分類です。
type Category string

const (
	CategoryPosition    Category = "position"
	CategoryAssignments Category = "assignments"
	CategoryAbilities   Category = "abilities"
	CategoryAspirations Category = "aspirations"
)

// Kind は差分 1 件の種類です。
type Kind string

const (
	KindNewRating     Kind = "new_rating"
	KindNewAssignment Kind = "new_assignment"
	KindNewMilestone  Kind = "new_milestone"
	KindNewAspiration Kind = "new_aspiration"
	KindChanged       Kind = "changed"
)

// Change はフィールド単位の差分です。Current と Proposed は nil または文字列・整数です。
// レコード単位で報告される新規エントリでは Proposed がフィールド名をキーとするマップになります。
type Change struct {
	Category Category `json:"category"`
	Key      string   `json:"key"`
	Field    string   `json:"field"`
	Kind     Kind     `json:"kind"`
	Current  any      `json:"current"`
	Proposed any      `json:"proposed"`
}

// Report は 2 つの StateTree の差分です。
type Report struct {
	Counts  map[Category]int `json:"counts"`
	Changes []Change         `json:"changes"`
	// Patch は旧ツリーから新ツリーへの JSON Patch です。
	Patch jsondiff.Patch `json:"patch"`
}

// HasChanges は差分があるかを返します。
func (r *Report) HasChanges() bool {
	return r != nil && len(r.Changes) > 0
}

// Count は分類ごとの差分キー数を返します。
func (r *Report) Count(category Category) int {
	if r == nil {
		return 0
	}
	return r.Counts[category]
}

type fieldSpec[T any] struct {
	name  string
	value func(T) any
}

type categorySpec[T any] struct {
	category Category
	key      func(T) string
	fields   []fieldSpec[T]
	newKind  Kind
	// wholeField が空でなければ、新規エントリはこの名前の 1 件にまとめて報告します。
	wholeField string
	// reportable は新規エントリを差分として扱うかを判定します。
	reportable func(T) bool
}

// Detector は StateTree 同士の差分を検出します。
type Detector struct{}

// NewDetector は Detector を生成します。
func NewDetector() *Detector {
	return &Detector{}
}

// Diff は previous から proposed への差分を返します。previous が nil の場合は空の状態と比較します。
func (d *Detector) Diff(previous *snapshot.StateTree, proposed snapshot.StateTree) (*Report, error) {
	var prev snapshot.StateTree
	if previous != nil {
		prev = *previous
	}
	prev.Normalize()
	proposed.Normalize()

	var changes []Change
	counts := make(map[Category]int)
	collect := func(category Category, found []Change) {
		changes = append(changes, found...)
		counts[category] = distinctKeys(found)
	}

	collect(CategoryPosition, diffCategory(positionSpec, ratedPosition(prev), ratedPosition(proposed)))
	collect(CategoryAssignments, diffCategory(assignmentSpec, prev.Assignments, proposed.Assignments))
	collect(CategoryAbilities, diffCategory(abilitySpec, prev.Abilities, proposed.Abilities))
	collect(CategoryAspirations, diffCategory(aspirationSpec, prev.Aspirations, proposed.Aspirations))

	patch, err := jsondiff.Compare(prev, proposed)
	if err != nil {
		return nil, fmt.Errorf("compare state trees: %w", err)
	}

	return &Report{Counts: counts, Changes: changes, Patch: patch}, nil
}

// diffCategory はキーで外部結合し、フィールドごとに比較します。
func diffCategory[T any](spec categorySpec[T], previous, proposed []T) []Change {
	prevByKey := make(map[string]T, len(previous))
	for _, item := range previous {
		prevByKey[spec.key(item)] = item
	}
	nextByKey := make(map[string]T, len(proposed))
	keys := make([]string, 0, len(previous)+len(proposed))
	for _, item := range proposed {
		k := spec.key(item)
		nextByKey[k] = item
		keys = append(keys, k)
	}
	for k := range prevByKey {
		if _, ok := nextByKey[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var out []Change
	for _, k := range keys {
		before, hadBefore := prevByKey[k]
		after, hasAfter := nextByKey[k]

		switch {
		case !hadBefore:
			if spec.reportable != nil && !spec.reportable(after) {
				continue
			}
			if spec.wholeField != "" {
				out = append(out, Change{Category: spec.category, Key: k, Field: spec.wholeField, Kind: spec.newKind, Proposed: recordOf(spec.fields, after)})
				continue
			}
			for _, f := range spec.fields {
				if v := f.value(after); v != nil {
					out = append(out, Change{Category: spec.category, Key: k, Field: f.name, Kind: spec.newKind, Proposed: v})
				}
			}
		case !hasAfter:
			for _, f := range spec.fields {
				if v := f.value(before); v != nil {
					out = append(out, Change{Category: spec.category, Key: k, Field: f.name, Kind: KindChanged, Current: v})
				}
			}
		default:
			for _, f := range spec.fields {
				cur, next := f.value(before), f.value(after)
				if cur != next {
					out = append(out, Change{Category: spec.category, Key: k, Field: f.name, Kind: KindChanged, Current: cur, Proposed: next})
				}
			}
		}
	}
	return out
}

func recordOf[T any](fields []fieldSpec[T], item T) map[string]any {
	record := make(map[string]any, len(fields))
	for _, f := range fields {
		if v := f.value(item); v != nil {
			record[f.name] = v
		}
	}
	return record
}

func distinctKeys(changes []Change) int {
	seen := make(map[string]struct{}, len(changes))
	for _, c := range changes {
		seen[c.Key] = struct{}{}
	}
	return len(seen)
}

const positionKey = "position"

func ratedPosition(tree snapshot.StateTree) []*snapshot.PositionRecord {
	if tree.Position == nil || tree.Position.Rated == nil {
		return nil
	}
	return []*snapshot.PositionRecord{tree.Position.Rated}
}

var positionSpec = categorySpec[*snapshot.PositionRecord]{
	category:   CategoryPosition,
	key:        func(*snapshot.PositionRecord) string { return positionKey },
	newKind:    KindNewRating,
	wholeField: "rated",
	fields: []fieldSpec[*snapshot.PositionRecord]{
		{"position_id", func(r *snapshot.PositionRecord) any { return r.PositionID }},
		{"manager_id", func(r *snapshot.PositionRecord) any { return deref(r.ManagerID) }},
		{"employment_kind", func(r *snapshot.PositionRecord) any { return r.EmploymentKind }},
		{"started_on", func(r *snapshot.PositionRecord) any { return r.StartedOn }},
		{"ended_on", func(r *snapshot.PositionRecord) any { return deref(r.EndedOn) }},
		{"official_rating", func(r *snapshot.PositionRecord) any { return deref(r.OfficialRating) }},
	},
}

var assignmentSpec = categorySpec[snapshot.AssignmentState]{
	category: CategoryAssignments,
	key:      func(a snapshot.AssignmentState) string { return a.AssignmentID },
	newKind:  KindNewAssignment,
	reportable: func(a snapshot.AssignmentState) bool {
		energy := a.AnticipatedEnergyPercentage != nil && *a.AnticipatedEnergyPercentage > 0
		return energy || (a.Rated != nil && a.Rated.OfficialRating != nil)
	},
	fields: []fieldSpec[snapshot.AssignmentState]{
		{"anticipated_energy_percentage", func(a snapshot.AssignmentState) any { return deref(a.AnticipatedEnergyPercentage) }},
		{"rated.energy_percentage", func(a snapshot.AssignmentState) any {
			if a.Rated == nil {
				return nil
			}
			return deref(a.Rated.EnergyPercentage)
		}},
		{"rated.started_on", func(a snapshot.AssignmentState) any {
			if a.Rated == nil {
				return nil
			}
			return a.Rated.StartedOn
		}},
		{"rated.ended_on", func(a snapshot.AssignmentState) any {
			if a.Rated == nil {
				return nil
			}
			return deref(a.Rated.EndedOn)
		}},
		{"rated.official_rating", func(a snapshot.AssignmentState) any {
			if a.Rated == nil {
				return nil
			}
			return deref(a.Rated.OfficialRating)
		}},
	},
}

var abilitySpec = categorySpec[snapshot.AbilityState]{
	category: CategoryAbilities,
	key:      func(a snapshot.AbilityState) string { return a.AbilityID },
	newKind:  KindNewMilestone,
	fields: []fieldSpec[snapshot.AbilityState]{
		{"milestone_level", func(a snapshot.AbilityState) any { return a.MilestoneLevel }},
		{"certified_by_id", func(a snapshot.AbilityState) any { return deref(a.CertifiedByID) }},
		{"attained_on", func(a snapshot.AbilityState) any { return a.AttainedOn }},
	},
}

var aspirationSpec = categorySpec[snapshot.AspirationState]{
	category: CategoryAspirations,
	key:      func(a snapshot.AspirationState) string { return a.AspirationID },
	newKind:  KindNewAspiration,
	reportable: func(a snapshot.AspirationState) bool {
		return a.Rated != nil
	},
	fields: []fieldSpec[snapshot.AspirationState]{
		{"rated.official_rating", func(a snapshot.AspirationState) any {
			if a.Rated == nil {
				return nil
			}
			return a.Rated.OfficialRating
		}},
		{"rated.rated_on", func(a snapshot.AspirationState) any {
			if a.Rated == nil {
				return nil
			}
			return a.Rated.RatedOn
		}},
	},
}

// deref は nil ポインタを型なし nil として返します。
func deref[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
