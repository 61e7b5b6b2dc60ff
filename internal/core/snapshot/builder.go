package snapshot

import (
	"context"
	"strings"
	"time"

	"github.com/ogurasousui/checkin-ledger/internal/core/checkin"
	"github.com/ogurasousui/checkin-ledger/internal/core/tenure"
)

// TenureReader は保有期間の読み取りです。
type TenureReader interface {
	ListByTeammate(ctx context.Context, teammateID string) ([]*tenure.Tenure, error)
}

// CheckInReader はチェックインの読み取りです。
type CheckInReader interface {
	ListByTeammate(ctx context.Context, teammateID string) ([]*checkin.CheckIn, error)
}

// Milestone は能力マイルストーンの到達記録です。
type Milestone struct {
	AbilityID     string
	Level         int
	CertifiedByID *string
	AttainedOn    time.Time
}

// MilestoneReader はマイルストーン到達記録の読み取りです。
type MilestoneReader interface {
	ListMilestones(ctx context.Context, teammateID string) ([]Milestone, error)
}

// Builder はチームメイトの現在の評価状態から StateTree を組み立てます。
type Builder struct {
	tenures    TenureReader
	checkIns   CheckInReader
	milestones MilestoneReader
}

// NewBuilder は Builder を生成します。milestones が nil の場合、能力は空になります。
func NewBuilder(tenures TenureReader, checkIns CheckInReader, milestones MilestoneReader) *Builder {
	return &Builder{tenures: tenures, checkIns: checkIns, milestones: milestones}
}

// Build は StateTree を組み立てます。呼び出し側のトランザクション内で実行されることを前提とします。
func (b *Builder) Build(ctx context.Context, teammateID string) (StateTree, error) {
	id := strings.TrimSpace(teammateID)
	if id == "" {
		return StateTree{}, ErrInvalidEmployeeID
	}

	tenures, err := b.tenures.ListByTeammate(ctx, id)
	if err != nil {
		return StateTree{}, err
	}
	checkIns, err := b.checkIns.ListByTeammate(ctx, id)
	if err != nil {
		return StateTree{}, err
	}
	var milestones []Milestone
	if b.milestones != nil {
		milestones, err = b.milestones.ListMilestones(ctx, id)
		if err != nil {
			return StateTree{}, err
		}
	}

	tree := StateTree{
		Position:    buildPosition(tenures, checkIns),
		Assignments: buildAssignments(tenures, checkIns),
		Abilities:   buildAbilities(milestones),
		Aspirations: buildAspirations(checkIns),
	}
	tree.Normalize()
	return tree, nil
}

func buildPosition(tenures []*tenure.Tenure, checkIns []*checkin.CheckIn) *PositionState {
	var current, rated *tenure.Tenure
	for _, t := range tenures {
		if t.SubjectKind != tenure.SubjectPosition {
			continue
		}
		if t.Open() {
			current = t
			continue
		}
		if t.OfficialRating != nil && laterTenure(t, rated) {
			rated = t
		}
	}

	var open *checkin.CheckIn
	for _, c := range checkIns {
		if c.Kind == checkin.KindPosition && !c.Finalized() {
			open = c
		}
	}

	if current == nil && rated == nil && open == nil {
		return nil
	}
	return &PositionState{
		Current: PositionRecordFrom(current),
		Rated:   PositionRecordFrom(rated),
		CheckIn: CheckInRecordFrom(open),
	}
}

func buildAssignments(tenures []*tenure.Tenure, checkIns []*checkin.CheckIn) []AssignmentState {
	states := make(map[string]*AssignmentState)
	var order []string
	entry := func(id string) *AssignmentState {
		if s, ok := states[id]; ok {
			return s
		}
		s := &AssignmentState{AssignmentID: id}
		states[id] = s
		order = append(order, id)
		return s
	}

	rated := make(map[string]*tenure.Tenure)
	for _, t := range tenures {
		if t.SubjectKind != tenure.SubjectAssignment {
			continue
		}
		if t.Open() {
			s := entry(t.SubjectID)
			s.Current = AssignmentRecordFrom(t)
			s.AnticipatedEnergyPercentage = cloneInt(t.EnergyPercentage)
			continue
		}
		if t.OfficialRating != nil && laterTenure(t, rated[t.SubjectID]) {
			rated[t.SubjectID] = t
		}
	}
	for id, t := range rated {
		entry(id).Rated = AssignmentRecordFrom(t)
	}
	for _, c := range checkIns {
		if c.Kind == checkin.KindAssignment && !c.Finalized() {
			entry(c.SubjectID).CheckIn = CheckInRecordFrom(c)
		}
	}

	out := make([]AssignmentState, 0, len(order))
	for _, id := range order {
		out = append(out, *states[id])
	}
	return out
}

func buildAbilities(milestones []Milestone) []AbilityState {
	best := make(map[string]Milestone)
	var order []string
	for _, m := range milestones {
		existing, ok := best[m.AbilityID]
		if !ok {
			order = append(order, m.AbilityID)
		}
		if !ok || m.Level > existing.Level {
			best[m.AbilityID] = m
		}
	}

	out := make([]AbilityState, 0, len(order))
	for _, id := range order {
		m := best[id]
		out = append(out, AbilityState{
			AbilityID:      m.AbilityID,
			MilestoneLevel: m.Level,
			CertifiedByID:  cloneString(m.CertifiedByID),
			AttainedOn:     formatDay(m.AttainedOn),
		})
	}
	return out
}

func buildAspirations(checkIns []*checkin.CheckIn) []AspirationState {
	states := make(map[string]*AspirationState)
	ratedAt := make(map[string]time.Time)
	var order []string
	entry := func(id string) *AspirationState {
		if s, ok := states[id]; ok {
			return s
		}
		s := &AspirationState{AspirationID: id}
		states[id] = s
		order = append(order, id)
		return s
	}

	for _, c := range checkIns {
		if c.Kind != checkin.KindAspiration {
			continue
		}
		if !c.Finalized() {
			entry(c.SubjectID).CheckIn = CheckInRecordFrom(c)
			continue
		}
		if c.Official.Rating == nil {
			continue
		}
		finalizedAt := *c.Official.CompletedAt
		if prev, ok := ratedAt[c.SubjectID]; ok && !finalizedAt.After(prev) {
			continue
		}
		ratedAt[c.SubjectID] = finalizedAt
		entry(c.SubjectID).Rated = &AspirationRecord{
			OfficialRating: *c.Official.Rating,
			RatedOn:        formatDay(finalizedAt),
		}
	}

	out := make([]AspirationState, 0, len(order))
	for _, id := range order {
		out = append(out, *states[id])
	}
	return out
}

// laterTenure は t が current より新しく終了した保有期間かを返します。
func laterTenure(t, current *tenure.Tenure) bool {
	if current == nil {
		return true
	}
	if !t.EndedOn.Equal(*current.EndedOn) {
		return t.EndedOn.After(*current.EndedOn)
	}
	return !t.StartedOn.Before(current.StartedOn)
}
