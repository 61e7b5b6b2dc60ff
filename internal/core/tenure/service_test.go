package tenure

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type stubClock struct {
	now time.Time
}

func (s *stubClock) Now() time.Time {
	return s.now
}

type fakeTenureRepo struct {
	mu       sync.Mutex
	tenures  map[string]*Tenure
	order    []string
	sequence int
	locks    []string
}

func newFakeTenureRepo() *fakeTenureRepo {
	return &fakeTenureRepo{tenures: make(map[string]*Tenure)}
}

func (r *fakeTenureRepo) LockHolder(_ context.Context, teammateID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks = append(r.locks, teammateID)
	return nil
}

func (r *fakeTenureRepo) FindOpen(_ context.Context, teammateID string, kind SubjectKind, subjectID string) (*Tenure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		t := r.tenures[id]
		if t.TeammateID == teammateID && t.SubjectKind == kind && t.SubjectID == subjectID && t.Open() {
			return cloneTenure(t), nil
		}
	}
	return nil, ErrTenureNotFound
}

func (r *fakeTenureRepo) FindOpenPosition(_ context.Context, teammateID string) (*Tenure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		t := r.tenures[id]
		if t.TeammateID == teammateID && t.SubjectKind == SubjectPosition && t.Open() {
			return cloneTenure(t), nil
		}
	}
	return nil, ErrTenureNotFound
}

func (r *fakeTenureRepo) FindByID(_ context.Context, id string) (*Tenure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenures[id]
	if !ok {
		return nil, ErrTenureNotFound
	}
	return cloneTenure(t), nil
}

func (r *fakeTenureRepo) ListOpen(_ context.Context, teammateID string) ([]*Tenure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Tenure
	for _, id := range r.order {
		t := r.tenures[id]
		if t.TeammateID == teammateID && t.Open() {
			out = append(out, cloneTenure(t))
		}
	}
	return out, nil
}

func (r *fakeTenureRepo) ListByTeammate(_ context.Context, teammateID string) ([]*Tenure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Tenure
	for _, id := range r.order {
		t := r.tenures[id]
		if t.TeammateID == teammateID {
			out = append(out, cloneTenure(t))
		}
	}
	return out, nil
}

func (r *fakeTenureRepo) Create(_ context.Context, t *Tenure) (*Tenure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tenures {
		if existing.TeammateID == t.TeammateID && existing.SubjectKind == t.SubjectKind && existing.SubjectID == t.SubjectID && existing.Open() {
			return nil, ErrConcurrentModification
		}
	}
	r.sequence++
	clone := cloneTenure(t)
	clone.ID = fmt.Sprintf("tenure-%d", r.sequence)
	r.tenures[clone.ID] = clone
	r.order = append(r.order, clone.ID)
	return cloneTenure(clone), nil
}

func (r *fakeTenureRepo) Close(_ context.Context, id string, endedOn time.Time, rating *string, updatedAt time.Time) (*Tenure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenures[id]
	if !ok {
		return nil, ErrTenureNotFound
	}
	if !t.Open() {
		return nil, ErrAlreadyClosed
	}
	ended := endedOn
	t.EndedOn = &ended
	t.OfficialRating = cloneString(rating)
	t.UpdatedAt = updatedAt
	return cloneTenure(t), nil
}

func (r *fakeTenureRepo) openCount(teammateID string, kind SubjectKind, subjectID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, t := range r.tenures {
		if t.TeammateID == teammateID && t.SubjectKind == kind && t.SubjectID == subjectID && t.Open() {
			count++
		}
	}
	return count
}

func (r *fakeTenureRepo) all() []*Tenure {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Tenure, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, cloneTenure(r.tenures[id]))
	}
	return out
}

// serialTx は同一チームメイトへの書き込みを直列化する行ロックを模倣します。
type serialTx struct {
	mu sync.Mutex
}

type serialTxKey struct{}

func (s *serialTx) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func (s *serialTx) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if ctx.Value(serialTxKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(context.WithValue(ctx, serialTxKey{}, true))
}

func cloneTenure(t *Tenure) *Tenure {
	if t == nil {
		return nil
	}
	c := *t
	if t.EndedOn != nil {
		ended := *t.EndedOn
		c.EndedOn = &ended
	}
	if t.EnergyPercentage != nil {
		energy := *t.EnergyPercentage
		c.EnergyPercentage = &energy
	}
	c.OfficialRating = cloneString(t.OfficialRating)
	c.ManagerID = cloneString(t.ManagerID)
	return &c
}

func intPtr(v int) *int {
	return &v
}

func strPtr(v string) *string {
	return &v
}

var today = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func newTestLedger(repo *fakeTenureRepo) *Ledger {
	return NewLedger(repo, &stubClock{now: today.Add(9 * time.Hour)}, &serialTx{})
}

func TestLedger_SetEnergy_Scenario(t *testing.T) {
	t.Parallel()

	repo := newFakeTenureRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	in := SetEnergyInput{TeammateID: "tm-1", AssignmentID: "asg-x", EnergyPercentage: 0, EffectiveDate: today, ActorID: "mgr-1"}
	result, err := ledger.SetEnergy(ctx, in)
	if err != nil {
		t.Fatalf("SetEnergy(0) returned error: %v", err)
	}
	if result.Changed() || len(repo.all()) != 0 {
		t.Fatalf("expected no tenure to be created, got %+v", repo.all())
	}

	in.EnergyPercentage = 30
	result, err = ledger.SetEnergy(ctx, in)
	if err != nil {
		t.Fatalf("SetEnergy(30) returned error: %v", err)
	}
	if result.Opened == nil || result.Opened.Energy() != 30 || !result.Opened.StartedOn.Equal(today) {
		t.Fatalf("expected open tenure with energy 30 started today, got %+v", result.Opened)
	}

	result, err = ledger.SetEnergy(ctx, in)
	if err != nil {
		t.Fatalf("repeated SetEnergy(30) returned error: %v", err)
	}
	if result.Changed() {
		t.Fatalf("expected repeated SetEnergy to be a no-op")
	}
	if got := len(repo.all()); got != 1 {
		t.Fatalf("expected exactly one tenure, got %d", got)
	}

	in.EnergyPercentage = 0
	result, err = ledger.SetEnergy(ctx, in)
	if err != nil {
		t.Fatalf("SetEnergy(0) on open tenure returned error: %v", err)
	}
	if result.Closed == nil || result.Closed.EndedOn == nil || !result.Closed.EndedOn.Equal(today) {
		t.Fatalf("expected tenure closed today, got %+v", result.Closed)
	}
	if repo.openCount("tm-1", SubjectAssignment, "asg-x") != 0 {
		t.Fatalf("expected no open tenure after closing")
	}
}

func TestLedger_SetEnergy_DifferentValueRotatesSameDay(t *testing.T) {
	t.Parallel()

	repo := newFakeTenureRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	if _, err := ledger.SetEnergy(ctx, SetEnergyInput{TeammateID: "tm-1", AssignmentID: "asg-1", EnergyPercentage: 40, EffectiveDate: today, ActorID: "mgr"}); err != nil {
		t.Fatalf("SetEnergy returned error: %v", err)
	}

	result, err := ledger.SetEnergy(ctx, SetEnergyInput{TeammateID: "tm-1", AssignmentID: "asg-1", EnergyPercentage: 60, EffectiveDate: today, ActorID: "mgr"})
	if err != nil {
		t.Fatalf("SetEnergy returned error: %v", err)
	}
	if result.Closed == nil || result.Opened == nil {
		t.Fatalf("expected close and open, got %+v", result)
	}
	if !result.Closed.EndedOn.Equal(result.Opened.StartedOn) {
		t.Fatalf("expected same-day transition, closed=%v opened=%v", result.Closed.EndedOn, result.Opened.StartedOn)
	}
	if result.Opened.Energy() != 60 {
		t.Fatalf("expected new energy 60, got %d", result.Opened.Energy())
	}
	if got := repo.openCount("tm-1", SubjectAssignment, "asg-1"); got != 1 {
		t.Fatalf("expected one open tenure, got %d", got)
	}
}

func TestLedger_SetEnergy_ValidationPersistsNothing(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   SetEnergyInput
		want error
	}{
		{name: "energy above range", in: SetEnergyInput{TeammateID: "tm", AssignmentID: "a", EnergyPercentage: 101, EffectiveDate: today, ActorID: "m"}, want: ErrInvalidEnergy},
		{name: "negative energy", in: SetEnergyInput{TeammateID: "tm", AssignmentID: "a", EnergyPercentage: -1, EffectiveDate: today, ActorID: "m"}, want: ErrInvalidEnergy},
		{name: "missing date", in: SetEnergyInput{TeammateID: "tm", AssignmentID: "a", EnergyPercentage: 10, ActorID: "m"}, want: ErrInvalidDate},
		{name: "missing actor", in: SetEnergyInput{TeammateID: "tm", AssignmentID: "a", EnergyPercentage: 10, EffectiveDate: today}, want: ErrMissingActor},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := newFakeTenureRepo()
			ledger := newTestLedger(repo)
			_, err := ledger.SetEnergy(context.Background(), tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(repo.all()) != 0 {
				t.Fatalf("expected nothing persisted")
			}
		})
	}
}

func TestLedger_SetEnergy_ConcurrentKeepsSingleOpenTenure(t *testing.T) {
	t.Parallel()

	repo := newFakeTenureRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			energy := (i % 5) * 20
			_, _ = ledger.SetEnergy(ctx, SetEnergyInput{TeammateID: "tm-1", AssignmentID: "asg-1", EnergyPercentage: energy, EffectiveDate: today, ActorID: "mgr"})
		}(i)
	}
	wg.Wait()

	if got := repo.openCount("tm-1", SubjectAssignment, "asg-1"); got > 1 {
		t.Fatalf("expected at most one open tenure, got %d", got)
	}
}

func TestLedger_Close_RejectsClosedAndEarlyDate(t *testing.T) {
	t.Parallel()

	repo := newFakeTenureRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	result, err := ledger.SetEnergy(ctx, SetEnergyInput{TeammateID: "tm-1", AssignmentID: "asg-1", EnergyPercentage: 50, EffectiveDate: today, ActorID: "mgr"})
	if err != nil {
		t.Fatalf("SetEnergy returned error: %v", err)
	}

	_, err = ledger.Close(ctx, CloseInput{TenureID: result.Opened.ID, EffectiveDate: today.AddDate(0, 0, -1), ActorID: "mgr"})
	if !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}

	closed, err := ledger.Close(ctx, CloseInput{TenureID: result.Opened.ID, EffectiveDate: today, OfficialRating: strPtr("meeting"), ActorID: "mgr"})
	if err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if closed.OfficialRating == nil || *closed.OfficialRating != "meeting" {
		t.Fatalf("expected rating on close, got %+v", closed.OfficialRating)
	}

	_, err = ledger.Close(ctx, CloseInput{TenureID: result.Opened.ID, EffectiveDate: today, ActorID: "mgr"})
	if !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected ErrAlreadyClosed, got %v", err)
	}
}

func TestLedger_ChangePosition_KeyedOnIdentity(t *testing.T) {
	t.Parallel()

	repo := newFakeTenureRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	in := ChangePositionInput{TeammateID: "tm-1", PositionID: "pos-1", ManagerID: strPtr("mgr-1"), EmploymentKind: "full_time", EffectiveDate: today, ActorID: "admin"}
	first, err := ledger.ChangePosition(ctx, in)
	if err != nil {
		t.Fatalf("ChangePosition returned error: %v", err)
	}
	if first.Opened == nil {
		t.Fatalf("expected employment tenure to open")
	}

	same, err := ledger.ChangePosition(ctx, in)
	if err != nil {
		t.Fatalf("ChangePosition returned error: %v", err)
	}
	if same.Changed() {
		t.Fatalf("expected identical position to be a no-op")
	}

	in.ManagerID = strPtr("mgr-2")
	rotated, err := ledger.ChangePosition(ctx, in)
	if err != nil {
		t.Fatalf("ChangePosition returned error: %v", err)
	}
	if rotated.Closed == nil || rotated.Opened == nil || *rotated.Opened.ManagerID != "mgr-2" {
		t.Fatalf("expected manager change to rotate tenure, got %+v", rotated)
	}

	open, err := repo.ListOpen(ctx, "tm-1")
	if err != nil {
		t.Fatalf("ListOpen returned error: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected one open employment tenure, got %d", len(open))
	}
}

func TestLedger_RollAssignmentForward_EnergyFallbacks(t *testing.T) {
	t.Parallel()

	repo := newFakeTenureRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	fresh, err := ledger.RollAssignmentForward(ctx, RollAssignmentInput{
		TeammateID: "tm-1", AssignmentID: "asg-new", DefaultEnergyPercentage: 50,
		EffectiveDate: today, OfficialRating: "meeting", ActorID: "mgr",
	})
	if err != nil {
		t.Fatalf("RollAssignmentForward returned error: %v", err)
	}
	if fresh.Closed != nil || fresh.Opened == nil || fresh.Opened.Energy() != 50 {
		t.Fatalf("expected default energy 50 without prior tenure, got %+v", fresh)
	}

	if _, err := ledger.SetEnergy(ctx, SetEnergyInput{TeammateID: "tm-1", AssignmentID: "asg-1", EnergyPercentage: 25, EffectiveDate: today.AddDate(0, -3, 0), ActorID: "mgr"}); err != nil {
		t.Fatalf("SetEnergy returned error: %v", err)
	}
	kept, err := ledger.RollAssignmentForward(ctx, RollAssignmentInput{
		TeammateID: "tm-1", AssignmentID: "asg-1", DefaultEnergyPercentage: 50,
		EffectiveDate: today, OfficialRating: "exceeding", ActorID: "mgr",
	})
	if err != nil {
		t.Fatalf("RollAssignmentForward returned error: %v", err)
	}
	if kept.Closed == nil || *kept.Closed.OfficialRating != "exceeding" {
		t.Fatalf("expected previous tenure closed with rating, got %+v", kept.Closed)
	}
	if kept.Opened == nil || kept.Opened.Energy() != 25 {
		t.Fatalf("expected previous energy to carry forward, got %+v", kept.Opened)
	}

	dropped, err := ledger.RollAssignmentForward(ctx, RollAssignmentInput{
		TeammateID: "tm-1", AssignmentID: "asg-1", AnticipatedEnergyPercentage: intPtr(0), DefaultEnergyPercentage: 50,
		EffectiveDate: today, OfficialRating: "meeting", ActorID: "mgr",
	})
	if err != nil {
		t.Fatalf("RollAssignmentForward returned error: %v", err)
	}
	if dropped.Opened != nil {
		t.Fatalf("expected no new tenure for zero anticipated energy")
	}
}

func TestLedger_RollPositionForward_RequiresOpenPosition(t *testing.T) {
	t.Parallel()

	repo := newFakeTenureRepo()
	ledger := newTestLedger(repo)

	_, err := ledger.RollPositionForward(context.Background(), RollPositionInput{TeammateID: "tm-1", EffectiveDate: today, OfficialRating: "1", ActorID: "mgr"})
	if !errors.Is(err, ErrNoOpenPosition) {
		t.Fatalf("expected ErrNoOpenPosition, got %v", err)
	}
}

func TestLedger_CloseAll(t *testing.T) {
	t.Parallel()

	repo := newFakeTenureRepo()
	ledger := newTestLedger(repo)
	ctx := context.Background()

	for _, id := range []string{"asg-1", "asg-2"} {
		if _, err := ledger.SetEnergy(ctx, SetEnergyInput{TeammateID: "tm-1", AssignmentID: id, EnergyPercentage: 50, EffectiveDate: today, ActorID: "mgr"}); err != nil {
			t.Fatalf("SetEnergy returned error: %v", err)
		}
	}

	closed, err := ledger.CloseAll(ctx, "tm-1", today.AddDate(0, 0, 5), "admin")
	if err != nil {
		t.Fatalf("CloseAll returned error: %v", err)
	}
	if len(closed) != 2 {
		t.Fatalf("expected 2 closed tenures, got %d", len(closed))
	}
	open, _ := repo.ListOpen(ctx, "tm-1")
	if len(open) != 0 {
		t.Fatalf("expected no open tenures, got %d", len(open))
	}
}

func TestTenure_ActiveOn(t *testing.T) {
	t.Parallel()

	ended := today
	zero := &Tenure{StartedOn: today, EndedOn: &ended}
	if zero.ActiveOn(today) {
		t.Fatalf("zero-duration tenure must not be active")
	}

	end := today.AddDate(0, 0, 3)
	span := &Tenure{StartedOn: today, EndedOn: &end}
	if !span.ActiveOn(today) || !span.ActiveOn(today.AddDate(0, 0, 2)) {
		t.Fatalf("expected tenure active within its window")
	}
	if span.ActiveOn(end) {
		t.Fatalf("expected end date to be exclusive")
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	if _, err := ParseDate("2025-13-01"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	d, err := ParseDate(" 2025-03-10 ")
	if err != nil {
		t.Fatalf("ParseDate returned error: %v", err)
	}
	if !d.Equal(today) {
		t.Fatalf("unexpected date %v", d)
	}
}
