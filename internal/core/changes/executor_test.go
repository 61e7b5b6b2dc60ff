package changes

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/ogurasousui/checkin-ledger/internal/core/checkin"
	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
	"github.com/ogurasousui/checkin-ledger/internal/core/tenure"
)

var executedAt = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

type stubClock struct {
	now time.Time
}

func (s *stubClock) Now() time.Time {
	return s.now
}

type fakeCheckIns struct {
	byID    map[string]*checkin.CheckIn
	order   []string
	updated int
}

func newFakeCheckIns() *fakeCheckIns {
	return &fakeCheckIns{byID: make(map[string]*checkin.CheckIn)}
}

func (f *fakeCheckIns) Create(_ context.Context, c *checkin.CheckIn) (*checkin.CheckIn, error) {
	clone := c.Clone()
	clone.ID = fmt.Sprintf("ci-%d", len(f.order)+1)
	f.byID[clone.ID] = clone
	f.order = append(f.order, clone.ID)
	return clone.Clone(), nil
}

func (f *fakeCheckIns) Update(_ context.Context, c *checkin.CheckIn) (*checkin.CheckIn, error) {
	f.updated++
	f.byID[c.ID] = c.Clone()
	return c.Clone(), nil
}

func (f *fakeCheckIns) FindOpen(_ context.Context, teammateID string, kind checkin.Kind, subjectID string) (*checkin.CheckIn, error) {
	for _, id := range f.order {
		c := f.byID[id]
		if c.TeammateID == teammateID && c.Kind == kind && c.SubjectID == subjectID && !c.Finalized() {
			return c.Clone(), nil
		}
	}
	return nil, checkin.ErrCheckInNotFound
}

func (f *fakeCheckIns) FindOpenPosition(_ context.Context, teammateID string) (*checkin.CheckIn, error) {
	for _, id := range f.order {
		c := f.byID[id]
		if c.TeammateID == teammateID && c.Kind == checkin.KindPosition && !c.Finalized() {
			return c.Clone(), nil
		}
	}
	return nil, checkin.ErrCheckInNotFound
}

func (f *fakeCheckIns) only(t *testing.T, kind checkin.Kind, subjectID string) *checkin.CheckIn {
	t.Helper()
	for _, id := range f.order {
		if c := f.byID[id]; c.Kind == kind && c.SubjectID == subjectID {
			return c
		}
	}
	t.Fatalf("no %s check-in for %s", kind, subjectID)
	return nil
}

type recordingLedger struct {
	energies  []tenure.SetEnergyInput
	positions []tenure.ChangePositionInput
	live      []*tenure.Tenure
}

func (l *recordingLedger) SetEnergy(_ context.Context, in tenure.SetEnergyInput) (*tenure.Transition, error) {
	l.energies = append(l.energies, in)
	return &tenure.Transition{}, nil
}

func (l *recordingLedger) ChangePosition(_ context.Context, in tenure.ChangePositionInput) (*tenure.Transition, error) {
	l.positions = append(l.positions, in)
	return &tenure.Transition{}, nil
}

func (l *recordingLedger) ListForTeammate(context.Context, string) ([]*tenure.Tenure, error) {
	return l.live, nil
}

func groups(allowed ...checkin.FieldGroup) checkin.Authorizer {
	return checkin.AuthorizerFunc(func(g checkin.FieldGroup, _ *checkin.CheckIn) bool {
		for _, a := range allowed {
			if a == g {
				return true
			}
		}
		return false
	})
}

func bulkSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		ID:            "snap-1",
		EmployeeID:    "tm-1",
		ChangeType:    snapshot.ChangeBulkCheckInFinalization,
		EffectiveDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		StateTree: snapshot.StateTree{
			Position: &snapshot.PositionState{
				Current: &snapshot.PositionRecord{PositionID: "pos-1", EmploymentKind: "full_time", ManagerID: ptr("mgr-1")},
			},
			Assignments: []snapshot.AssignmentState{{
				AssignmentID:                "as-1",
				AnticipatedEnergyPercentage: ptr(60),
				CheckIn: &snapshot.CheckInRecord{
					EmployeeRating:    ptr("meeting"),
					EmployeeCompleted: true,
					ManagerRating:     ptr("exceeding"),
					ManagerCompleted:  true,
				},
			}},
			Aspirations: []snapshot.AspirationState{{
				AspirationID: "asp-1",
				CheckIn:      &snapshot.CheckInRecord{PersonalAlignment: "growth", EmployeeCompleted: true},
			}},
		},
	}
}

func mustExecute(t *testing.T, exec *Executor, snap *snapshot.Snapshot, auth checkin.Authorizer, actor string) *ExecutionResult {
	t.Helper()
	result, err := exec.Execute(context.Background(), snap, auth, actor)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	return result
}

func TestExecuteBulkWithAllGroups(t *testing.T) {
	t.Parallel()

	store := newFakeCheckIns()
	ledger := &recordingLedger{}
	exec := NewExecutor(store, ledger, &stubClock{now: executedAt}, nil, nil)

	result := mustExecute(t, exec, bulkSnapshot(), groups(checkin.FieldGroupEmployee, checkin.FieldGroupManager, checkin.FieldGroupOfficial), "mgr-1")
	if len(result.Skipped) != 0 {
		t.Fatalf("expected nothing skipped, got %+v", result.Skipped)
	}

	if len(ledger.positions) != 1 || ledger.positions[0].PositionID != "pos-1" {
		t.Fatalf("unexpected position calls: %+v", ledger.positions)
	}
	if len(ledger.energies) != 1 || ledger.energies[0].EnergyPercentage != 60 {
		t.Fatalf("unexpected energy calls: %+v", ledger.energies)
	}

	assignment := store.only(t, checkin.KindAssignment, "as-1")
	if assignment.State() != checkin.StateReadyForFinalization {
		t.Errorf("expected ready_for_finalization, got %s", assignment.State())
	}
	if *assignment.Manager.Rating != "exceeding" || *assignment.Manager.CompletedByID != "mgr-1" {
		t.Errorf("unexpected manager side: %+v", assignment.Manager)
	}

	aspiration := store.only(t, checkin.KindAspiration, "asp-1")
	if !aspiration.EmployeeCompleted() || aspiration.ManagerCompleted() {
		t.Errorf("unexpected aspiration completion: %+v", aspiration)
	}
	if aspiration.Employee.PersonalAlignment != "growth" {
		t.Errorf("unexpected personal alignment: %q", aspiration.Employee.PersonalAlignment)
	}
}

func TestExecuteSkipsUnauthorizedGroups(t *testing.T) {
	t.Parallel()

	store := newFakeCheckIns()
	ledger := &recordingLedger{}
	exec := NewExecutor(store, ledger, &stubClock{now: executedAt}, nil, nil)

	snap := bulkSnapshot()
	snap.ChangeType = snapshot.ChangeAssignmentManagement

	result := mustExecute(t, exec, snap, groups(checkin.FieldGroupEmployee), "tm-1")

	if len(ledger.energies) != 0 {
		t.Fatalf("official group must be skipped, got %+v", ledger.energies)
	}
	if len(ledger.positions) != 0 {
		t.Fatalf("position applier must not run for assignment changes")
	}

	assignment := store.only(t, checkin.KindAssignment, "as-1")
	if !assignment.EmployeeCompleted() || assignment.ManagerCompleted() || assignment.Manager.Rating != nil {
		t.Fatalf("only the employee side may change: %+v", assignment)
	}

	skipped := make(map[checkin.FieldGroup]int)
	for _, s := range result.Skipped {
		skipped[s.Group]++
	}
	want := map[checkin.FieldGroup]int{checkin.FieldGroupOfficial: 1, checkin.FieldGroupManager: 1}
	if !reflect.DeepEqual(skipped, want) {
		t.Fatalf("unexpected skipped groups: %v", skipped)
	}
}

func TestExecuteReusesOpenCheckIn(t *testing.T) {
	t.Parallel()

	store := newFakeCheckIns()
	existing, err := store.Create(context.Background(), &checkin.CheckIn{Kind: checkin.KindAspiration, TeammateID: "tm-1", SubjectID: "asp-1"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	exec := NewExecutor(store, &recordingLedger{}, &stubClock{now: executedAt}, nil, nil)
	snap := bulkSnapshot()
	snap.ChangeType = snapshot.ChangeAspirationManagement

	mustExecute(t, exec, snap, groups(checkin.FieldGroupEmployee), "tm-1")
	if len(store.order) != 1 {
		t.Fatalf("expected the open check-in to be reused, got %v", store.order)
	}
	if !store.byID[existing.ID].EmployeeCompleted() {
		t.Fatalf("expected employee side completed")
	}
}

func TestExecuteUnsupportedChangeTypes(t *testing.T) {
	t.Parallel()

	exec := NewExecutor(newFakeCheckIns(), &recordingLedger{}, nil, nil, nil)
	for _, ct := range []snapshot.ChangeType{snapshot.ChangeMilestoneManagement, snapshot.ChangeEmploymentTermination} {
		snap := bulkSnapshot()
		snap.ChangeType = ct
		if _, err := exec.Execute(context.Background(), snap, groups(), "mgr-1"); !errors.Is(err, ErrUnsupportedChangeType) {
			t.Errorf("%s: expected ErrUnsupportedChangeType, got %v", ct, err)
		}
	}

	if _, err := exec.Execute(context.Background(), nil, groups(), "mgr-1"); !errors.Is(err, ErrMissingSnapshot) {
		t.Errorf("expected ErrMissingSnapshot, got %v", err)
	}
	if _, err := exec.Execute(context.Background(), bulkSnapshot(), groups(), " "); !errors.Is(err, ErrMissingActor) {
		t.Errorf("expected ErrMissingActor, got %v", err)
	}
}

func TestExecuteWithoutCapabilitiesLeavesNoCheckIns(t *testing.T) {
	t.Parallel()

	store := newFakeCheckIns()
	ledger := &recordingLedger{}
	exec := NewExecutor(store, ledger, &stubClock{now: executedAt}, nil, nil)

	result := mustExecute(t, exec, bulkSnapshot(), groups(), "stranger")
	if len(result.Applied) != 0 {
		t.Fatalf("expected nothing applied, got %+v", result.Applied)
	}
	if len(result.Skipped) != 6 {
		t.Fatalf("expected 6 skipped groups, got %d", len(result.Skipped))
	}
	if len(store.order) != 0 {
		t.Fatalf("no check-in may be opened without a writable group, got %v", store.order)
	}
	if len(ledger.positions) != 0 || len(ledger.energies) != 0 {
		t.Fatalf("ledger must not change")
	}
}

func TestExecuteOfficialOnlyDoesNotOpenCheckIns(t *testing.T) {
	t.Parallel()

	store := newFakeCheckIns()
	ledger := &recordingLedger{}
	exec := NewExecutor(store, ledger, &stubClock{now: executedAt}, nil, nil)

	mustExecute(t, exec, bulkSnapshot(), groups(checkin.FieldGroupOfficial), "admin-1")
	if len(ledger.positions) != 1 || len(ledger.energies) != 1 {
		t.Fatalf("expected tenure changes, got positions=%d energies=%d", len(ledger.positions), len(ledger.energies))
	}
	if len(store.order) != 0 {
		t.Fatalf("official changes alone must not open check-ins, got %v", store.order)
	}
}

func TestExecuteReleasesAssignmentsMissingFromSnapshot(t *testing.T) {
	t.Parallel()

	ended := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	live := []*tenure.Tenure{
		{ID: "t-1", TeammateID: "tm-1", SubjectKind: tenure.SubjectAssignment, SubjectID: "as-1", EnergyPercentage: ptr(30)},
		{ID: "t-2", TeammateID: "tm-1", SubjectKind: tenure.SubjectAssignment, SubjectID: "as-2", EnergyPercentage: ptr(20), EndedOn: &ended},
		{ID: "t-3", TeammateID: "tm-1", SubjectKind: tenure.SubjectAssignment, SubjectID: "as-3", EnergyPercentage: ptr(50)},
		{ID: "t-4", TeammateID: "tm-1", SubjectKind: tenure.SubjectPosition, SubjectID: "pos-1"},
	}
	snap := &snapshot.Snapshot{
		ID:            "snap-2",
		EmployeeID:    "tm-1",
		ChangeType:    snapshot.ChangeAssignmentManagement,
		EffectiveDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		StateTree: snapshot.StateTree{Assignments: []snapshot.AssignmentState{{
			AssignmentID:                "as-3",
			AnticipatedEnergyPercentage: ptr(60),
			Current:                     &snapshot.AssignmentRecord{EnergyPercentage: ptr(60), StartedOn: "2025-03-10"},
		}}},
	}

	t.Run("official closes the dropped assignment", func(t *testing.T) {
		t.Parallel()

		ledger := &recordingLedger{live: live}
		exec := NewExecutor(newFakeCheckIns(), ledger, &stubClock{now: executedAt}, nil, nil)

		mustExecute(t, exec, snap, groups(checkin.FieldGroupOfficial), "mgr-1")
		if len(ledger.energies) != 2 {
			t.Fatalf("expected 2 energy calls, got %+v", ledger.energies)
		}
		if got := ledger.energies[0]; got.AssignmentID != "as-3" || got.EnergyPercentage != 60 {
			t.Errorf("unexpected held assignment call: %+v", got)
		}
		if got := ledger.energies[1]; got.AssignmentID != "as-1" || got.EnergyPercentage != 0 || !got.EffectiveDate.Equal(snap.EffectiveDate) {
			t.Errorf("expected as-1 closed on the snapshot date, got %+v", got)
		}
	})

	t.Run("without official nothing is closed", func(t *testing.T) {
		t.Parallel()

		ledger := &recordingLedger{live: live}
		store := newFakeCheckIns()
		exec := NewExecutor(store, ledger, &stubClock{now: executedAt}, nil, nil)

		result := mustExecute(t, exec, snap, groups(checkin.FieldGroupEmployee), "tm-1")
		if len(ledger.energies) != 0 || len(store.order) != 0 {
			t.Fatalf("expected no writes, got energies=%+v check-ins=%v", ledger.energies, store.order)
		}
		want := Skipped{Category: CategoryAssignments, SubjectID: "as-1", Group: checkin.FieldGroupOfficial}
		found := false
		for _, s := range result.Skipped {
			found = found || s == want
		}
		if !found {
			t.Fatalf("expected %+v in skipped, got %+v", want, result.Skipped)
		}
	})
}

func TestExecuteAppliesPositionRecordWithoutOpenTenure(t *testing.T) {
	t.Parallel()

	snap := &snapshot.Snapshot{
		ID:            "snap-3",
		EmployeeID:    "tm-1",
		ChangeType:    snapshot.ChangePositionTenure,
		EffectiveDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		StateTree: snapshot.StateTree{Position: &snapshot.PositionState{
			Rated:   &snapshot.PositionRecord{PositionID: "pos-0", EmploymentKind: "full_time", StartedOn: "2024-01-01"},
			CheckIn: &snapshot.CheckInRecord{EmployeePrivateNotes: "wrapping up", EmployeeCompleted: true},
		}},
	}

	t.Run("opens a check-in for the last rated position", func(t *testing.T) {
		t.Parallel()

		store := newFakeCheckIns()
		ledger := &recordingLedger{}
		exec := NewExecutor(store, ledger, &stubClock{now: executedAt}, nil, nil)

		mustExecute(t, exec, snap, groups(checkin.FieldGroupEmployee, checkin.FieldGroupOfficial), "tm-1")
		if len(ledger.positions) != 0 {
			t.Fatalf("no tenure may open without a current position")
		}

		ci := store.only(t, checkin.KindPosition, "pos-0")
		if !ci.EmployeeCompleted() || ci.Employee.PrivateNotes != "wrapping up" {
			t.Fatalf("unexpected employee side: %+v", ci.Employee)
		}
	})

	t.Run("updates the open position check-in", func(t *testing.T) {
		t.Parallel()

		store := newFakeCheckIns()
		existing, err := store.Create(context.Background(), &checkin.CheckIn{Kind: checkin.KindPosition, TeammateID: "tm-1", SubjectID: "pos-9"})
		if err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
		exec := NewExecutor(store, &recordingLedger{}, &stubClock{now: executedAt}, nil, nil)

		mustExecute(t, exec, snap, groups(checkin.FieldGroupEmployee), "tm-1")
		if len(store.order) != 1 {
			t.Fatalf("expected the open position check-in to be reused, got %v", store.order)
		}
		if !store.byID[existing.ID].EmployeeCompleted() {
			t.Fatalf("expected employee side completed")
		}
	})
}

type fakeSnapshotReader struct {
	byID     map[string]*snapshot.Snapshot
	previous map[string]*snapshot.Snapshot
}

func (f *fakeSnapshotReader) Get(_ context.Context, id string) (*snapshot.Snapshot, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, snapshot.ErrSnapshotNotFound
	}
	return s, nil
}

func (f *fakeSnapshotReader) PreviousOf(_ context.Context, s *snapshot.Snapshot) (*snapshot.Snapshot, error) {
	return f.previous[s.ID], nil
}

func TestDiffSnapshot(t *testing.T) {
	t.Parallel()

	first := &snapshot.Snapshot{ID: "snap-1", StateTree: snapshot.StateTree{Assignments: []snapshot.AssignmentState{{AssignmentID: "as-1", AnticipatedEnergyPercentage: ptr(40)}}}}
	second := &snapshot.Snapshot{ID: "snap-2", StateTree: snapshot.StateTree{Assignments: []snapshot.AssignmentState{{AssignmentID: "as-1", AnticipatedEnergyPercentage: ptr(60)}}}}
	reader := &fakeSnapshotReader{
		byID:     map[string]*snapshot.Snapshot{"snap-1": first, "snap-2": second},
		previous: map[string]*snapshot.Snapshot{"snap-2": first},
	}
	svc := NewService(reader, nil)

	diff, err := svc.DiffSnapshot(context.Background(), "snap-2")
	if err != nil {
		t.Fatalf("DiffSnapshot returned error: %v", err)
	}
	if diff.Previous == nil || diff.Previous.ID != "snap-1" {
		t.Fatalf("unexpected previous: %+v", diff.Previous)
	}
	if len(diff.Report.Changes) != 1 || !diff.Consistent {
		t.Fatalf("unexpected diff: %+v consistent=%v", diff.Report.Changes, diff.Consistent)
	}

	diff, err = svc.DiffSnapshot(context.Background(), "snap-1")
	if err != nil {
		t.Fatalf("DiffSnapshot returned error: %v", err)
	}
	if diff.Previous != nil {
		t.Fatalf("first snapshot has no predecessor")
	}
	if diff.Report.Changes[0].Kind != KindNewAssignment {
		t.Fatalf("expected new_assignment, got %s", diff.Report.Changes[0].Kind)
	}

	if _, err := svc.DiffSnapshot(context.Background(), "snap-9"); !errors.Is(err, snapshot.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
}
