package handler

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ogurasousui/checkin-ledger/internal/core/changes"
	"github.com/ogurasousui/checkin-ledger/internal/core/checkin"
	"github.com/ogurasousui/checkin-ledger/internal/core/finalization"
	"github.com/ogurasousui/checkin-ledger/internal/core/management"
	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
	"github.com/ogurasousui/checkin-ledger/internal/platform/authz"
)

// Finalizer はチェックインの一括確定です。
type Finalizer interface {
	Finalize(ctx context.Context, req finalization.Request) (*finalization.Result, error)
}

// EnergyManager はアサインメントのエネルギー変更です。
type EnergyManager interface {
	SetAssignmentEnergy(ctx context.Context, in management.SetEnergyInput) (*management.SetEnergyResult, error)
}

// CheckInOpener はチェックインの開始と一覧です。
type CheckInOpener interface {
	StartCheckIn(ctx context.Context, in checkin.StartCheckInInput) (*checkin.CheckIn, error)
	ListForTeammate(ctx context.Context, teammateID string) ([]*checkin.CheckIn, error)
}

// SideSubmitter はチェックインの片側入力です。
type SideSubmitter interface {
	SubmitEmployeeSide(ctx context.Context, in checkin.SubmitEmployeeSideInput, auth checkin.Authorizer) (*checkin.SideResult, error)
	SubmitManagerSide(ctx context.Context, in checkin.SubmitManagerSideInput, auth checkin.Authorizer) (*checkin.SideResult, error)
}

// SnapshotReader はスナップショットの参照です。
type SnapshotReader interface {
	Get(ctx context.Context, id string) (*snapshot.Snapshot, error)
	HistoryFor(ctx context.Context, employeeID string) ([]*snapshot.Snapshot, error)
}

// SnapshotDiffer は保存済みスナップショットの差分です。
type SnapshotDiffer interface {
	DiffSnapshot(ctx context.Context, id string) (*changes.SnapshotDiff, error)
}

// SnapshotExecutor はスナップショットの再適用です。
type SnapshotExecutor interface {
	Execute(ctx context.Context, snap *snapshot.Snapshot, auth checkin.Authorizer, actorID string) (*changes.ExecutionResult, error)
}

// Bootstrapper は初期スナップショットの生成です。
type Bootstrapper interface {
	BootstrapInitial(ctx context.Context, employeeID string) (*snapshot.BootstrapResult, error)
}

// Policy は操作者ごとの権限判定を返します。
type Policy interface {
	For(actor authz.Actor) *authz.Context
}

// Dependencies は CheckInHandler が利用するユースケースです。
type Dependencies struct {
	Finalizer    Finalizer
	Energy       EnergyManager
	CheckIns     CheckInOpener
	Sides        SideSubmitter
	Snapshots    SnapshotReader
	Differ       SnapshotDiffer
	Executor     SnapshotExecutor
	Bootstrapper Bootstrapper
	Policy       Policy
}

// CheckInHandler は CheckInService の gRPC 実装です。
type CheckInHandler struct {
	deps Dependencies
}

var _ CheckInServiceServer = (*CheckInHandler)(nil)

// NewCheckInHandler は CheckInHandler を生成します。
func NewCheckInHandler(deps Dependencies) *CheckInHandler {
	return &CheckInHandler{deps: deps}
}

type call struct {
	actor authz.Actor
	auth  *authz.Context
	in    fields
}

func (h *CheckInHandler) begin(ctx context.Context, req *structpb.Struct) (*call, error) {
	in, err := fieldsOf(req)
	if err != nil {
		return nil, err
	}
	actor, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return &call{actor: actor, auth: h.deps.Policy.For(actor), in: in}, nil
}

// requireGroup は対象チームメイトのフィールド群を編集できない場合に PermissionDenied を返します。
func (c *call) requireGroup(group checkin.FieldGroup, teammateID string) error {
	if !c.auth.Can(group, &checkin.CheckIn{TeammateID: teammateID}) {
		return status.Errorf(codes.PermissionDenied, "actor cannot edit %s fields of teammate %s", group, teammateID)
	}
	return nil
}

// requireRelation は対象チームメイトと無関係な操作者を拒否します。
func (c *call) requireRelation(teammateID string) error {
	if len(c.auth.Relations(teammateID)) == 0 {
		return status.Errorf(codes.PermissionDenied, "actor has no access to teammate %s", teammateID)
	}
	return nil
}

// FinalizeCheckIns は指定されたチェックインを 1 トランザクションで確定します。
func (h *CheckInHandler) FinalizeCheckIns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := h.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	freq, err := decodeFinalizeRequest(c.in)
	if err != nil {
		return nil, err
	}
	if err := c.requireGroup(checkin.FieldGroupOfficial, freq.TeammateID); err != nil {
		return nil, err
	}
	freq.FinalizedBy = c.actor.ID
	freq.RequestContext = requestContextFrom(ctx, c.actor.ID)

	result, err := h.deps.Finalizer.Finalize(ctx, freq)
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(finalizeResponse(result))
}

// SetAssignmentEnergy はアサインメントのエネルギー割合を変更します。
func (h *CheckInHandler) SetAssignmentEnergy(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := h.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	teammateID, err := c.in.requiredString("teammate_id")
	if err != nil {
		return nil, err
	}
	assignmentID, err := c.in.requiredString("assignment_id")
	if err != nil {
		return nil, err
	}
	energy, err := c.in.optionalInt("energy_percentage")
	if err != nil {
		return nil, err
	}
	if energy == nil {
		return nil, invalidArgument("energy_percentage is required")
	}
	effective, err := c.in.optionalDate("effective_date")
	if err != nil {
		return nil, err
	}
	if err := c.requireGroup(checkin.FieldGroupOfficial, teammateID); err != nil {
		return nil, err
	}

	result, err := h.deps.Energy.SetAssignmentEnergy(ctx, management.SetEnergyInput{
		TeammateID:       teammateID,
		AssignmentID:     assignmentID,
		EnergyPercentage: *energy,
		EffectiveDate:    effective,
		ActorID:          c.actor.ID,
		Reason:           c.in.str("reason"),
		RequestContext:   requestContextFrom(ctx, c.actor.ID),
	})
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(energyResponse(result))
}

// StartCheckIn は対象の未確定チェックインを返し、無ければ開始します。
func (h *CheckInHandler) StartCheckIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := h.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	in := checkin.StartCheckInInput{}
	if in.TeammateID, err = c.in.requiredString("teammate_id"); err != nil {
		return nil, err
	}
	kind, err := c.in.requiredString("kind")
	if err != nil {
		return nil, err
	}
	in.Kind = checkin.Kind(kind)
	if in.SubjectID, err = c.in.requiredString("subject_id"); err != nil {
		return nil, err
	}
	startedOn, err := c.in.optionalDate("started_on")
	if err != nil {
		return nil, err
	}
	if !startedOn.IsZero() {
		in.StartedOn = &startedOn
	}
	if err := c.requireRelation(in.TeammateID); err != nil {
		return nil, err
	}

	ci, err := h.deps.CheckIns.StartCheckIn(ctx, in)
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(map[string]any{"check_in": checkInView(ci)})
}

// ListCheckIns はチームメイトのチェックインを開始日順に返します。
func (h *CheckInHandler) ListCheckIns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := h.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	teammateID, err := c.in.requiredString("teammate_id")
	if err != nil {
		return nil, err
	}
	if err := c.requireRelation(teammateID); err != nil {
		return nil, err
	}

	list, err := h.deps.CheckIns.ListForTeammate(ctx, teammateID)
	if err != nil {
		return nil, toStatusError(err)
	}
	items := make([]any, 0, len(list))
	for _, ci := range list {
		items = append(items, checkInView(ci))
	}
	return encode(map[string]any{"check_ins": items})
}

// SubmitEmployeeSide は本人側の入力を反映します。
func (h *CheckInHandler) SubmitEmployeeSide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := h.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	in := checkin.SubmitEmployeeSideInput{}
	if in.CheckInID, err = c.in.requiredString("check_in_id"); err != nil {
		return nil, err
	}
	if in.Rating, err = c.in.optionalString("rating"); err != nil {
		return nil, err
	}
	if in.PrivateNotes, err = c.in.optionalString("private_notes"); err != nil {
		return nil, err
	}
	if in.PersonalAlignment, err = c.in.optionalString("personal_alignment"); err != nil {
		return nil, err
	}
	if in.ActualEnergyPercentage, err = c.in.optionalInt("actual_energy_percentage"); err != nil {
		return nil, err
	}
	if in.Complete, err = c.in.optionalBool("complete"); err != nil {
		return nil, err
	}

	result, err := h.deps.Sides.SubmitEmployeeSide(ctx, in, c.auth)
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(sideResponse(result))
}

// SubmitManagerSide はマネージャー側の入力を反映します。
func (h *CheckInHandler) SubmitManagerSide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := h.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	in := checkin.SubmitManagerSideInput{ActorID: c.actor.ID}
	if in.CheckInID, err = c.in.requiredString("check_in_id"); err != nil {
		return nil, err
	}
	if in.Rating, err = c.in.optionalString("rating"); err != nil {
		return nil, err
	}
	if in.PrivateNotes, err = c.in.optionalString("private_notes"); err != nil {
		return nil, err
	}
	if in.Complete, err = c.in.optionalBool("complete"); err != nil {
		return nil, err
	}

	result, err := h.deps.Sides.SubmitManagerSide(ctx, in, c.auth)
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(sideResponse(result))
}

// ListSnapshots は従業員のスナップショット履歴を新しい順に返します。
func (h *CheckInHandler) ListSnapshots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := h.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	employeeID, err := c.in.requiredString("employee_id")
	if err != nil {
		return nil, err
	}
	if err := c.requireRelation(employeeID); err != nil {
		return nil, err
	}

	history, err := h.deps.Snapshots.HistoryFor(ctx, employeeID)
	if err != nil {
		return nil, toStatusError(err)
	}
	items := make([]any, 0, len(history))
	for _, s := range history {
		items = append(items, snapshotSummary(s))
	}
	return encode(map[string]any{"snapshots": items})
}

// DiffSnapshot はスナップショットを直前のものと比較します。
func (h *CheckInHandler) DiffSnapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := h.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	id, err := c.in.requiredString("snapshot_id")
	if err != nil {
		return nil, err
	}

	diff, err := h.deps.Differ.DiffSnapshot(ctx, id)
	if err != nil {
		return nil, toStatusError(err)
	}
	if err := c.requireRelation(diff.Snapshot.EmployeeID); err != nil {
		return nil, err
	}
	resp, err := diffResponse(diff)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode diff: %v", err)
	}
	return encode(resp)
}

// ExecuteSnapshot はスナップショットの状態を現在のレコードへ適用します。
// 権限の無いフィールド群は skipped として返ります。
func (h *CheckInHandler) ExecuteSnapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := h.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	id, err := c.in.requiredString("snapshot_id")
	if err != nil {
		return nil, err
	}

	snap, err := h.deps.Snapshots.Get(ctx, id)
	if err != nil {
		return nil, toStatusError(err)
	}
	if err := c.requireRelation(snap.EmployeeID); err != nil {
		return nil, err
	}
	result, err := h.deps.Executor.Execute(ctx, snap, c.auth, c.actor.ID)
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(executionResponse(result))
}

// BootstrapSnapshot は評価履歴の無い従業員に初期スナップショットを作成します。
func (h *CheckInHandler) BootstrapSnapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := h.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	employeeID, err := c.in.requiredString("employee_id")
	if err != nil {
		return nil, err
	}
	if err := c.requireGroup(checkin.FieldGroupOfficial, employeeID); err != nil {
		return nil, err
	}

	result, err := h.deps.Bootstrapper.BootstrapInitial(ctx, employeeID)
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(map[string]any{
		"snapshot_id": result.Snapshot.ID,
		"created":     result.Created,
	})
}
