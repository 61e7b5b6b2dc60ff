package handler

import (
	"encoding/json"
	"sort"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ogurasousui/checkin-ledger/internal/core/changes"
	"github.com/ogurasousui/checkin-ledger/internal/core/checkin"
	"github.com/ogurasousui/checkin-ledger/internal/core/finalization"
	"github.com/ogurasousui/checkin-ledger/internal/core/management"
	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
	"github.com/ogurasousui/checkin-ledger/internal/core/tenure"
)

func encode(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// decodeFinalizeRequest は確定要求を組み立てます。
// 各カテゴリの finalize は "0"/"1" または真偽値で指定します。
func decodeFinalizeRequest(in fields) (finalization.Request, error) {
	var req finalization.Request
	var err error

	if req.TeammateID, err = in.requiredString("teammate_id"); err != nil {
		return req, err
	}
	req.Reason = in.str("reason")
	if req.EffectiveDate, err = in.optionalDate("effective_date"); err != nil {
		return req, err
	}

	position, err := in.object("position_check_in")
	if err != nil {
		return req, err
	}
	if position != nil {
		flag, err := position.optionalBool("finalize")
		if err != nil {
			return req, err
		}
		req.Position = &finalization.PositionSelection{
			Finalize:       flag != nil && *flag,
			OfficialRating: position.str("official_rating"),
			SharedNotes:    position.str("shared_notes"),
		}
	}

	assignments, err := in.object("assignment_check_ins")
	if err != nil {
		return req, err
	}
	if len(assignments) > 0 {
		req.Assignments = make(map[string]finalization.AssignmentSelection, len(assignments))
		for id := range assignments {
			sel, err := assignments.object(id)
			if err != nil {
				return req, err
			}
			flag, err := sel.optionalBool("finalize")
			if err != nil {
				return req, err
			}
			energy, err := sel.optionalInt("anticipated_energy_percentage")
			if err != nil {
				return req, err
			}
			req.Assignments[id] = finalization.AssignmentSelection{
				Finalize:                    flag != nil && *flag,
				OfficialRating:              sel.str("official_rating"),
				SharedNotes:                 sel.str("shared_notes"),
				AnticipatedEnergyPercentage: energy,
			}
		}
	}

	aspirations, err := in.object("aspiration_check_ins")
	if err != nil {
		return req, err
	}
	if len(aspirations) > 0 {
		req.Aspirations = make(map[string]finalization.AspirationSelection, len(aspirations))
		for id := range aspirations {
			sel, err := aspirations.object(id)
			if err != nil {
				return req, err
			}
			flag, err := sel.optionalBool("finalize")
			if err != nil {
				return req, err
			}
			req.Aspirations[id] = finalization.AspirationSelection{
				Finalize:       flag != nil && *flag,
				OfficialRating: sel.str("official_rating"),
				SharedNotes:    sel.str("shared_notes"),
			}
		}
	}

	return req, nil
}

func finalizeResponse(result *finalization.Result) map[string]any {
	perCategory := map[string]any{}
	for _, cat := range result.Categories {
		tenures := make([]any, 0, len(cat.Tenures))
		for _, t := range cat.Tenures {
			tenures = append(tenures, transitionView(t))
		}
		perCategory[string(cat.Category)] = map[string]any{
			"check_in_ids": stringList(cat.CheckInIDs),
			"tenures":      tenures,
		}
	}

	resp := map[string]any{"per_category_results": perCategory}
	if result.Snapshot != nil {
		resp["snapshot_id"] = result.Snapshot.ID
		resp["change_type"] = string(result.Snapshot.ChangeType)
	} else {
		resp["snapshot_id"] = nil
	}
	return resp
}

func energyResponse(result *management.SetEnergyResult) map[string]any {
	resp := map[string]any{
		"changed":    result.Transition.Changed(),
		"transition": transitionView(result.Transition),
	}
	if result.Snapshot != nil {
		resp["snapshot_id"] = result.Snapshot.ID
	}
	return resp
}

func transitionView(t *tenure.Transition) map[string]any {
	if t == nil {
		return map[string]any{}
	}
	return map[string]any{
		"closed":  tenureView(t.Closed),
		"opened":  tenureView(t.Opened),
		"current": tenureView(t.Current),
	}
}

func tenureView(t *tenure.Tenure) any {
	if t == nil {
		return nil
	}
	view := map[string]any{
		"id":           t.ID,
		"subject_kind": string(t.SubjectKind),
		"subject_id":   t.SubjectID,
		"started_on":   tenure.FormatDate(t.StartedOn),
		"ended_on":     optionalString(tenure.FormatOptionalDate(t.EndedOn)),
	}
	if t.EnergyPercentage != nil {
		view["energy_percentage"] = *t.EnergyPercentage
	}
	if t.OfficialRating != nil {
		view["official_rating"] = *t.OfficialRating
	}
	return view
}

func sideResponse(result *checkin.SideResult) map[string]any {
	return map[string]any{
		"check_in":   checkInView(result.CheckIn),
		"completion": string(result.Completion),
	}
}

func checkInView(ci *checkin.CheckIn) map[string]any {
	return map[string]any{
		"id":                 ci.ID,
		"kind":               string(ci.Kind),
		"teammate_id":        ci.TeammateID,
		"subject_id":         ci.SubjectID,
		"state":              string(ci.State()),
		"started_on":         tenure.FormatDate(ci.StartedOn),
		"employee_completed": ci.EmployeeCompleted(),
		"manager_completed":  ci.ManagerCompleted(),
		"snapshot_id":        optionalString(ci.SnapshotID),
	}
}

func snapshotSummary(s *snapshot.Snapshot) map[string]any {
	return map[string]any{
		"id":             s.ID,
		"employee_id":    s.EmployeeID,
		"creator_id":     s.CreatorID,
		"change_type":    string(s.ChangeType),
		"reason":         s.Reason,
		"effective_date": tenure.FormatDate(s.EffectiveDate),
		"created_at":     s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// diffResponse はレポートを JSON 表現経由で Struct 互換の値へ変換します。
func diffResponse(diff *changes.SnapshotDiff) (map[string]any, error) {
	raw, err := json.Marshal(diff.Report)
	if err != nil {
		return nil, err
	}
	var report map[string]any
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, err
	}

	resp := map[string]any{
		"snapshot_id":          diff.Snapshot.ID,
		"previous_snapshot_id": nil,
		"report":               report,
		"consistent":           diff.Consistent,
	}
	if diff.Previous != nil {
		resp["previous_snapshot_id"] = diff.Previous.ID
	}
	return resp, nil
}

func executionResponse(result *changes.ExecutionResult) map[string]any {
	applied := make([]any, 0, len(result.Applied))
	for _, a := range result.Applied {
		applied = append(applied, groupView(string(a.Category), a.SubjectID, a.Group))
	}
	skipped := make([]any, 0, len(result.Skipped))
	for _, s := range result.Skipped {
		skipped = append(skipped, groupView(string(s.Category), s.SubjectID, s.Group))
	}
	return map[string]any{
		"snapshot_id": result.SnapshotID,
		"applied":     applied,
		"skipped":     skipped,
	}
}

func groupView(category, subjectID string, group checkin.FieldGroup) map[string]any {
	return map[string]any{
		"category":   category,
		"subject_id": subjectID,
		"group":      string(group),
	}
}

func stringList(values []string) []any {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	out := make([]any, 0, len(sorted))
	for _, v := range sorted {
		out = append(out, v)
	}
	return out
}

func optionalString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

