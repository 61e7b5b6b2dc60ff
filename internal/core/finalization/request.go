package finalization

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
)

// Category は確定対象の分類です。
type Category string

const (
	CategoryPosition    Category = "position"
	CategoryAssignments Category = "assignments"
	CategoryAspirations Category = "aspirations"
)

// PositionSelection はポジションチェックインの確定指定です。
type PositionSelection struct {
	Finalize       bool
	OfficialRating string `validate:"required_if=Finalize true"`
	SharedNotes    string
}

// AssignmentSelection はアサインメントチェックインの確定指定です。
type AssignmentSelection struct {
	Finalize                    bool
	OfficialRating              string `validate:"required_if=Finalize true"`
	SharedNotes                 string
	AnticipatedEnergyPercentage *int `validate:"omitempty,min=0,max=100"`
}

// AspirationSelection は志向チェックインの確定指定です。
type AspirationSelection struct {
	Finalize       bool
	OfficialRating string `validate:"required_if=Finalize true"`
	SharedNotes    string
}

// Request は確定要求です。Assignments と Aspirations はチェックイン ID をキーとします。
type Request struct {
	TeammateID     string `validate:"required"`
	FinalizedBy    string `validate:"required"`
	Position       *PositionSelection
	Assignments    map[string]AssignmentSelection `validate:"dive,keys,required,endkeys"`
	Aspirations    map[string]AspirationSelection `validate:"dive,keys,required,endkeys"`
	Reason         string
	EffectiveDate  time.Time
	RequestContext snapshot.RequestContext
}

var validate = validator.New()

func (r *Request) normalize() {
	r.TeammateID = strings.TrimSpace(r.TeammateID)
	r.FinalizedBy = strings.TrimSpace(r.FinalizedBy)
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *Request) validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// flaggedAssignments は確定指定されたアサインメントチェックイン ID を昇順で返します。
func (r *Request) flaggedAssignments() []string {
	var ids []string
	for id, sel := range r.Assignments {
		if sel.Finalize {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// flaggedAspirations は確定指定された志向チェックイン ID を昇順で返します。
func (r *Request) flaggedAspirations() []string {
	var ids []string
	for id, sel := range r.Aspirations {
		if sel.Finalize {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *Request) positionFlagged() bool {
	return r.Position != nil && r.Position.Finalize
}
