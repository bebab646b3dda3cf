package evaluation

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/group"
)

// Results sharing
const (
	ResultsVisible = "visible"
	ResultsPrivate = "private"
)

var ResultsSharings = []string{ResultsVisible, ResultsPrivate}

// Email template types an evaluation references
const (
	EmailAvailable = "available"
	EmailReminder  = "reminder"
)

type Evaluation struct {
	ID                       string     `json:"id"`
	OwnerID                  string     `json:"owner_id"`
	Title                    string     `json:"title"`
	Instructions             string     `json:"instructions"`
	TemplateID               string     `json:"template_id"`
	StartDate                time.Time  `json:"start_date"` // UTC
	DueDate                  *time.Time `json:"due_date"`
	StopDate                 *time.Time `json:"stop_date"`
	ViewDate                 *time.Time `json:"view_date"`
	State                    string     `json:"state"`
	ResultsSharing           string     `json:"results_sharing"`
	StudentsViewResults      bool       `json:"students_view_results"`
	InstructorsViewResults   bool       `json:"instructors_view_results"`
	BlankResponsesAllowed    bool       `json:"blank_responses_allowed"`
	ModifyResponsesAllowed   bool       `json:"modify_responses_allowed"`
	ReminderDays             int        `json:"reminder_days"`
	AvailableEmailTemplateID string     `json:"available_email_template_id,omitempty"`
	ReminderEmailTemplateID  string     `json:"reminder_email_template_id,omitempty"`
	Locked                   bool       `json:"locked"`
	CreatedAt                time.Time  `json:"created_at"` // UTC
	UpdatedAt                time.Time  `json:"updated_at"` // UTC
}

// AssignGroup links an Evaluation to a Group taking it.
type AssignGroup struct {
	ID                     string    `json:"id"`
	EvaluationID           string    `json:"evaluation_id"`
	GroupID                string    `json:"group_id"`
	InstructorApproval     bool      `json:"instructor_approval"`
	InstructorsViewResults bool      `json:"instructors_view_results"`
	StudentsViewResults    bool      `json:"students_view_results"`
	CreatedAt              time.Time `json:"created_at"` // UTC
}

// Assignment is an evaluation a user takes in one of their groups.
type Assignment struct {
	Evaluation Evaluation  `json:"evaluation"`
	Group      group.Group `json:"group"`
}

type NewEvaluation struct {
	Title                    string     `json:"title" validate:"required,notblank"`
	Instructions             string     `json:"instructions"`
	TemplateID               string     `json:"template_id" validate:"required"`
	StartDate                time.Time  `json:"start_date"`
	DueDate                  *time.Time `json:"due_date"`
	StopDate                 *time.Time `json:"stop_date"`
	ViewDate                 *time.Time `json:"view_date"`
	ResultsSharing           string     `json:"results_sharing" validate:"omitempty,resultssharing"`
	StudentsViewResults      bool       `json:"students_view_results"`
	InstructorsViewResults   *bool      `json:"instructors_view_results"`
	BlankResponsesAllowed    bool       `json:"blank_responses_allowed"`
	ModifyResponsesAllowed   bool       `json:"modify_responses_allowed"`
	ReminderDays             *int       `json:"reminder_days" validate:"omitempty,min=0,max=365"`
	AvailableEmailTemplateID string     `json:"available_email_template_id"`
	ReminderEmailTemplateID  string     `json:"reminder_email_template_id"`
	Partial                  bool       `json:"partial"`
}

func (ne *NewEvaluation) Validate(validate *validator.Validate) error {
	ne.Title = core.CleanString(ne.Title)
	ne.Instructions = core.CleanString(ne.Instructions)
	ne.TemplateID = core.CleanString(ne.TemplateID)
	ne.ResultsSharing = core.CleanString(ne.ResultsSharing, true)
	if ne.ResultsSharing == "" {
		ne.ResultsSharing = ResultsVisible
	}
	ne.AvailableEmailTemplateID = core.CleanString(ne.AvailableEmailTemplateID)
	ne.ReminderEmailTemplateID = core.CleanString(ne.ReminderEmailTemplateID)
	return validate.Struct(ne)
}

// UpdateEvaluation holds the changes to an evaluation; nil fields are left untouched.
type UpdateEvaluation struct {
	Title                    *string    `json:"title" validate:"omitempty,notblank"`
	Instructions             *string    `json:"instructions"`
	TemplateID               *string    `json:"template_id" validate:"omitempty,notblank"`
	StartDate                *time.Time `json:"start_date"`
	DueDate                  *time.Time `json:"due_date"`
	StopDate                 *time.Time `json:"stop_date"`
	ViewDate                 *time.Time `json:"view_date"`
	ResultsSharing           *string    `json:"results_sharing" validate:"omitempty,resultssharing"`
	StudentsViewResults      *bool      `json:"students_view_results"`
	InstructorsViewResults   *bool      `json:"instructors_view_results"`
	BlankResponsesAllowed    *bool      `json:"blank_responses_allowed"`
	ModifyResponsesAllowed   *bool      `json:"modify_responses_allowed"`
	ReminderDays             *int       `json:"reminder_days" validate:"omitempty,min=0,max=365"`
	AvailableEmailTemplateID *string    `json:"available_email_template_id"`
	ReminderEmailTemplateID  *string    `json:"reminder_email_template_id"`
	// Publish moves a partial evaluation into its lifecycle.
	Publish bool `json:"publish"`
}

func (ue *UpdateEvaluation) Validate(validate *validator.Validate) error {
	cleanPtr := func(s *string, lower ...bool) {
		if s != nil {
			*s = core.CleanString(*s, lower...)
		}
	}
	cleanPtr(ue.Title)
	cleanPtr(ue.Instructions)
	cleanPtr(ue.TemplateID)
	cleanPtr(ue.ResultsSharing, true)
	cleanPtr(ue.AvailableEmailTemplateID)
	cleanPtr(ue.ReminderEmailTemplateID)
	return validate.Struct(ue)
}

// onlyResultsChanges reports whether ue only touches the view date and the results flags.
func (ue UpdateEvaluation) onlyResultsChanges(orig Evaluation) bool {
	strChanged := func(p *string, v string) bool { return p != nil && *p != v }
	boolChanged := func(p *bool, v bool) bool { return p != nil && *p != v }
	intChanged := func(p *int, v int) bool { return p != nil && *p != v }

	return !(strChanged(ue.Title, orig.Title) ||
		strChanged(ue.Instructions, orig.Instructions) ||
		strChanged(ue.TemplateID, orig.TemplateID) ||
		timeChanged(ue.StartDate, &orig.StartDate) ||
		timeChanged(ue.DueDate, orig.DueDate) ||
		timeChanged(ue.StopDate, orig.StopDate) ||
		boolChanged(ue.BlankResponsesAllowed, orig.BlankResponsesAllowed) ||
		boolChanged(ue.ModifyResponsesAllowed, orig.ModifyResponsesAllowed) ||
		intChanged(ue.ReminderDays, orig.ReminderDays) ||
		strChanged(ue.AvailableEmailTemplateID, orig.AvailableEmailTemplateID) ||
		strChanged(ue.ReminderEmailTemplateID, orig.ReminderEmailTemplateID))
}

// timeChanged reports whether the requested time p differs from the current value v; a nil p is no change.
func timeChanged(p, v *time.Time) bool {
	if p == nil {
		return false
	}
	return v == nil || !p.Equal(*v)
}

type NewAssignGroup struct {
	GroupID                string `json:"group_id" validate:"required"`
	InstructorApproval     *bool  `json:"instructor_approval"`
	InstructorsViewResults *bool  `json:"instructors_view_results"`
	StudentsViewResults    *bool  `json:"students_view_results"`
}

func (nag *NewAssignGroup) Validate(validate *validator.Validate) error {
	nag.GroupID = core.CleanString(nag.GroupID)
	return validate.Struct(nag)
}

type UpdateAssignGroup struct {
	InstructorApproval     *bool `json:"instructor_approval"`
	InstructorsViewResults *bool `json:"instructors_view_results"`
	StudentsViewResults    *bool `json:"students_view_results"`
}

type QueryFilter struct {
	Search     string `query:"search"`
	State      string `query:"state"`
	OwnerID    string `query:"owner"`
	TemplateID string `query:"template"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.State = core.CleanString(qf.State, true /* lower */)
	qf.OwnerID = core.CleanString(qf.OwnerID)
	qf.TemplateID = core.CleanString(qf.TemplateID)
}

// Match reports whether e passes the stored fields of the filter; State is applied by the service.
func (qf *QueryFilter) Match(e Evaluation) bool {
	if qf.Search != "" && !strings.Contains(strings.ToLower(e.Title), strings.ToLower(qf.Search)) {
		return false
	}
	if qf.OwnerID != "" && e.OwnerID != qf.OwnerID {
		return false
	}
	if qf.TemplateID != "" && e.TemplateID != qf.TemplateID {
		return false
	}
	return true
}
