package response

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tathmini/core"
)

// NA is the numeric answer of an item answered "not applicable".
const NA = -1

type Response struct {
	ID           string     `json:"id"`
	EvaluationID string     `json:"evaluation_id"`
	GroupID      string     `json:"group_id"`
	OwnerID      string     `json:"owner_id"`
	StartTime    time.Time  `json:"start_time"` // UTC
	EndTime      *time.Time `json:"end_time"`   // set once completed
	Answers      []Answer   `json:"answers"`
}

func (r Response) IsComplete() bool { return r.EndTime != nil }

type Answer struct {
	ID             string `json:"id,omitempty"`
	ResponseID     string `json:"-"`
	TemplateItemID string `json:"template_item_id"`
	Numeric        *int   `json:"numeric,omitempty"` // option index, or NA
	Text           string `json:"text,omitempty"`
	Multi          []int  `json:"multi,omitempty"` // option indexes
}

func (a Answer) IsBlank() bool {
	return a.Numeric == nil && a.Text == "" && len(a.Multi) == 0
}

func (a Answer) IsNA() bool {
	return a.Numeric != nil && *a.Numeric == NA
}

type NewAnswer struct {
	TemplateItemID string `json:"template_item_id" validate:"required"`
	Numeric        *int   `json:"numeric"`
	Text           string `json:"text"`
	Multi          []int  `json:"multi"`
}

// SaveResponse holds the answers of a user taking an evaluation in a group.
type SaveResponse struct {
	GroupID string      `json:"group_id" validate:"required"`
	Answers []NewAnswer `json:"answers" validate:"dive"`
	// Draft saves the answers without completing the response.
	Draft bool `json:"draft"`
}

func (sr *SaveResponse) Validate(validate *validator.Validate) error {
	sr.GroupID = core.CleanString(sr.GroupID)
	for i := range sr.Answers {
		sr.Answers[i].TemplateItemID = core.CleanString(sr.Answers[i].TemplateItemID)
		sr.Answers[i].Text = core.CleanString(sr.Answers[i].Text)
	}
	return validate.Struct(sr)
}
