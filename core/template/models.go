package template

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/scale"
)

// Template types
const (
	TypeStandard = "standard"
	TypeAdded    = "added" // items added on top of an evaluation by its instructors
)

// Item classifications
const (
	ClassScaled         = "scaled"
	ClassMultipleChoice = "multiplechoice"
	ClassMultipleAnswer = "multipleanswer"
	ClassText           = "text"
	ClassHeader         = "header"
)

// Item categories
const (
	CategoryCourse     = "course"
	CategoryInstructor = "instructor"
)

// Scale display settings
const (
	ScaleDisplayFull     = "full"
	ScaleDisplayCompact  = "compact"
	ScaleDisplayStepped  = "stepped"
	ScaleDisplayVertical = "vertical"
)

const defaultDisplayRows = 3

var (
	Types           = []string{TypeStandard, TypeAdded}
	Classifications = []string{ClassScaled, ClassMultipleChoice, ClassMultipleAnswer, ClassText, ClassHeader}
	Categories      = []string{CategoryCourse, CategoryInstructor}
	ScaleDisplays   = []string{ScaleDisplayFull, ScaleDisplayCompact, ScaleDisplayStepped, ScaleDisplayVertical}
)

// NeedsScale reports whether items of this classification are answered on a scale.
func NeedsScale(class string) bool {
	return class == ClassScaled || class == ClassMultipleChoice || class == ClassMultipleAnswer
}

type Template struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	Sharing     string    `json:"sharing"`
	Expert      bool      `json:"expert"`
	Locked      bool      `json:"locked"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// Item is a question of the item bank.
type Item struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Text           string    `json:"text"`
	Classification string    `json:"classification"`
	ScaleID        string    `json:"scale_id,omitempty"`
	UsesNA         bool      `json:"uses_na"`
	Category       string    `json:"category"`
	Sharing        string    `json:"sharing"`
	Expert         bool      `json:"expert"`
	Locked         bool      `json:"locked"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
}

func (it Item) IsAnswerable() bool { return it.Classification != ClassHeader }

// TemplateItem places an Item in a Template.
type TemplateItem struct {
	ID           string    `json:"id"`
	TemplateID   string    `json:"template_id"`
	ItemID       string    `json:"item_id"`
	DisplayOrder int       `json:"display_order"` // 1..n
	Category     string    `json:"category"`
	DisplayRows  int       `json:"display_rows,omitempty"`
	Compulsory   bool      `json:"compulsory"`
	UsesNA       bool      `json:"uses_na"`
	ScaleDisplay string    `json:"scale_display,omitempty"`
	CreatedAt    time.Time `json:"created_at"` // UTC
}

// FullItem is a TemplateItem with its Item and, for scaled items, its Scale.
type FullItem struct {
	TemplateItem
	Item  Item         `json:"item"`
	Scale *scale.Scale `json:"scale,omitempty"`
}

func (fi FullItem) IsAnswerable() bool { return fi.Item.IsAnswerable() }

type NewTemplate struct {
	Title       string `json:"title" validate:"required,notblank"`
	Description string `json:"description"`
	Type        string `json:"type" validate:"omitempty,templatetype"`
	Sharing     string `json:"sharing" validate:"omitempty,sharing"`
	Expert      bool   `json:"expert"`
}

func (nt *NewTemplate) Validate(validate *validator.Validate) error {
	nt.Title = core.CleanString(nt.Title)
	nt.Description = core.CleanString(nt.Description)
	nt.Type = defaultString(core.CleanString(nt.Type, true), TypeStandard)
	nt.Sharing = defaultString(core.CleanString(nt.Sharing, true), core.SharingPrivate)
	return validate.Struct(nt)
}

type UpdateTemplate struct {
	Title       string  `json:"title" validate:"omitempty,notblank"`
	Description *string `json:"description"`
	Sharing     string  `json:"sharing" validate:"omitempty,sharing"`
	Expert      *bool   `json:"expert"`
}

func (ut *UpdateTemplate) Validate(orig Template, validate *validator.Validate) error {
	ut.Title = defaultString(core.CleanString(ut.Title), orig.Title)
	if ut.Description == nil {
		ut.Description = &orig.Description
	} else {
		desc := core.CleanString(*ut.Description)
		ut.Description = &desc
	}
	ut.Sharing = defaultString(core.CleanString(ut.Sharing, true), orig.Sharing)
	if ut.Expert == nil {
		ut.Expert = &orig.Expert
	}
	return validate.Struct(ut)
}

type NewItem struct {
	Text           string `json:"text" validate:"required,notblank"`
	Classification string `json:"classification" validate:"required,itemclass"`
	ScaleID        string `json:"scale_id"`
	UsesNA         bool   `json:"uses_na"`
	Category       string `json:"category" validate:"omitempty,itemcategory"`
	Sharing        string `json:"sharing" validate:"omitempty,sharing"`
	Expert         bool   `json:"expert"`
}

func (ni *NewItem) Validate(validate *validator.Validate) error {
	ni.Text = core.CleanString(ni.Text)
	ni.Classification = core.CleanString(ni.Classification, true)
	ni.ScaleID = core.CleanString(ni.ScaleID)
	ni.Category = defaultString(core.CleanString(ni.Category, true), CategoryCourse)
	ni.Sharing = defaultString(core.CleanString(ni.Sharing, true), core.SharingPrivate)
	if err := validate.Struct(ni); err != nil {
		return err
	}
	return checkItemScale(ni.Classification, ni.ScaleID, ni.UsesNA)
}

type UpdateItem struct {
	Text           string  `json:"text" validate:"omitempty,notblank"`
	Classification string  `json:"classification" validate:"omitempty,itemclass"`
	ScaleID        *string `json:"scale_id"`
	UsesNA         *bool   `json:"uses_na"`
	Category       string  `json:"category" validate:"omitempty,itemcategory"`
	Sharing        string  `json:"sharing" validate:"omitempty,sharing"`
	Expert         *bool   `json:"expert"`
}

func (ui *UpdateItem) Validate(orig Item, validate *validator.Validate) error {
	ui.Text = defaultString(core.CleanString(ui.Text), orig.Text)
	ui.Classification = defaultString(core.CleanString(ui.Classification, true), orig.Classification)
	if ui.ScaleID == nil {
		ui.ScaleID = &orig.ScaleID
	} else {
		id := core.CleanString(*ui.ScaleID)
		ui.ScaleID = &id
	}
	if ui.UsesNA == nil {
		ui.UsesNA = &orig.UsesNA
	}
	ui.Category = defaultString(core.CleanString(ui.Category, true), orig.Category)
	ui.Sharing = defaultString(core.CleanString(ui.Sharing, true), orig.Sharing)
	if ui.Expert == nil {
		ui.Expert = &orig.Expert
	}
	if err := validate.Struct(ui); err != nil {
		return err
	}
	return checkItemScale(ui.Classification, *ui.ScaleID, *ui.UsesNA)
}

func checkItemScale(class, scaleID string, usesNA bool) error {
	if NeedsScale(class) && scaleID == "" {
		return core.NewFieldError("scale_id", "a scale is required for "+class+" items")
	}
	if !NeedsScale(class) && scaleID != "" {
		return core.NewFieldError("scale_id", class+" items cannot have a scale")
	}
	if class == ClassHeader && usesNA {
		return core.NewFieldError("uses_na", "header items cannot use N/A")
	}
	return nil
}

// NewTemplateItem places an existing item in a template.
type NewTemplateItem struct {
	ItemID       string `json:"item_id" validate:"required"`
	Category     string `json:"category" validate:"omitempty,itemcategory"`
	DisplayRows  int    `json:"display_rows" validate:"min=0,max=50"`
	Compulsory   bool   `json:"compulsory"`
	UsesNA       *bool  `json:"uses_na"`
	ScaleDisplay string `json:"scale_display" validate:"omitempty,scaledisplay"`
}

func (nti *NewTemplateItem) Validate(validate *validator.Validate) error {
	nti.ItemID = core.CleanString(nti.ItemID)
	nti.Category = core.CleanString(nti.Category, true)
	nti.ScaleDisplay = core.CleanString(nti.ScaleDisplay, true)
	return validate.Struct(nti)
}

type UpdateTemplateItem struct {
	Category     string `json:"category" validate:"omitempty,itemcategory"`
	DisplayRows  *int   `json:"display_rows" validate:"omitempty,min=0,max=50"`
	Compulsory   *bool  `json:"compulsory"`
	UsesNA       *bool  `json:"uses_na"`
	ScaleDisplay string `json:"scale_display" validate:"omitempty,scaledisplay"`
}

func (uti *UpdateTemplateItem) Validate(validate *validator.Validate) error {
	uti.Category = core.CleanString(uti.Category, true)
	uti.ScaleDisplay = core.CleanString(uti.ScaleDisplay, true)
	return validate.Struct(uti)
}

type ReorderItems struct {
	TemplateItemIDs []string `json:"template_item_ids" validate:"required,dive,required"`
}

type QueryFilter struct {
	Search  string `query:"search"`
	Type    string `query:"type"`
	OwnerID string `query:"owner"`

	// set by the service: restricts the results to objects visible to this user
	VisibleTo string `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Type = core.CleanString(qf.Type, true /* lower */)
	qf.OwnerID = core.CleanString(qf.OwnerID)
}

// MatchTemplate reports whether t passes every set field of the filter.
func (qf *QueryFilter) MatchTemplate(t Template) bool {
	if qf.Search != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(qf.Search)) {
		return false
	}
	if qf.Type != "" && t.Type != qf.Type {
		return false
	}
	return qf.matchOwnership(t.OwnerID, t.Sharing)
}

// MatchItem reports whether it passes every set field of the filter; Type matches the classification.
func (qf *QueryFilter) MatchItem(it Item) bool {
	if qf.Search != "" && !strings.Contains(strings.ToLower(it.Text), strings.ToLower(qf.Search)) {
		return false
	}
	if qf.Type != "" && it.Classification != qf.Type {
		return false
	}
	return qf.matchOwnership(it.OwnerID, it.Sharing)
}

func (qf *QueryFilter) matchOwnership(ownerID, sharing string) bool {
	if qf.OwnerID != "" && ownerID != qf.OwnerID {
		return false
	}
	if qf.VisibleTo != "" && ownerID != qf.VisibleTo && !core.IsShared(sharing) {
		return false
	}
	return true
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
