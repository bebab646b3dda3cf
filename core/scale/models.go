package scale

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tathmini/core"
)

// Ideal values: which end of the scale is the desired answer.
const (
	IdealLow     = "low"
	IdealHigh    = "high"
	IdealMid     = "mid"
	IdealOutside = "outside"
	IdealNone    = "none"
)

// Modes
const (
	ModeScale = "scale" // shared, reusable scale
	ModeAdhoc = "adhoc" // private to a single item
)

var (
	Ideals = []string{IdealLow, IdealHigh, IdealMid, IdealOutside, IdealNone}
	Modes  = []string{ModeScale, ModeAdhoc}
)

type Scale struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Options   []string  `json:"options"`
	Ideal     string    `json:"ideal"`
	Mode      string    `json:"mode"`
	Sharing   string    `json:"sharing"`
	Expert    bool      `json:"expert"`
	Locked    bool      `json:"locked"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// InRange reports whether idx is a valid option index.
func (s Scale) InRange(idx int) bool {
	return idx >= 0 && idx < len(s.Options)
}

type NewScale struct {
	Title   string   `json:"title" validate:"required,notblank"`
	Options []string `json:"options" validate:"required,min=2,dive,notblank"`
	Ideal   string   `json:"ideal" validate:"omitempty,scaleideal"`
	Mode    string   `json:"mode" validate:"omitempty,scalemode"`
	Sharing string   `json:"sharing" validate:"omitempty,sharing"`
	Expert  bool     `json:"expert"`
}

func (ns *NewScale) Validate(validate *validator.Validate) error {
	ns.Title = core.CleanString(ns.Title)
	ns.Options = cleanOptions(ns.Options)
	ns.Ideal = defaultString(core.CleanString(ns.Ideal, true), IdealNone)
	ns.Mode = defaultString(core.CleanString(ns.Mode, true), ModeScale)
	ns.Sharing = defaultString(core.CleanString(ns.Sharing, true), core.SharingPrivate)
	if err := validate.Struct(ns); err != nil {
		return err
	}
	return checkUniqueOptions(ns.Options)
}

type UpdateScale struct {
	Title   string   `json:"title" validate:"omitempty,notblank"`
	Options []string `json:"options" validate:"omitempty,min=2,dive,notblank"`
	Ideal   string   `json:"ideal" validate:"omitempty,scaleideal"`
	Sharing string   `json:"sharing" validate:"omitempty,sharing"`
	Expert  *bool    `json:"expert"`
}

func (us *UpdateScale) Validate(orig Scale, validate *validator.Validate) error {
	us.Title = defaultString(core.CleanString(us.Title), orig.Title)
	if us.Options != nil {
		us.Options = cleanOptions(us.Options)
	} else {
		us.Options = orig.Options
	}
	us.Ideal = defaultString(core.CleanString(us.Ideal, true), orig.Ideal)
	us.Sharing = defaultString(core.CleanString(us.Sharing, true), orig.Sharing)
	if us.Expert == nil {
		us.Expert = &orig.Expert
	}
	if err := validate.Struct(us); err != nil {
		return err
	}
	return checkUniqueOptions(us.Options)
}

type QueryFilter struct {
	Search  string `query:"search"`
	Mode    string `query:"mode"`
	OwnerID string `query:"owner"`

	// set by the service: restricts the results to scales visible to this user
	VisibleTo string `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Mode = core.CleanString(qf.Mode, true /* lower */)
	qf.OwnerID = core.CleanString(qf.OwnerID)
}

// Match reports whether s passes every set field of the filter.
func (qf *QueryFilter) Match(s Scale) bool {
	if qf.Search != "" && !strings.Contains(strings.ToLower(s.Title), strings.ToLower(qf.Search)) {
		return false
	}
	if qf.Mode != "" && s.Mode != qf.Mode {
		return false
	}
	if qf.OwnerID != "" && s.OwnerID != qf.OwnerID {
		return false
	}
	if qf.VisibleTo != "" && s.OwnerID != qf.VisibleTo && !core.IsShared(s.Sharing) {
		return false
	}
	return true
}

func cleanOptions(opts []string) []string {
	cleaned := make([]string, len(opts))
	for i, opt := range opts {
		cleaned[i] = core.CleanString(opt)
	}
	return cleaned
}

func checkUniqueOptions(opts []string) error {
	seen := make(map[string]struct{}, len(opts))
	for _, opt := range opts {
		key := strings.ToLower(opt)
		if _, ok := seen[key]; ok {
			return core.NewFieldError("options", "scale options must be unique")
		}
		seen[key] = struct{}{}
	}
	return nil
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
