package group

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tathmini/core"
)

// Group types
const (
	TypeSite    = "site"
	TypeSection = "section"
)

// Member roles
const (
	RoleInstructor = "instructor"
	RoleStudent    = "student"
)

var (
	Types       = []string{TypeSite, TypeSection}
	MemberRoles = []string{RoleInstructor, RoleStudent}
)

// Group is an evaluation context: a course site or one of its sections.
type Group struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type Membership struct {
	GroupID   string    `json:"group_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type NewGroup struct {
	Title string `json:"title" validate:"required,notblank"`
	Type  string `json:"type" validate:"required,grouptype"`
}

func (ng *NewGroup) Validate(validate *validator.Validate) error {
	ng.Title = core.CleanString(ng.Title)
	ng.Type = core.CleanString(ng.Type, true /* lower */)
	return validate.Struct(ng)
}

type UpdateGroup struct {
	Title string `json:"title" validate:"omitempty,notblank"`
	Type  string `json:"type" validate:"omitempty,grouptype"`
}

func (ug *UpdateGroup) Validate(orig Group, validate *validator.Validate) error {
	if title := core.CleanString(ug.Title); title != "" {
		ug.Title = title
	} else {
		ug.Title = orig.Title
	}
	if typ := core.CleanString(ug.Type, true /* lower */); typ != "" {
		ug.Type = typ
	} else {
		ug.Type = orig.Type
	}
	return validate.Struct(ug)
}

type NewMember struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required,memberrole"`
}

func (nm *NewMember) Validate(validate *validator.Validate) error {
	nm.Role = core.CleanString(nm.Role, true /* lower */)
	return validate.Struct(nm)
}

type QueryFilter struct {
	Search string `query:"search"`
	Type   string `query:"type"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Type = core.CleanString(qf.Type, true /* lower */)
}

// Match reports whether grp passes every set field of the filter.
func (qf *QueryFilter) Match(grp Group) bool {
	if qf.Search != "" && !strings.Contains(strings.ToLower(grp.Title), strings.ToLower(qf.Search)) {
		return false
	}
	return qf.Type == "" || grp.Type == qf.Type
}
