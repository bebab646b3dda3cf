package notification

import (
	"bytes"
	"strings"
	texttmpl "text/template"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
)

// Email types
const (
	TypeAvailable = evaluation.EmailAvailable
	TypeReminder  = evaluation.EmailReminder
)

var Types = []string{TypeAvailable, TypeReminder}

// builtin templates, used when no default was stored for a type
var builtins = map[string]EmailTemplate{
	TypeAvailable: {
		Type:    TypeAvailable,
		Subject: "{{.EvalTitle}} is now available",
		Message: "Hello {{.UserName}},\n\n" +
			"The evaluation \"{{.EvalTitle}}\" for {{.GroupTitle}} is now open" +
			"{{if .EvalDueDate}} until {{.EvalDueDate}}{{end}}.\n\n" +
			"Please take it here: {{.EvalURL}}",
	},
	TypeReminder: {
		Type:    TypeReminder,
		Subject: "Reminder: {{.EvalTitle}} is waiting for your response",
		Message: "Hello {{.UserName}},\n\n" +
			"You have not completed the evaluation \"{{.EvalTitle}}\" for {{.GroupTitle}} yet." +
			"{{if .EvalDueDate}} It closes on {{.EvalDueDate}}.{{end}}\n\n" +
			"Please take it here: {{.EvalURL}}",
	},
}

type EmailTemplate struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Type      string    `json:"type"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// MessageData holds the fields available to email templates.
type MessageData struct {
	EvalTitle     string
	EvalStartDate string
	EvalDueDate   string
	EvalURL       string
	GroupTitle    string
	UserName      string
}

var sampleData = MessageData{
	EvalTitle:     "Sample evaluation",
	EvalStartDate: "Mon, 02 Jan 2006 15:04 UTC",
	EvalDueDate:   "Mon, 09 Jan 2006 15:04 UTC",
	EvalURL:       "http://localhost/evaluations/1/take",
	GroupTitle:    "Sample course",
	UserName:      "Sample Student",
}

func render(name, text string, data MessageData) (string, error) {
	tmpl, err := texttmpl.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Render fills the subject and the message of et with data.
func (et EmailTemplate) Render(data MessageData) (string, string, error) {
	subject, err := render("subject", et.Subject, data)
	if err != nil {
		return "", "", err
	}
	message, err := render("message", et.Message, data)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(subject), message, nil
}

// checkTemplates reports subjects and messages that cannot be rendered.
func checkTemplates(subject, message string) error {
	var fldErrs []core.FieldError
	if _, err := render("subject", subject, sampleData); err != nil {
		fldErrs = append(fldErrs, core.FieldError{Field: "subject", Error: err.Error()})
	}
	if _, err := render("message", message, sampleData); err != nil {
		fldErrs = append(fldErrs, core.FieldError{Field: "message", Error: err.Error()})
	}
	if len(fldErrs) > 0 {
		return core.NewValidationError(nil, fldErrs...)
	}
	return nil
}

type NewEmailTemplate struct {
	Type      string `json:"type" validate:"required,emailtype"`
	Subject   string `json:"subject" validate:"required,notblank"`
	Message   string `json:"message" validate:"required,notblank"`
	IsDefault bool   `json:"is_default"`
}

func (net *NewEmailTemplate) Validate(validate *validator.Validate) error {
	net.Type = core.CleanString(net.Type, true)
	net.Subject = core.CleanString(net.Subject)
	net.Message = strings.TrimSpace(net.Message)
	if err := validate.Struct(net); err != nil {
		return err
	}
	return checkTemplates(net.Subject, net.Message)
}

type UpdateEmailTemplate struct {
	Subject   string `json:"subject" validate:"omitempty,notblank"`
	Message   string `json:"message" validate:"omitempty,notblank"`
	IsDefault *bool  `json:"is_default"`
}

func (uet *UpdateEmailTemplate) Validate(orig EmailTemplate, validate *validator.Validate) error {
	if subject := core.CleanString(uet.Subject); subject != "" {
		uet.Subject = subject
	} else {
		uet.Subject = orig.Subject
	}
	if message := strings.TrimSpace(uet.Message); message != "" {
		uet.Message = message
	} else {
		uet.Message = orig.Message
	}
	if err := validate.Struct(uet); err != nil {
		return err
	}
	return checkTemplates(uet.Subject, uet.Message)
}

type QueryFilter struct {
	Type    string `query:"type"`
	OwnerID string `query:"owner"`
}

func (qf *QueryFilter) Clean() {
	qf.Type = core.CleanString(qf.Type, true /* lower */)
	qf.OwnerID = core.CleanString(qf.OwnerID)
}

// Match reports whether et passes every set field of the filter.
func (qf *QueryFilter) Match(et EmailTemplate) bool {
	if qf.Type != "" && et.Type != qf.Type {
		return false
	}
	if qf.OwnerID != "" && et.OwnerID != qf.OwnerID {
		return false
	}
	return true
}

// Notify requests notifications of the given type for an evaluation.
type Notify struct {
	Type string `json:"type" validate:"required,emailtype"`
}
