package notification

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/group"
	"github.com/trezcool/tathmini/core/response"
	"github.com/trezcool/tathmini/core/user"
)

const dateLayout = "Mon, 02 Jan 2006 15:04 MST"

var (
	// errors
	ErrNotFound = core.NewNotFoundError("email template")

	errNoCreate      = core.NewPermissionError("only admins and instructors can create email templates")
	errNoControl     = core.NewPermissionError("only the owner or an admin can change this email template")
	errDefaultAdmin  = core.NewPermissionError("only admins can set default email templates")
	errNoNotify      = core.NewPermissionError("only the owner or an admin can notify the takers of this evaluation")
	errTemplateInUse = core.NewStateError("this email template is used by evaluations and cannot be deleted")
	errNotOpen       = core.NewStateError("notifications can only be sent for open evaluations")
)

type (
	Repository interface {
		CreateEmailTemplate(ctx context.Context, et EmailTemplate) (EmailTemplate, error)
		GetEmailTemplateByID(ctx context.Context, id string) (EmailTemplate, error)
		FilterEmailTemplates(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]EmailTemplate, error)
		UpdateEmailTemplate(ctx context.Context, et EmailTemplate) (EmailTemplate, error)
		DeleteEmailTemplate(ctx context.Context, id string) error
		// GetDefaultEmailTemplate returns ErrNotFound when no default is stored for typ.
		GetDefaultEmailTemplate(ctx context.Context, typ string) (EmailTemplate, error)
		UnsetDefaultEmailTemplate(ctx context.Context, typ string) error
	}

	EvaluationCounter interface {
		CountEvaluationsByEmailTemplate(ctx context.Context, emailTemplateID string) (int, error)
	}

	Service interface {
		Create(ctx context.Context, actor user.User, net NewEmailTemplate) (EmailTemplate, error)
		GetByID(ctx context.Context, id string) (EmailTemplate, error)
		Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]EmailTemplate, error)
		Update(ctx context.Context, actor user.User, id string, uet UpdateEmailTemplate) (EmailTemplate, error)
		Delete(ctx context.Context, actor user.User, id string) error
		CanControl(actor user.User, et EmailTemplate) bool
		// DefaultFor returns the stored default template of typ, or the builtin one.
		DefaultFor(ctx context.Context, typ string) (EmailTemplate, error)

		// Notify sends the typ notifications of an evaluation on behalf of actor.
		Notify(ctx context.Context, actor user.User, evalID, typ string) (int, error)
		// SendAvailable tells the students of the assigned groups that the evaluation is open.
		SendAvailable(ctx context.Context, evalID string) (int, error)
		// SendReminders reminds the students who have not completed the evaluation yet.
		SendReminders(ctx context.Context, evalID string) (int, error)
	}

	Deps struct {
		Tx          core.Transactor
		Repo        Repository
		Evals       evaluation.Service
		EvalCounter EvaluationCounter
		Groups      group.Service
		Users       group.UserGetter
		Responses   response.Repository
		Mail        core.EmailService
		Logger      core.Logger
	}

	service struct {
		Deps
		conf *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(conf *core.Config, deps Deps) Service {
	return &service{Deps: deps, conf: conf}
}

// EvaluationTemplates gives the evaluation service read access to the stored email templates.
type EvaluationTemplates struct {
	Repo Repository
}

var _ evaluation.EmailTemplateGetter = EvaluationTemplates{}

func (et EvaluationTemplates) GetEmailTemplateRef(ctx context.Context, id string) (evaluation.EmailTemplateRef, error) {
	t, err := et.Repo.GetEmailTemplateByID(ctx, id)
	if err != nil {
		return evaluation.EmailTemplateRef{}, err
	}
	return evaluation.EmailTemplateRef{ID: t.ID, OwnerID: t.OwnerID, Type: t.Type, IsDefault: t.IsDefault}, nil
}

func (svc *service) CanControl(actor user.User, et EmailTemplate) bool {
	return actor.IsAdmin() || (actor.ID != "" && actor.ID == et.OwnerID)
}

// saveDefault stores et, making it the only default of its type when needed.
func (svc *service) saveDefault(ctx context.Context, et EmailTemplate, save func(context.Context, EmailTemplate) (EmailTemplate, error)) (EmailTemplate, error) {
	if !et.IsDefault {
		return save(ctx, et)
	}
	var saved EmailTemplate
	err := svc.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := svc.Repo.UnsetDefaultEmailTemplate(ctx, et.Type); err != nil {
			return errors.Wrap(err, "unsetting default email template")
		}
		var err error
		saved, err = save(ctx, et)
		return err
	})
	return saved, err
}

func (svc *service) Create(ctx context.Context, actor user.User, net NewEmailTemplate) (EmailTemplate, error) {
	if !(actor.IsAdmin() || actor.IsInstructor()) {
		return EmailTemplate{}, errNoCreate
	}
	if net.IsDefault && !actor.IsAdmin() {
		return EmailTemplate{}, errDefaultAdmin
	}
	now := core.Now()
	et := EmailTemplate{
		OwnerID:   actor.ID,
		Type:      net.Type,
		Subject:   net.Subject,
		Message:   net.Message,
		IsDefault: net.IsDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.saveDefault(ctx, et, svc.Repo.CreateEmailTemplate)
}

func (svc *service) GetByID(ctx context.Context, id string) (EmailTemplate, error) {
	return svc.Repo.GetEmailTemplateByID(ctx, id)
}

func (svc *service) Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]EmailTemplate, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	ets, err := svc.Repo.FilterEmailTemplates(ctx, *filter, ordering...)
	if err != nil || actor.IsAdmin() {
		return ets, err
	}
	visible := make([]EmailTemplate, 0, len(ets))
	for _, et := range ets {
		if et.IsDefault || et.OwnerID == actor.ID {
			visible = append(visible, et)
		}
	}
	return visible, nil
}

func (svc *service) Update(ctx context.Context, actor user.User, id string, uet UpdateEmailTemplate) (EmailTemplate, error) {
	et, err := svc.Repo.GetEmailTemplateByID(ctx, id)
	if err != nil {
		return EmailTemplate{}, err
	}
	if !svc.CanControl(actor, et) {
		return EmailTemplate{}, errNoControl
	}
	if uet.IsDefault != nil && *uet.IsDefault != et.IsDefault {
		if !actor.IsAdmin() {
			return EmailTemplate{}, errDefaultAdmin
		}
		et.IsDefault = *uet.IsDefault
	}
	et.Subject = uet.Subject
	et.Message = uet.Message
	et.UpdatedAt = core.Now()
	return svc.saveDefault(ctx, et, svc.Repo.UpdateEmailTemplate)
}

func (svc *service) Delete(ctx context.Context, actor user.User, id string) error {
	et, err := svc.Repo.GetEmailTemplateByID(ctx, id)
	if err != nil {
		return err
	}
	if !svc.CanControl(actor, et) {
		return errNoControl
	}
	count, err := svc.EvalCounter.CountEvaluationsByEmailTemplate(ctx, id)
	if err != nil {
		return errors.Wrap(err, "counting evaluations by email template")
	}
	if count > 0 {
		return errTemplateInUse
	}
	return svc.Repo.DeleteEmailTemplate(ctx, id)
}

func (svc *service) DefaultFor(ctx context.Context, typ string) (EmailTemplate, error) {
	et, err := svc.Repo.GetDefaultEmailTemplate(ctx, typ)
	if err == nil {
		return et, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return EmailTemplate{}, errors.Wrap(err, "finding default email template")
	}
	builtin, ok := builtins[typ]
	if !ok {
		return EmailTemplate{}, ErrNotFound
	}
	return builtin, nil
}

// templateFor resolves the email template of typ chosen for e.
func (svc *service) templateFor(ctx context.Context, e evaluation.Evaluation, typ string) (EmailTemplate, error) {
	id := e.AvailableEmailTemplateID
	if typ == TypeReminder {
		id = e.ReminderEmailTemplateID
	}
	if id != "" {
		et, err := svc.Repo.GetEmailTemplateByID(ctx, id)
		switch {
		case err == nil && et.Type == typ:
			return et, nil
		case err == nil, errors.Cause(err) == ErrNotFound:
			svc.Logger.Info(fmt.Sprintf("evaluation %s: email template %s unusable, falling back to default", e.ID, id))
		default:
			return EmailTemplate{}, errors.Wrap(err, "finding email template")
		}
	}
	return svc.DefaultFor(ctx, typ)
}

func (svc *service) Notify(ctx context.Context, actor user.User, evalID, typ string) (int, error) {
	e, err := svc.Evals.GetByID(ctx, evalID)
	if err != nil {
		return 0, err
	}
	if !svc.Evals.CanControl(actor, e) {
		return 0, errNoNotify
	}
	if typ == TypeReminder {
		return svc.SendReminders(ctx, evalID)
	}
	return svc.SendAvailable(ctx, evalID)
}

func (svc *service) SendAvailable(ctx context.Context, evalID string) (int, error) {
	return svc.send(ctx, evalID, TypeAvailable)
}

func (svc *service) SendReminders(ctx context.Context, evalID string) (int, error) {
	return svc.send(ctx, evalID, TypeReminder)
}

func (svc *service) send(ctx context.Context, evalID, typ string) (int, error) {
	e, err := svc.Evals.GetByID(ctx, evalID)
	if err != nil {
		return 0, err
	}
	if !evaluation.IsOpen(e.State) {
		return 0, errNotOpen
	}
	et, err := svc.templateFor(ctx, e, typ)
	if err != nil {
		return 0, err
	}
	ags, err := svc.Evals.ListAssignGroups(ctx, e.ID)
	if err != nil {
		return 0, errors.Wrap(err, "listing assign groups")
	}

	var msgs []*core.EmailMessage
	for _, ag := range ags {
		if !ag.InstructorApproval {
			continue
		}
		grpMsgs, err := svc.groupMessages(ctx, e, ag.GroupID, et)
		if err != nil {
			return 0, err
		}
		msgs = append(msgs, grpMsgs...)
	}
	if len(msgs) > 0 {
		svc.Mail.SendMessages(msgs...)
	}
	return len(msgs), nil
}

func (svc *service) groupMessages(ctx context.Context, e evaluation.Evaluation, groupID string, et EmailTemplate) ([]*core.EmailMessage, error) {
	grp, err := svc.Groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, errors.Wrap(err, "finding group by ID")
	}
	members, err := svc.Groups.Members(ctx, groupID, group.RoleStudent)
	if err != nil {
		return nil, errors.Wrap(err, "listing group students")
	}

	data := MessageData{
		EvalTitle:     e.Title,
		EvalStartDate: e.StartDate.Format(dateLayout),
		EvalURL:       svc.conf.EvaluationURL(e.ID, groupID),
		GroupTitle:    grp.Title,
	}
	if e.DueDate != nil {
		data.EvalDueDate = e.DueDate.Format(dateLayout)
	}

	var msgs []*core.EmailMessage
	for _, m := range members {
		usr, err := svc.Users.GetByID(ctx, m.UserID)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				continue
			}
			return nil, errors.Wrap(err, "finding student by ID")
		}
		if !usr.IsActive || usr.Email == "" {
			continue
		}
		if et.Type == TypeReminder {
			done, err := svc.hasCompleted(ctx, e.ID, groupID, usr.ID)
			if err != nil {
				return nil, err
			}
			if done {
				continue
			}
		}

		data.UserName = usr.Name
		subject, body, err := et.Render(data)
		if err != nil {
			return nil, errors.Wrap(err, "rendering email template")
		}
		msg := &core.EmailMessage{
			To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject: subject,
			BodyStr: body,
		}
		if err := msg.Render(); err != nil {
			return nil, errors.Wrap(err, "rendering email")
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (svc *service) hasCompleted(ctx context.Context, evalID, groupID, userID string) (bool, error) {
	resp, err := svc.Responses.GetResponseForUser(ctx, evalID, groupID, userID)
	if err != nil {
		if errors.Cause(err) == response.ErrNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "finding user response")
	}
	return resp.IsComplete(), nil
}
