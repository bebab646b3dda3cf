package user

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("user")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, user User) (User, error)
		QueryAllUsers(ctx context.Context) ([]User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByUsername(ctx context.Context, username string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		GetUserByUsernameOrEmail(ctx context.Context, username string) (User, error)
		// FilterUsers applies AND operation on available QueryFilter fields.
		FilterUsers(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		UpdateUser(ctx context.Context, user User, isActive *bool) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error
	}

	Service interface {
		CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		QueryAll(ctx context.Context) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByUsername(ctx context.Context, uname string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		SetPassword(ctx context.Context, usr User, pwd string) error
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
		Delete(ctx context.Context, ids ...string) error
	}

	service struct {
		conf    *core.Config
		repo    Repository
		mailSvc core.EmailService
		tokens  tokenGenerator
	}
)

var _ Service = (*service)(nil)

func NewService(conf *core.Config, repo Repository, mailSvc core.EmailService) Service {
	return newService(conf, repo, mailSvc)
}

func newService(conf *core.Config, repo Repository, mailSvc core.EmailService) *service {
	return &service{
		conf:    conf,
		repo:    repo,
		mailSvc: mailSvc,
		tokens:  newTokenGenerator(conf),
	}
}

func (svc *service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, exclUsers...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: errors.Cause(err).Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := core.Now()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) QueryAll(ctx context.Context) ([]User, error) {
	return svc.repo.QueryAllUsers(ctx)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsername(ctx, core.CleanString(uname, true /* lower */))
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsernameOrEmail(ctx, core.CleanString(uname, true /* lower */))
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	return svc.repo.FilterUsers(ctx, *filter, ordering...)
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	usr.UpdatedAt = core.Now()
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	return svc.repo.UpdateUser(ctx, usr, uu.IsActive)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = core.Now()
	return svc.repo.UpdateUser(ctx, usr, nil)
}

func (svc *service) SetPassword(ctx context.Context, usr User, pwd string) error {
	if err := usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = core.Now()
	_, err := svc.repo.UpdateUser(ctx, usr, nil)
	return err
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	msg, err := svc.passwordResetMessage(usr)
	if err != nil {
		return err
	}
	go svc.mailSvc.SendMessages(msg)
	return nil
}

func (svc *service) passwordResetMessage(usr User) (*core.EmailMessage, error) {
	token, err := svc.tokens.makeToken(usr)
	if err != nil {
		return nil, errors.Wrap(err, "making password reset token")
	}
	body := fmt.Sprintf(
		"Hello %s,\n\n"+
			"You're receiving this email because you requested a password reset for your account at %s.\n\n"+
			"Please go to the following page and choose a new password:\n\n%s\n\n"+
			"If you did not make this request, you can safely ignore this email.",
		usr.Name, svc.conf.AppName, svc.conf.PasswordResetURL(EncodeUID(usr), token),
	)
	msg := &core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: fmt.Sprintf("Password reset on %s", svc.conf.AppName),
		BodyStr: body,
	}
	if err := msg.Render(); err != nil {
		return nil, errors.Wrap(err, "rendering password reset email")
	}
	return msg, nil
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	invalid := core.NewValidationError(errInvalidToken, core.FieldError{Field: "token", Error: "invalid or expired token"})

	id, err := decodeUID(data.UID)
	if err != nil {
		return invalid
	}
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return invalid
		}
		return err
	}
	if err := svc.tokens.verifyToken(usr, data.Token); err != nil {
		return invalid
	}
	return svc.SetPassword(ctx, usr, data.Password)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}
