package user

import (
	"context"

	"github.com/trezcool/tathmini/core"
)

type serviceMock struct {
	*service
}

// NewServiceMock returns a Service that sends emails synchronously.
func NewServiceMock(conf *core.Config, repo Repository, mailSvc core.EmailService) Service {
	return &serviceMock{service: newService(conf, repo, mailSvc)}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
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
	// run synchronously
	svc.mailSvc.SendMessages(msg)
	return nil
}
