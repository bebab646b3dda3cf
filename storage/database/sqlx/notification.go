package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/notification"
)

const emailTemplateColumns = `id, owner_id, type, subject, message, is_default, created_at, updated_at`

var emailTemplateOrderColumns = map[string]string{
	"type":       "type",
	"subject":    "subject",
	"created_at": "created_at",
}

type emailTemplateRow struct {
	ID        string    `db:"id"`
	OwnerID   string    `db:"owner_id"`
	Type      string    `db:"type"`
	Subject   string    `db:"subject"`
	Message   string    `db:"message"`
	IsDefault bool      `db:"is_default"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r emailTemplateRow) emailTemplate() notification.EmailTemplate {
	return notification.EmailTemplate{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Type:      r.Type,
		Subject:   r.Subject,
		Message:   r.Message,
		IsDefault: r.IsDefault,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type emailTemplateRepository struct {
	base
}

var _ notification.Repository = (*emailTemplateRepository)(nil)

func NewEmailTemplateRepository(db *sqlx.DB) notification.Repository {
	return &emailTemplateRepository{base{db: db}}
}

func (repo *emailTemplateRepository) CreateEmailTemplate(ctx context.Context, et notification.EmailTemplate) (notification.EmailTemplate, error) {
	et.ID = uuid.New().String()
	_, err := repo.exec(ctx).ExecContext(ctx,
		`INSERT INTO email_template (`+emailTemplateColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		et.ID, et.OwnerID, et.Type, et.Subject, et.Message, et.IsDefault, et.CreatedAt.UTC(), et.UpdatedAt.UTC())
	if err != nil {
		return notification.EmailTemplate{}, errors.Wrap(err, "inserting email template")
	}
	return et, nil
}

func (repo *emailTemplateRepository) GetEmailTemplateByID(ctx context.Context, id string) (notification.EmailTemplate, error) {
	if !isUUID(id) {
		return notification.EmailTemplate{}, notification.ErrNotFound
	}
	var row emailTemplateRow
	q := `SELECT ` + emailTemplateColumns + ` FROM email_template WHERE id = $1`
	if err := repo.get(ctx, &row, notification.ErrNotFound, q, id); err != nil {
		return notification.EmailTemplate{}, errors.Wrap(err, "finding email template by ID")
	}
	return row.emailTemplate(), nil
}

func (repo *emailTemplateRepository) FilterEmailTemplates(ctx context.Context, filter notification.QueryFilter, ordering ...core.DBOrdering) ([]notification.EmailTemplate, error) {
	var w where
	if filter.Type != "" {
		w.add("type = ?", filter.Type)
	}
	if filter.OwnerID != "" {
		w.add("owner_id::text = ?", filter.OwnerID)
	}

	var rows []emailTemplateRow
	q := w.query(`SELECT `+emailTemplateColumns+` FROM email_template`, orderBy(ordering, emailTemplateOrderColumns, "created_at, id"))
	if err := repo.exec(ctx).SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying email templates")
	}
	ets := make([]notification.EmailTemplate, 0, len(rows))
	for _, r := range rows {
		ets = append(ets, r.emailTemplate())
	}
	return ets, nil
}

func (repo *emailTemplateRepository) UpdateEmailTemplate(ctx context.Context, et notification.EmailTemplate) (notification.EmailTemplate, error) {
	err := repo.execOne(ctx, notification.ErrNotFound,
		`UPDATE email_template SET subject = $1, message = $2, is_default = $3, updated_at = $4 WHERE id = $5`,
		et.Subject, et.Message, et.IsDefault, et.UpdatedAt.UTC(), et.ID)
	if err != nil {
		return notification.EmailTemplate{}, errors.Wrap(err, "updating email template")
	}
	return et, nil
}

func (repo *emailTemplateRepository) DeleteEmailTemplate(ctx context.Context, id string) error {
	_, err := repo.exec(ctx).ExecContext(ctx, `DELETE FROM email_template WHERE id = $1`, id)
	return errors.Wrap(err, "deleting email template")
}

func (repo *emailTemplateRepository) GetDefaultEmailTemplate(ctx context.Context, typ string) (notification.EmailTemplate, error) {
	var row emailTemplateRow
	q := `SELECT ` + emailTemplateColumns + ` FROM email_template WHERE type = $1 AND is_default`
	if err := repo.get(ctx, &row, notification.ErrNotFound, q, typ); err != nil {
		return notification.EmailTemplate{}, errors.Wrap(err, "finding default email template")
	}
	return row.emailTemplate(), nil
}

func (repo *emailTemplateRepository) UnsetDefaultEmailTemplate(ctx context.Context, typ string) error {
	_, err := repo.exec(ctx).ExecContext(ctx,
		`UPDATE email_template SET is_default = false WHERE type = $1 AND is_default`, typ)
	return errors.Wrap(err, "unsetting default email template")
}
