package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/scale"
)

const scaleColumns = `id, owner_id, title, options, ideal, mode, sharing, expert, locked, created_at, updated_at`

var scaleOrderColumns = map[string]string{
	"title":      "LOWER(title)",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

type scaleRow struct {
	ID        string         `db:"id"`
	OwnerID   string         `db:"owner_id"`
	Title     string         `db:"title"`
	Options   pq.StringArray `db:"options"`
	Ideal     string         `db:"ideal"`
	Mode      string         `db:"mode"`
	Sharing   string         `db:"sharing"`
	Expert    bool           `db:"expert"`
	Locked    bool           `db:"locked"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func newScaleRow(s scale.Scale) scaleRow {
	return scaleRow{
		ID:        s.ID,
		OwnerID:   s.OwnerID,
		Title:     s.Title,
		Options:   s.Options,
		Ideal:     s.Ideal,
		Mode:      s.Mode,
		Sharing:   s.Sharing,
		Expert:    s.Expert,
		Locked:    s.Locked,
		CreatedAt: s.CreatedAt.UTC(),
		UpdatedAt: s.UpdatedAt.UTC(),
	}
}

func (r scaleRow) scale() scale.Scale {
	return scale.Scale{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Title:     r.Title,
		Options:   r.Options,
		Ideal:     r.Ideal,
		Mode:      r.Mode,
		Sharing:   r.Sharing,
		Expert:    r.Expert,
		Locked:    r.Locked,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func scalesFromRows(rows []scaleRow) []scale.Scale {
	scales := make([]scale.Scale, 0, len(rows))
	for _, r := range rows {
		scales = append(scales, r.scale())
	}
	return scales
}

type scaleRepository struct {
	base
}

var _ scale.Repository = (*scaleRepository)(nil)

func NewScaleRepository(db *sqlx.DB) scale.Repository {
	return &scaleRepository{base{db: db}}
}

func (repo *scaleRepository) CreateScale(ctx context.Context, s scale.Scale) (scale.Scale, error) {
	s.ID = uuid.New().String()
	q := `INSERT INTO scale (` + scaleColumns + `)
		VALUES (:id, :owner_id, :title, :options, :ideal, :mode, :sharing, :expert, :locked, :created_at, :updated_at)`
	if _, err := repo.exec(ctx).NamedExecContext(ctx, q, newScaleRow(s)); err != nil {
		return scale.Scale{}, errors.Wrap(err, "inserting scale")
	}
	return s, nil
}

func (repo *scaleRepository) GetScaleByID(ctx context.Context, id string) (scale.Scale, error) {
	if !isUUID(id) {
		return scale.Scale{}, scale.ErrNotFound
	}
	var row scaleRow
	if err := repo.get(ctx, &row, scale.ErrNotFound, `SELECT `+scaleColumns+` FROM scale WHERE id = $1`, id); err != nil {
		return scale.Scale{}, errors.Wrap(err, "finding scale by ID")
	}
	return row.scale(), nil
}

func (repo *scaleRepository) GetScalesByID(ctx context.Context, ids ...string) ([]scale.Scale, error) {
	var rows []scaleRow
	q := `SELECT ` + scaleColumns + ` FROM scale WHERE id = ANY($1) ORDER BY created_at, id`
	if err := repo.exec(ctx).SelectContext(ctx, &rows, q, pq.Array(uuids(ids))); err != nil {
		return nil, errors.Wrap(err, "finding scales by ID")
	}
	return scalesFromRows(rows), nil
}

func (repo *scaleRepository) FilterScales(ctx context.Context, filter scale.QueryFilter, ordering ...core.DBOrdering) ([]scale.Scale, error) {
	var w where
	if filter.Search != "" {
		w.add("title ILIKE ?", likePattern(filter.Search))
	}
	if filter.Mode != "" {
		w.add("mode = ?", filter.Mode)
	}
	if filter.OwnerID != "" {
		w.add("owner_id::text = ?", filter.OwnerID)
	}
	if filter.VisibleTo != "" {
		w.add("(owner_id::text = ? OR sharing = ANY(?))", filter.VisibleTo, pq.Array(sharedSharings()))
	}

	var rows []scaleRow
	q := w.query(`SELECT `+scaleColumns+` FROM scale`, orderBy(ordering, scaleOrderColumns, "created_at, id"))
	if err := repo.exec(ctx).SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying scales")
	}
	return scalesFromRows(rows), nil
}

func (repo *scaleRepository) UpdateScale(ctx context.Context, s scale.Scale) (scale.Scale, error) {
	q := `UPDATE scale SET title = $1, options = $2, ideal = $3, mode = $4, sharing = $5, expert = $6,
		locked = $7, updated_at = $8 WHERE id = $9`
	err := repo.execOne(ctx, scale.ErrNotFound, q,
		s.Title, pq.Array(s.Options), s.Ideal, s.Mode, s.Sharing, s.Expert, s.Locked, s.UpdatedAt.UTC(), s.ID)
	if err != nil {
		return scale.Scale{}, errors.Wrap(err, "updating scale")
	}
	return s, nil
}

func (repo *scaleRepository) SetScaleLocked(ctx context.Context, id string, locked bool) error {
	err := repo.execOne(ctx, scale.ErrNotFound, `UPDATE scale SET locked = $1 WHERE id = $2`, locked, id)
	return errors.Wrap(err, "locking scale")
}

func (repo *scaleRepository) DeleteScale(ctx context.Context, id string) error {
	_, err := repo.exec(ctx).ExecContext(ctx, `DELETE FROM scale WHERE id = $1`, id)
	return errors.Wrap(err, "deleting scale")
}

func (repo *scaleRepository) CountScalesByTitle(ctx context.Context, title, excludedID string) (int, error) {
	n, err := repo.count(ctx,
		`SELECT COUNT(*) FROM scale WHERE mode = $1 AND LOWER(title) = LOWER($2) AND id::text <> $3`,
		scale.ModeScale, title, excludedID)
	return n, errors.Wrap(err, "counting scales by title")
}

// sharedSharings lists the sharing levels visible to every user.
func sharedSharings() []string {
	shared := make([]string, 0, len(core.Sharings))
	for _, s := range core.Sharings {
		if core.IsShared(s) {
			shared = append(shared, s)
		}
	}
	return shared
}
