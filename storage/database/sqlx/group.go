package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/group"
)

const (
	groupColumns      = `id, title, type, created_at, updated_at`
	membershipColumns = `group_id, user_id, role, created_at`
)

var groupOrderColumns = map[string]string{
	"title":      "LOWER(title)",
	"type":       "type",
	"created_at": "created_at",
}

type groupRow struct {
	ID        string    `db:"id"`
	Title     string    `db:"title"`
	Type      string    `db:"type"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r groupRow) group() group.Group {
	return group.Group{
		ID:        r.ID,
		Title:     r.Title,
		Type:      r.Type,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func groupsFromRows(rows []groupRow) []group.Group {
	grps := make([]group.Group, 0, len(rows))
	for _, r := range rows {
		grps = append(grps, r.group())
	}
	return grps
}

type membershipRow struct {
	GroupID   string    `db:"group_id"`
	UserID    string    `db:"user_id"`
	Role      string    `db:"role"`
	CreatedAt time.Time `db:"created_at"`
}

func (r membershipRow) membership() group.Membership {
	return group.Membership{GroupID: r.GroupID, UserID: r.UserID, Role: r.Role, CreatedAt: r.CreatedAt.UTC()}
}

type groupRepository struct {
	base
}

var _ group.Repository = (*groupRepository)(nil)

func NewGroupRepository(db *sqlx.DB) group.Repository {
	return &groupRepository{base{db: db}}
}

func (repo *groupRepository) CreateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	grp.ID = uuid.New().String()
	_, err := repo.exec(ctx).ExecContext(ctx,
		`INSERT INTO "group" (`+groupColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		grp.ID, grp.Title, grp.Type, grp.CreatedAt.UTC(), grp.UpdatedAt.UTC())
	if err != nil {
		return group.Group{}, errors.Wrap(err, "inserting group")
	}
	return grp, nil
}

func (repo *groupRepository) GetGroupByID(ctx context.Context, id string) (group.Group, error) {
	if !isUUID(id) {
		return group.Group{}, group.ErrNotFound
	}
	var row groupRow
	if err := repo.get(ctx, &row, group.ErrNotFound, `SELECT `+groupColumns+` FROM "group" WHERE id = $1`, id); err != nil {
		return group.Group{}, errors.Wrap(err, "finding group by ID")
	}
	return row.group(), nil
}

func (repo *groupRepository) GetGroupsByID(ctx context.Context, ids ...string) ([]group.Group, error) {
	var rows []groupRow
	q := `SELECT ` + groupColumns + ` FROM "group" WHERE id = ANY($1) ORDER BY created_at, id`
	if err := repo.exec(ctx).SelectContext(ctx, &rows, q, pq.Array(uuids(ids))); err != nil {
		return nil, errors.Wrap(err, "finding groups by ID")
	}
	return groupsFromRows(rows), nil
}

func (repo *groupRepository) FilterGroups(ctx context.Context, filter group.QueryFilter, ordering ...core.DBOrdering) ([]group.Group, error) {
	var w where
	if filter.Search != "" {
		w.add("title ILIKE ?", likePattern(filter.Search))
	}
	if filter.Type != "" {
		w.add("type = ?", filter.Type)
	}

	var rows []groupRow
	q := w.query(`SELECT `+groupColumns+` FROM "group"`, orderBy(ordering, groupOrderColumns, "created_at, id"))
	if err := repo.exec(ctx).SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying groups")
	}
	return groupsFromRows(rows), nil
}

func (repo *groupRepository) UpdateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	err := repo.execOne(ctx, group.ErrNotFound,
		`UPDATE "group" SET title = $1, type = $2, updated_at = $3 WHERE id = $4`,
		grp.Title, grp.Type, grp.UpdatedAt.UTC(), grp.ID)
	if err != nil {
		return group.Group{}, errors.Wrap(err, "updating group")
	}
	return grp, nil
}

func (repo *groupRepository) DeleteGroup(ctx context.Context, id string) error {
	_, err := repo.exec(ctx).ExecContext(ctx, `DELETE FROM "group" WHERE id = $1`, id)
	return errors.Wrap(err, "deleting group")
}

func (repo *groupRepository) SaveMembership(ctx context.Context, m group.Membership) (group.Membership, error) {
	var row membershipRow
	q := `INSERT INTO membership (` + membershipColumns + `) VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id, user_id) DO UPDATE SET role = EXCLUDED.role
		RETURNING ` + membershipColumns
	if err := repo.exec(ctx).GetContext(ctx, &row, q, m.GroupID, m.UserID, m.Role, m.CreatedAt.UTC()); err != nil {
		return group.Membership{}, errors.Wrap(err, "saving membership")
	}
	return row.membership(), nil
}

func (repo *groupRepository) GetMembership(ctx context.Context, groupID, userID string) (group.Membership, error) {
	if !isUUID(groupID) || !isUUID(userID) {
		return group.Membership{}, group.ErrNotMember
	}
	var row membershipRow
	q := `SELECT ` + membershipColumns + ` FROM membership WHERE group_id = $1 AND user_id = $2`
	if err := repo.get(ctx, &row, group.ErrNotMember, q, groupID, userID); err != nil {
		return group.Membership{}, errors.Wrap(err, "finding membership")
	}
	return row.membership(), nil
}

func (repo *groupRepository) DeleteMembership(ctx context.Context, groupID, userID string) error {
	_, err := repo.exec(ctx).ExecContext(ctx, `DELETE FROM membership WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	return errors.Wrap(err, "deleting membership")
}

func membershipsWhere(groupID, role string) where {
	var w where
	w.add("group_id = ?", groupID)
	if role != "" {
		w.add("role = ?", role)
	}
	return w
}

func (repo *groupRepository) ListMemberships(ctx context.Context, groupID, role string) ([]group.Membership, error) {
	if !isUUID(groupID) {
		return nil, nil
	}
	w := membershipsWhere(groupID, role)
	var rows []membershipRow
	q := w.query(`SELECT `+membershipColumns+` FROM membership`, "created_at, user_id")
	if err := repo.exec(ctx).SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "listing memberships")
	}
	ms := make([]group.Membership, 0, len(rows))
	for _, r := range rows {
		ms = append(ms, r.membership())
	}
	return ms, nil
}

func (repo *groupRepository) CountMemberships(ctx context.Context, groupID, role string) (int, error) {
	if !isUUID(groupID) {
		return 0, nil
	}
	w := membershipsWhere(groupID, role)
	n, err := repo.count(ctx, w.query(`SELECT COUNT(*) FROM membership`, ""), w.args...)
	return n, errors.Wrap(err, "counting memberships")
}

func (repo *groupRepository) ListGroupsForUser(ctx context.Context, userID, role string) ([]group.Group, error) {
	if !isUUID(userID) {
		return nil, nil
	}
	var w where
	w.add("m.user_id = ?", userID)
	if role != "" {
		w.add("m.role = ?", role)
	}
	var rows []groupRow
	q := w.query(
		`SELECT g.id, g.title, g.type, g.created_at, g.updated_at FROM "group" g JOIN membership m ON m.group_id = g.id`,
		"g.created_at, g.id",
	)
	if err := repo.exec(ctx).SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "listing groups for user")
	}
	return groupsFromRows(rows), nil
}
