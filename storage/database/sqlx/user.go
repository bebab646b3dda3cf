package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/user"
)

const userColumns = `id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login`

var userOrderColumns = map[string]string{
	"name":       "name",
	"username":   "username",
	"email":      "email",
	"created_at": "created_at",
	"last_login": "last_login",
}

type userRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func newUserRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     usr.Username,
		Email:        usr.Email,
		IsActive:     usr.IsActive,
		Roles:        usr.Roles,
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (r userRow) user() user.User {
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username,
		Email:        r.Email,
		IsActive:     r.IsActive,
		Roles:        r.Roles,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    r.LastLogin.Time.UTC(),
	}
}

func usersFromRows(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users
}

type userRepository struct {
	base
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{base{db: db}}
}

func (repo *userRepository) getUser(ctx context.Context, cond string, args ...interface{}) (user.User, error) {
	var row userRow
	q := sqlx.Rebind(sqlx.DOLLAR, `SELECT `+userColumns+` FROM "user" WHERE `+cond+` LIMIT 1`)
	if err := repo.get(ctx, &row, user.ErrNotFound, q, args...); err != nil {
		return user.User{}, err
	}
	return row.user(), nil
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	var w where
	w.add("(username = ? OR email = ?)", username, email)
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, usr := range excludedUsers {
			ids = append(ids, usr.ID)
		}
		w.add("NOT (id = ANY(?))", pq.Array(ids))
	}

	var rows []userRow
	if err := repo.exec(ctx).SelectContext(ctx, &rows, w.query(`SELECT `+userColumns+` FROM "user"`, ""), w.args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, r := range rows {
		if r.Username == username {
			return user.ErrUsernameExists
		}
	}
	if len(rows) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	row := newUserRow(usr)
	q := `INSERT INTO "user" (` + userColumns + `)
		VALUES (:id, :name, :username, :email, :is_active, :roles, :password_hash, :created_at, :updated_at, :last_login)`
	if _, err := repo.exec(ctx).NamedExecContext(ctx, q, row); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return row.user(), nil
}

func (repo *userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	return repo.FilterUsers(ctx, user.QueryFilter{})
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	if !isUUID(id) {
		return user.User{}, user.ErrNotFound
	}
	usr, err := repo.getUser(ctx, "id = ?", id)
	return usr, errors.Wrap(err, "finding user by ID")
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	usr, err := repo.getUser(ctx, "username = ?", username)
	return usr, errors.Wrap(err, "finding user by username")
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	usr, err := repo.getUser(ctx, "email = ?", email)
	return usr, errors.Wrap(err, "finding user by email")
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	usr, err := repo.getUser(ctx, "(username = ? OR email = ?)", username, username)
	return usr, errors.Wrap(err, "finding user by username or email")
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	var w where
	// users with Name, Username or Email matching the search keyword
	if filter.Search != "" {
		val := likePattern(filter.Search)
		w.add("(name ILIKE ? OR username ILIKE ? OR email ILIKE ?)", val, val, val)
	}
	// users with any role that starts with any of the provided roles
	if len(filter.Roles) > 0 {
		conds := make([]string, 0, len(filter.Roles))
		args := make([]interface{}, 0, len(filter.Roles))
		for _, role := range filter.Roles {
			conds = append(conds, "EXISTS (SELECT 1 FROM UNNEST(roles) user_role WHERE user_role LIKE ?)")
			args = append(args, strings.ReplaceAll(role, "%", `\%`)+"%")
		}
		w.add("("+strings.Join(conds, " OR ")+")", args...)
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}
	if !filter.CreatedFrom.IsZero() {
		w.add("created_at >= ?", filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		w.add("created_at <= ?", filter.CreatedTo.UTC())
	}

	var rows []userRow
	q := w.query(`SELECT `+userColumns+` FROM "user"`, orderBy(ordering, userOrderColumns, "created_at, id"))
	if err := repo.exec(ctx).SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return usersFromRows(rows), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	// only save set fields
	sets := []string{"name = ?", "username = ?", "email = ?", "updated_at = ?", "last_login = ?"}
	row := newUserRow(usr)
	args := []interface{}{row.Name, row.Username, row.Email, row.UpdatedAt, row.LastLogin}
	if usr.Roles != nil {
		sets = append(sets, "roles = ?")
		args = append(args, row.Roles)
	}
	if usr.PasswordHash != nil {
		sets = append(sets, "password_hash = ?")
		args = append(args, row.PasswordHash)
	}
	if isActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *isActive)
	}
	args = append(args, usr.ID)

	q := sqlx.Rebind(sqlx.DOLLAR, `UPDATE "user" SET `+strings.Join(sets, ", ")+` WHERE id = ? RETURNING `+userColumns)
	var updated userRow
	if err := repo.get(ctx, &updated, user.ErrNotFound, q, args...); err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return updated.user(), nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.exec(ctx).ExecContext(ctx, `DELETE FROM "user" WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting users")
}
