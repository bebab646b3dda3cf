// Package sqlxrepos implements the repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
)

type (
	// executor is implemented by both *sqlx.DB and *sqlx.Tx.
	executor interface {
		sqlx.ExtContext
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	}

	Transactor struct {
		db *sqlx.DB
	}

	txKey struct{}

	// base is embedded by every repository.
	base struct {
		db *sqlx.DB
	}
)

var _ core.Transactor = (*Transactor)(nil)

func NewTransactor(db *sqlx.DB) *Transactor {
	return &Transactor{db: db}
}

// WithinTx commits when fn succeeds and rolls back otherwise; nested calls join the outer transaction.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}
	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rolling back transaction: %v", rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// exec returns the transaction of ctx, if any, or the database.
func (b base) exec(ctx context.Context) executor {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return b.db
}

// get runs a single row query, mapping sql.ErrNoRows to notFound.
func (b base) get(ctx context.Context, dest interface{}, notFound error, query string, args ...interface{}) error {
	err := b.exec(ctx).GetContext(ctx, dest, query, args...)
	if err == sql.ErrNoRows {
		return notFound
	}
	return err
}

// execOne runs a write that must affect a row, returning notFound otherwise.
func (b base) execOne(ctx context.Context, notFound error, query string, args ...interface{}) error {
	res, err := b.exec(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func (b base) count(ctx context.Context, query string, args ...interface{}) (int, error) {
	var n int
	err := b.exec(ctx).GetContext(ctx, &n, query, args...)
	return n, err
}

// where collects AND-ed conditions written with ? placeholders.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

// query builds the final statement, rebound to postgres placeholders.
func (w *where) query(selectFrom, orderBy string) string {
	q := selectFrom
	if len(w.conds) > 0 {
		q += " WHERE " + strings.Join(w.conds, " AND ")
	}
	if orderBy != "" {
		q += " ORDER BY " + orderBy
	}
	return sqlx.Rebind(sqlx.DOLLAR, q)
}

// orderBy maps orderings to columns; unknown fields are ignored.
func orderBy(ordering []core.DBOrdering, columns map[string]string, dflt string) string {
	parts := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		col, ok := columns[ord.Field]
		if !ok {
			continue
		}
		parts = append(parts, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	parts = append(parts, dflt)
	return strings.Join(parts, ", ")
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// isUUID reports whether id can be looked up; other IDs cannot exist.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// uuids drops the IDs that are not valid UUIDs.
func uuids(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUUID(id) {
			valid = append(valid, id)
		}
	}
	return valid
}
