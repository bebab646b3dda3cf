package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/template"
)

const (
	templateColumns     = `id, owner_id, title, description, type, sharing, expert, locked, created_at, updated_at`
	itemColumns         = `id, owner_id, text, classification, scale_id, uses_na, category, sharing, expert, locked, created_at, updated_at`
	templateItemColumns = `id, template_id, item_id, display_order, category, display_rows, compulsory, uses_na, scale_display, created_at`
)

var (
	templateOrderColumns = map[string]string{
		"title":      "LOWER(title)",
		"created_at": "created_at",
		"updated_at": "updated_at",
	}
	itemOrderColumns = map[string]string{
		"text":       "LOWER(text)",
		"created_at": "created_at",
		"updated_at": "updated_at",
	}
)

type (
	templateRow struct {
		ID          string    `db:"id"`
		OwnerID     string    `db:"owner_id"`
		Title       string    `db:"title"`
		Description string    `db:"description"`
		Type        string    `db:"type"`
		Sharing     string    `db:"sharing"`
		Expert      bool      `db:"expert"`
		Locked      bool      `db:"locked"`
		CreatedAt   time.Time `db:"created_at"`
		UpdatedAt   time.Time `db:"updated_at"`
	}

	itemRow struct {
		ID             string      `db:"id"`
		OwnerID        string      `db:"owner_id"`
		Text           string      `db:"text"`
		Classification string      `db:"classification"`
		ScaleID        null.String `db:"scale_id"`
		UsesNA         bool        `db:"uses_na"`
		Category       string      `db:"category"`
		Sharing        string      `db:"sharing"`
		Expert         bool        `db:"expert"`
		Locked         bool        `db:"locked"`
		CreatedAt      time.Time   `db:"created_at"`
		UpdatedAt      time.Time   `db:"updated_at"`
	}

	templateItemRow struct {
		ID           string    `db:"id"`
		TemplateID   string    `db:"template_id"`
		ItemID       string    `db:"item_id"`
		DisplayOrder int       `db:"display_order"`
		Category     string    `db:"category"`
		DisplayRows  int       `db:"display_rows"`
		Compulsory   bool      `db:"compulsory"`
		UsesNA       bool      `db:"uses_na"`
		ScaleDisplay string    `db:"scale_display"`
		CreatedAt    time.Time `db:"created_at"`
	}
)

func (r templateRow) template() template.Template {
	return template.Template{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Title:       r.Title,
		Description: r.Description,
		Type:        r.Type,
		Sharing:     r.Sharing,
		Expert:      r.Expert,
		Locked:      r.Locked,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func newItemRow(it template.Item) itemRow {
	return itemRow{
		ID:             it.ID,
		OwnerID:        it.OwnerID,
		Text:           it.Text,
		Classification: it.Classification,
		ScaleID:        null.NewString(it.ScaleID, it.ScaleID != ""),
		UsesNA:         it.UsesNA,
		Category:       it.Category,
		Sharing:        it.Sharing,
		Expert:         it.Expert,
		Locked:         it.Locked,
		CreatedAt:      it.CreatedAt.UTC(),
		UpdatedAt:      it.UpdatedAt.UTC(),
	}
}

func (r itemRow) item() template.Item {
	return template.Item{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		Text:           r.Text,
		Classification: r.Classification,
		ScaleID:        r.ScaleID.String,
		UsesNA:         r.UsesNA,
		Category:       r.Category,
		Sharing:        r.Sharing,
		Expert:         r.Expert,
		Locked:         r.Locked,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func (r templateItemRow) templateItem() template.TemplateItem {
	return template.TemplateItem{
		ID:           r.ID,
		TemplateID:   r.TemplateID,
		ItemID:       r.ItemID,
		DisplayOrder: r.DisplayOrder,
		Category:     r.Category,
		DisplayRows:  r.DisplayRows,
		Compulsory:   r.Compulsory,
		UsesNA:       r.UsesNA,
		ScaleDisplay: r.ScaleDisplay,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

type templateRepository struct {
	base
}

var _ template.Repository = (*templateRepository)(nil)

func NewTemplateRepository(db *sqlx.DB) template.Repository {
	return &templateRepository{base{db: db}}
}

// ownershipWhere adds the owner and visibility conditions of filter.
func ownershipWhere(w *where, filter template.QueryFilter) {
	if filter.OwnerID != "" {
		w.add("owner_id::text = ?", filter.OwnerID)
	}
	if filter.VisibleTo != "" {
		w.add("(owner_id::text = ? OR sharing = ANY(?))", filter.VisibleTo, pq.Array(sharedSharings()))
	}
}

// templates

func (repo *templateRepository) CreateTemplate(ctx context.Context, t template.Template) (template.Template, error) {
	t.ID = uuid.New().String()
	q := `INSERT INTO template (` + templateColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := repo.exec(ctx).ExecContext(ctx, q,
		t.ID, t.OwnerID, t.Title, t.Description, t.Type, t.Sharing, t.Expert, t.Locked, t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return template.Template{}, errors.Wrap(err, "inserting template")
	}
	return t, nil
}

func (repo *templateRepository) GetTemplateByID(ctx context.Context, id string) (template.Template, error) {
	if !isUUID(id) {
		return template.Template{}, template.ErrNotFound
	}
	var row templateRow
	if err := repo.get(ctx, &row, template.ErrNotFound, `SELECT `+templateColumns+` FROM template WHERE id = $1`, id); err != nil {
		return template.Template{}, errors.Wrap(err, "finding template by ID")
	}
	return row.template(), nil
}

func (repo *templateRepository) FilterTemplates(ctx context.Context, filter template.QueryFilter, ordering ...core.DBOrdering) ([]template.Template, error) {
	var w where
	if filter.Search != "" {
		w.add("title ILIKE ?", likePattern(filter.Search))
	}
	if filter.Type != "" {
		w.add("type = ?", filter.Type)
	}
	ownershipWhere(&w, filter)

	var rows []templateRow
	q := w.query(`SELECT `+templateColumns+` FROM template`, orderBy(ordering, templateOrderColumns, "created_at, id"))
	if err := repo.exec(ctx).SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying templates")
	}
	ts := make([]template.Template, 0, len(rows))
	for _, r := range rows {
		ts = append(ts, r.template())
	}
	return ts, nil
}

func (repo *templateRepository) UpdateTemplate(ctx context.Context, t template.Template) (template.Template, error) {
	q := `UPDATE template SET title = $1, description = $2, type = $3, sharing = $4, expert = $5, locked = $6,
		updated_at = $7 WHERE id = $8`
	err := repo.execOne(ctx, template.ErrNotFound, q,
		t.Title, t.Description, t.Type, t.Sharing, t.Expert, t.Locked, t.UpdatedAt.UTC(), t.ID)
	if err != nil {
		return template.Template{}, errors.Wrap(err, "updating template")
	}
	return t, nil
}

func (repo *templateRepository) SetTemplateLocked(ctx context.Context, id string, locked bool) error {
	err := repo.execOne(ctx, template.ErrNotFound, `UPDATE template SET locked = $1 WHERE id = $2`, locked, id)
	return errors.Wrap(err, "locking template")
}

func (repo *templateRepository) DeleteTemplate(ctx context.Context, id string) error {
	// template items are deleted on cascade
	_, err := repo.exec(ctx).ExecContext(ctx, `DELETE FROM template WHERE id = $1`, id)
	return errors.Wrap(err, "deleting template")
}

func (repo *templateRepository) CountTemplatesByTitle(ctx context.Context, title string) (int, error) {
	n, err := repo.count(ctx, `SELECT COUNT(*) FROM template WHERE LOWER(title) = LOWER($1)`, title)
	return n, errors.Wrap(err, "counting templates by title")
}

// items

func (repo *templateRepository) CreateItem(ctx context.Context, it template.Item) (template.Item, error) {
	it.ID = uuid.New().String()
	q := `INSERT INTO item (` + itemColumns + `)
		VALUES (:id, :owner_id, :text, :classification, :scale_id, :uses_na, :category, :sharing, :expert, :locked,
		:created_at, :updated_at)`
	if _, err := repo.exec(ctx).NamedExecContext(ctx, q, newItemRow(it)); err != nil {
		return template.Item{}, errors.Wrap(err, "inserting item")
	}
	return it, nil
}

func (repo *templateRepository) GetItemByID(ctx context.Context, id string) (template.Item, error) {
	if !isUUID(id) {
		return template.Item{}, template.ErrItemNotFound
	}
	var row itemRow
	if err := repo.get(ctx, &row, template.ErrItemNotFound, `SELECT `+itemColumns+` FROM item WHERE id = $1`, id); err != nil {
		return template.Item{}, errors.Wrap(err, "finding item by ID")
	}
	return row.item(), nil
}

func (repo *templateRepository) selectItems(ctx context.Context, q string, args ...interface{}) ([]template.Item, error) {
	var rows []itemRow
	if err := repo.exec(ctx).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	its := make([]template.Item, 0, len(rows))
	for _, r := range rows {
		its = append(its, r.item())
	}
	return its, nil
}

func (repo *templateRepository) GetItemsByID(ctx context.Context, ids ...string) ([]template.Item, error) {
	its, err := repo.selectItems(ctx,
		`SELECT `+itemColumns+` FROM item WHERE id = ANY($1) ORDER BY created_at, id`, pq.Array(uuids(ids)))
	return its, errors.Wrap(err, "finding items by ID")
}

func (repo *templateRepository) FilterItems(ctx context.Context, filter template.QueryFilter, ordering ...core.DBOrdering) ([]template.Item, error) {
	var w where
	if filter.Search != "" {
		w.add("text ILIKE ?", likePattern(filter.Search))
	}
	if filter.Type != "" {
		w.add("classification = ?", filter.Type)
	}
	ownershipWhere(&w, filter)

	q := w.query(`SELECT `+itemColumns+` FROM item`, orderBy(ordering, itemOrderColumns, "created_at, id"))
	its, err := repo.selectItems(ctx, q, w.args...)
	return its, errors.Wrap(err, "querying items")
}

func (repo *templateRepository) UpdateItem(ctx context.Context, it template.Item) (template.Item, error) {
	q := `UPDATE item SET text = :text, classification = :classification, scale_id = :scale_id, uses_na = :uses_na,
		category = :category, sharing = :sharing, expert = :expert, locked = :locked, updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.exec(ctx).NamedExecContext(ctx, q, newItemRow(it))
	if err != nil {
		return template.Item{}, errors.Wrap(err, "updating item")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return template.Item{}, template.ErrItemNotFound
	}
	return it, nil
}

func (repo *templateRepository) SetItemLocked(ctx context.Context, id string, locked bool) error {
	err := repo.execOne(ctx, template.ErrItemNotFound, `UPDATE item SET locked = $1 WHERE id = $2`, locked, id)
	return errors.Wrap(err, "locking item")
}

func (repo *templateRepository) DeleteItem(ctx context.Context, id string) error {
	_, err := repo.exec(ctx).ExecContext(ctx, `DELETE FROM item WHERE id = $1`, id)
	return errors.Wrap(err, "deleting item")
}

func (repo *templateRepository) CountItemsByScale(ctx context.Context, scaleID string) (int, error) {
	if !isUUID(scaleID) {
		return 0, nil
	}
	n, err := repo.count(ctx, `SELECT COUNT(*) FROM item WHERE scale_id = $1`, scaleID)
	return n, errors.Wrap(err, "counting items by scale")
}

func (repo *templateRepository) CountLockedItemsByScale(ctx context.Context, scaleID string) (int, error) {
	if !isUUID(scaleID) {
		return 0, nil
	}
	n, err := repo.count(ctx, `SELECT COUNT(*) FROM item WHERE scale_id = $1 AND locked`, scaleID)
	return n, errors.Wrap(err, "counting locked items by scale")
}

// template items

func (repo *templateRepository) CreateTemplateItem(ctx context.Context, ti template.TemplateItem) (template.TemplateItem, error) {
	ti.ID = uuid.New().String()
	q := `INSERT INTO template_item (` + templateItemColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := repo.exec(ctx).ExecContext(ctx, q,
		ti.ID, ti.TemplateID, ti.ItemID, ti.DisplayOrder, ti.Category, ti.DisplayRows, ti.Compulsory, ti.UsesNA,
		ti.ScaleDisplay, ti.CreatedAt.UTC())
	if err != nil {
		return template.TemplateItem{}, errors.Wrap(err, "inserting template item")
	}
	return ti, nil
}

func (repo *templateRepository) GetTemplateItemByID(ctx context.Context, id string) (template.TemplateItem, error) {
	if !isUUID(id) {
		return template.TemplateItem{}, template.ErrTemplateItemNotFound
	}
	var row templateItemRow
	q := `SELECT ` + templateItemColumns + ` FROM template_item WHERE id = $1`
	if err := repo.get(ctx, &row, template.ErrTemplateItemNotFound, q, id); err != nil {
		return template.TemplateItem{}, errors.Wrap(err, "finding template item by ID")
	}
	return row.templateItem(), nil
}

func (repo *templateRepository) ListTemplateItems(ctx context.Context, templateID string) ([]template.TemplateItem, error) {
	if !isUUID(templateID) {
		return nil, nil
	}
	var rows []templateItemRow
	q := `SELECT ` + templateItemColumns + ` FROM template_item WHERE template_id = $1 ORDER BY display_order, id`
	if err := repo.exec(ctx).SelectContext(ctx, &rows, q, templateID); err != nil {
		return nil, errors.Wrap(err, "listing template items")
	}
	tis := make([]template.TemplateItem, 0, len(rows))
	for _, r := range rows {
		tis = append(tis, r.templateItem())
	}
	return tis, nil
}

func (repo *templateRepository) UpdateTemplateItem(ctx context.Context, ti template.TemplateItem) (template.TemplateItem, error) {
	q := `UPDATE template_item SET display_order = $1, category = $2, display_rows = $3, compulsory = $4,
		uses_na = $5, scale_display = $6 WHERE id = $7`
	err := repo.execOne(ctx, template.ErrTemplateItemNotFound, q,
		ti.DisplayOrder, ti.Category, ti.DisplayRows, ti.Compulsory, ti.UsesNA, ti.ScaleDisplay, ti.ID)
	if err != nil {
		return template.TemplateItem{}, errors.Wrap(err, "updating template item")
	}
	return ti, nil
}

func (repo *templateRepository) DeleteTemplateItem(ctx context.Context, id string) error {
	_, err := repo.exec(ctx).ExecContext(ctx, `DELETE FROM template_item WHERE id = $1`, id)
	return errors.Wrap(err, "deleting template item")
}

func (repo *templateRepository) CountTemplateItemsByItem(ctx context.Context, itemID string) (int, error) {
	if !isUUID(itemID) {
		return 0, nil
	}
	n, err := repo.count(ctx, `SELECT COUNT(*) FROM template_item WHERE item_id = $1`, itemID)
	return n, errors.Wrap(err, "counting template items by item")
}

func (repo *templateRepository) CountLockedTemplatesByItem(ctx context.Context, itemID string) (int, error) {
	if !isUUID(itemID) {
		return 0, nil
	}
	n, err := repo.count(ctx,
		`SELECT COUNT(*) FROM template_item ti JOIN template t ON t.id = ti.template_id WHERE ti.item_id = $1 AND t.locked`,
		itemID)
	return n, errors.Wrap(err, "counting locked templates by item")
}
