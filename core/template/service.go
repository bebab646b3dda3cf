package template

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/scale"
	"github.com/trezcool/tathmini/core/user"
)

var (
	// errors
	ErrNotFound             = core.NewNotFoundError("template")
	ErrItemNotFound         = core.NewNotFoundError("item")
	ErrTemplateItemNotFound = core.NewNotFoundError("template item")

	errNoCreate         = core.NewPermissionError("only admins and instructors can create templates and items")
	errNoControl        = core.NewPermissionError("only the owner or an admin can change this template")
	errNoItemControl    = core.NewPermissionError("only the owner or an admin can change this item")
	errNoPublic         = core.NewPermissionError("only admins can make templates and items public")
	errItemNotUsable    = core.NewPermissionError("you cannot use this item")
	errScaleNotUsable   = core.NewFieldError("scale_id", "you cannot use this scale")
	errLocked           = core.NewStateError("this template is locked and cannot be changed")
	errItemLocked       = core.NewStateError("this item is locked and cannot be changed")
	errInUse            = core.NewStateError("this template is used by evaluations and cannot be deleted")
	errItemInUse        = core.NewStateError("this item is used by templates and cannot be deleted")
	errItemAlreadyAdded = core.NewStateError("this item is already in the template")
	errBadReorder       = core.NewFieldError("template_item_ids", "must list every item of the template exactly once")
)

type (
	Repository interface {
		CreateTemplate(ctx context.Context, t Template) (Template, error)
		GetTemplateByID(ctx context.Context, id string) (Template, error)
		FilterTemplates(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Template, error)
		UpdateTemplate(ctx context.Context, t Template) (Template, error)
		SetTemplateLocked(ctx context.Context, id string, locked bool) error
		// DeleteTemplate deletes the template and its template items.
		DeleteTemplate(ctx context.Context, id string) error
		CountTemplatesByTitle(ctx context.Context, title string) (int, error)

		CreateItem(ctx context.Context, it Item) (Item, error)
		GetItemByID(ctx context.Context, id string) (Item, error)
		GetItemsByID(ctx context.Context, ids ...string) ([]Item, error)
		FilterItems(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Item, error)
		UpdateItem(ctx context.Context, it Item) (Item, error)
		SetItemLocked(ctx context.Context, id string, locked bool) error
		DeleteItem(ctx context.Context, id string) error
		CountItemsByScale(ctx context.Context, scaleID string) (int, error)
		CountLockedItemsByScale(ctx context.Context, scaleID string) (int, error)

		CreateTemplateItem(ctx context.Context, ti TemplateItem) (TemplateItem, error)
		GetTemplateItemByID(ctx context.Context, id string) (TemplateItem, error)
		// ListTemplateItems lists the items of a template by display order.
		ListTemplateItems(ctx context.Context, templateID string) ([]TemplateItem, error)
		UpdateTemplateItem(ctx context.Context, ti TemplateItem) (TemplateItem, error)
		DeleteTemplateItem(ctx context.Context, id string) error
		CountTemplateItemsByItem(ctx context.Context, itemID string) (int, error)
		CountLockedTemplatesByItem(ctx context.Context, itemID string) (int, error)
	}

	// EvaluationCounter counts the evaluations using a template.
	EvaluationCounter interface {
		CountEvaluationsByTemplate(ctx context.Context, templateID string) (int, error)
	}

	Service interface {
		Create(ctx context.Context, actor user.User, nt NewTemplate) (Template, error)
		GetByID(ctx context.Context, id string) (Template, error)
		Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Template, error)
		Update(ctx context.Context, actor user.User, id string, ut UpdateTemplate) (Template, error)
		Delete(ctx context.Context, actor user.User, id string) error
		Copy(ctx context.Context, actor user.User, id string) (Template, error)
		// Lock locks the template, its items and their scales.
		Lock(ctx context.Context, id string) error
		// Unlock unlocks the template, then its items and scales no longer held by another locked template.
		Unlock(ctx context.Context, id string) error
		CanControl(actor user.User, t Template) bool
		CanUse(actor user.User, t Template) bool

		CreateItem(ctx context.Context, actor user.User, ni NewItem) (Item, error)
		GetItemByID(ctx context.Context, id string) (Item, error)
		QueryItems(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Item, error)
		UpdateItem(ctx context.Context, actor user.User, id string, ui UpdateItem) (Item, error)
		DeleteItem(ctx context.Context, actor user.User, id string) error

		AddItem(ctx context.Context, actor user.User, templateID string, nti NewTemplateItem) (TemplateItem, error)
		UpdateTemplateItem(ctx context.Context, actor user.User, id string, uti UpdateTemplateItem) (TemplateItem, error)
		RemoveItem(ctx context.Context, actor user.User, id string) error
		ReorderItems(ctx context.Context, actor user.User, templateID string, ids []string) ([]TemplateItem, error)
		ListItems(ctx context.Context, templateID string) ([]TemplateItem, error)
		FullItems(ctx context.Context, templateID string) ([]FullItem, error)
	}

	service struct {
		tx       core.Transactor
		repo     Repository
		scaleSvc scale.Service
		evals    EvaluationCounter
	}
)

var _ Service = (*service)(nil)

// NewService creates a template Service. evals is usually the evaluation repository.
func NewService(tx core.Transactor, repo Repository, scaleSvc scale.Service, evals EvaluationCounter) Service {
	return &service{tx: tx, repo: repo, scaleSvc: scaleSvc, evals: evals}
}

func canControl(actor user.User, ownerID string) bool {
	return actor.IsAdmin() || (actor.ID != "" && actor.ID == ownerID)
}

func (svc *service) CanControl(actor user.User, t Template) bool { return canControl(actor, t.OwnerID) }

func (svc *service) CanUse(actor user.User, t Template) bool {
	return canControl(actor, t.OwnerID) || core.IsShared(t.Sharing)
}

// Templates

func (svc *service) Create(ctx context.Context, actor user.User, nt NewTemplate) (Template, error) {
	if !(actor.IsAdmin() || actor.IsInstructor()) {
		return Template{}, errNoCreate
	}
	if nt.Sharing == core.SharingPublic && !actor.IsAdmin() {
		return Template{}, errNoPublic
	}
	now := core.Now()
	return svc.repo.CreateTemplate(ctx, Template{
		OwnerID:     actor.ID,
		Title:       nt.Title,
		Description: nt.Description,
		Type:        nt.Type,
		Sharing:     nt.Sharing,
		Expert:      nt.Expert,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *service) GetByID(ctx context.Context, id string) (Template, error) {
	return svc.repo.GetTemplateByID(ctx, id)
}

func (svc *service) Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Template, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	if !actor.IsAdmin() {
		filter.VisibleTo = actor.ID
	}
	return svc.repo.FilterTemplates(ctx, *filter, ordering...)
}

func (svc *service) getControlled(ctx context.Context, actor user.User, id string) (Template, error) {
	t, err := svc.repo.GetTemplateByID(ctx, id)
	if err != nil {
		return Template{}, err
	}
	if !svc.CanControl(actor, t) {
		return Template{}, errNoControl
	}
	if t.Locked {
		return Template{}, errLocked
	}
	return t, nil
}

func (svc *service) Update(ctx context.Context, actor user.User, id string, ut UpdateTemplate) (Template, error) {
	t, err := svc.getControlled(ctx, actor, id)
	if err != nil {
		return Template{}, err
	}
	if ut.Sharing == core.SharingPublic && t.Sharing != core.SharingPublic && !actor.IsAdmin() {
		return Template{}, errNoPublic
	}
	t.Title = ut.Title
	if ut.Description != nil {
		t.Description = *ut.Description
	}
	t.Sharing = ut.Sharing
	if ut.Expert != nil {
		t.Expert = *ut.Expert
	}
	t.UpdatedAt = core.Now()
	return svc.repo.UpdateTemplate(ctx, t)
}

func (svc *service) Delete(ctx context.Context, actor user.User, id string) error {
	t, err := svc.getControlled(ctx, actor, id)
	if err != nil {
		return err
	}
	count, err := svc.evals.CountEvaluationsByTemplate(ctx, t.ID)
	if err != nil {
		return errors.Wrap(err, "counting evaluations by template")
	}
	if count > 0 {
		return errInUse
	}
	return svc.repo.DeleteTemplate(ctx, t.ID)
}

func (svc *service) Copy(ctx context.Context, actor user.User, id string) (Template, error) {
	if !(actor.IsAdmin() || actor.IsInstructor()) {
		return Template{}, errNoCreate
	}
	orig, err := svc.repo.GetTemplateByID(ctx, id)
	if err != nil {
		return Template{}, err
	}
	if !svc.CanUse(actor, orig) {
		return Template{}, errNoControl
	}

	var copied Template
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		title, err := core.CopyTitle(orig.Title, func(t string) (bool, error) {
			count, err := svc.repo.CountTemplatesByTitle(ctx, t)
			return count > 0, err
		})
		if err != nil {
			return errors.Wrap(err, "making copy title")
		}

		now := core.Now()
		copied, err = svc.repo.CreateTemplate(ctx, Template{
			OwnerID:     actor.ID,
			Title:       title,
			Description: orig.Description,
			Type:        orig.Type,
			Sharing:     core.SharingPrivate,
			Expert:      orig.Expert,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return errors.Wrap(err, "creating template copy")
		}

		tis, err := svc.repo.ListTemplateItems(ctx, orig.ID)
		if err != nil {
			return errors.Wrap(err, "listing template items")
		}
		for _, ti := range tis {
			it, err := svc.copyItem(ctx, actor, ti.ItemID, now)
			if err != nil {
				return err
			}
			ti.ID = ""
			ti.TemplateID = copied.ID
			ti.ItemID = it.ID
			ti.CreatedAt = now
			if _, err := svc.repo.CreateTemplateItem(ctx, ti); err != nil {
				return errors.Wrap(err, "creating template item copy")
			}
		}
		return nil
	})
	if err != nil {
		return Template{}, err
	}
	return copied, nil
}

// copyItem deep copies an item; adhoc scales are copied along, shared scales are reused.
func (svc *service) copyItem(ctx context.Context, actor user.User, itemID string, now time.Time) (Item, error) {
	it, err := svc.repo.GetItemByID(ctx, itemID)
	if err != nil {
		return Item{}, errors.Wrap(err, "finding item by ID")
	}
	if it.ScaleID != "" {
		s, err := svc.scaleSvc.GetByID(ctx, it.ScaleID)
		if err != nil {
			return Item{}, errors.Wrap(err, "finding scale by ID")
		}
		if s.Mode == scale.ModeAdhoc {
			s, err = svc.scaleSvc.CopyAdhoc(ctx, actor, s.ID)
			if err != nil {
				return Item{}, errors.Wrap(err, "copying adhoc scale")
			}
			it.ScaleID = s.ID
		}
	}
	it.ID = ""
	it.OwnerID = actor.ID
	it.Sharing = core.SharingPrivate
	it.Locked = false
	it.CreatedAt = now
	it.UpdatedAt = now
	it, err = svc.repo.CreateItem(ctx, it)
	return it, errors.Wrap(err, "creating item copy")
}

func (svc *service) Lock(ctx context.Context, id string) error {
	t, err := svc.repo.GetTemplateByID(ctx, id)
	if err != nil {
		return err
	}
	if t.Locked {
		return nil
	}
	return svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := svc.repo.SetTemplateLocked(ctx, id, true); err != nil {
			return errors.Wrap(err, "locking template")
		}
		items, err := svc.templateItems(ctx, id)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := svc.repo.SetItemLocked(ctx, it.ID, true); err != nil {
				return errors.Wrap(err, "locking item")
			}
			if it.ScaleID != "" {
				if err := svc.scaleSvc.Lock(ctx, it.ScaleID); err != nil {
					return errors.Wrap(err, "locking scale")
				}
			}
		}
		return nil
	})
}

func (svc *service) Unlock(ctx context.Context, id string) error {
	if _, err := svc.repo.GetTemplateByID(ctx, id); err != nil {
		return err
	}
	return svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := svc.repo.SetTemplateLocked(ctx, id, false); err != nil {
			return errors.Wrap(err, "unlocking template")
		}
		items, err := svc.templateItems(ctx, id)
		if err != nil {
			return err
		}
		for _, it := range items {
			count, err := svc.repo.CountLockedTemplatesByItem(ctx, it.ID)
			if err != nil {
				return errors.Wrap(err, "counting locked templates by item")
			}
			if count > 0 {
				continue
			}
			if err := svc.repo.SetItemLocked(ctx, it.ID, false); err != nil {
				return errors.Wrap(err, "unlocking item")
			}
			if it.ScaleID != "" {
				if err := svc.scaleSvc.Unlock(ctx, it.ScaleID); err != nil {
					return errors.Wrap(err, "unlocking scale")
				}
			}
		}
		return nil
	})
}

func (svc *service) templateItems(ctx context.Context, templateID string) ([]Item, error) {
	tis, err := svc.repo.ListTemplateItems(ctx, templateID)
	if err != nil {
		return nil, errors.Wrap(err, "listing template items")
	}
	ids := make([]string, len(tis))
	for i, ti := range tis {
		ids[i] = ti.ItemID
	}
	items, err := svc.repo.GetItemsByID(ctx, ids...)
	return items, errors.Wrap(err, "finding items by ID")
}

// Items

func (svc *service) checkItemScale(ctx context.Context, actor user.User, scaleID string) error {
	if scaleID == "" {
		return nil
	}
	s, err := svc.scaleSvc.GetByID(ctx, scaleID)
	if err != nil {
		if errors.Cause(err) == scale.ErrNotFound {
			return core.NewFieldError("scale_id", err.Error())
		}
		return errors.Wrap(err, "finding scale by ID")
	}
	if !svc.scaleSvc.CanUse(actor, s) {
		return errScaleNotUsable
	}
	return nil
}

func (svc *service) CreateItem(ctx context.Context, actor user.User, ni NewItem) (Item, error) {
	if !(actor.IsAdmin() || actor.IsInstructor()) {
		return Item{}, errNoCreate
	}
	if ni.Sharing == core.SharingPublic && !actor.IsAdmin() {
		return Item{}, errNoPublic
	}
	if err := svc.checkItemScale(ctx, actor, ni.ScaleID); err != nil {
		return Item{}, err
	}
	now := core.Now()
	return svc.repo.CreateItem(ctx, Item{
		OwnerID:        actor.ID,
		Text:           ni.Text,
		Classification: ni.Classification,
		ScaleID:        ni.ScaleID,
		UsesNA:         ni.UsesNA,
		Category:       ni.Category,
		Sharing:        ni.Sharing,
		Expert:         ni.Expert,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

func (svc *service) GetItemByID(ctx context.Context, id string) (Item, error) {
	return svc.repo.GetItemByID(ctx, id)
}

func (svc *service) QueryItems(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Item, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	if !actor.IsAdmin() {
		filter.VisibleTo = actor.ID
	}
	return svc.repo.FilterItems(ctx, *filter, ordering...)
}

func (svc *service) getControlledItem(ctx context.Context, actor user.User, id string) (Item, error) {
	it, err := svc.repo.GetItemByID(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if !canControl(actor, it.OwnerID) {
		return Item{}, errNoItemControl
	}
	if it.Locked {
		return Item{}, errItemLocked
	}
	return it, nil
}

func (svc *service) UpdateItem(ctx context.Context, actor user.User, id string, ui UpdateItem) (Item, error) {
	it, err := svc.getControlledItem(ctx, actor, id)
	if err != nil {
		return Item{}, err
	}
	if ui.Sharing == core.SharingPublic && it.Sharing != core.SharingPublic && !actor.IsAdmin() {
		return Item{}, errNoPublic
	}
	if ui.ScaleID != nil && *ui.ScaleID != it.ScaleID {
		if err := svc.checkItemScale(ctx, actor, *ui.ScaleID); err != nil {
			return Item{}, err
		}
	}

	it.Text = ui.Text
	it.Classification = ui.Classification
	if ui.ScaleID != nil {
		it.ScaleID = *ui.ScaleID
	}
	if ui.UsesNA != nil {
		it.UsesNA = *ui.UsesNA
	}
	it.Category = ui.Category
	it.Sharing = ui.Sharing
	if ui.Expert != nil {
		it.Expert = *ui.Expert
	}
	it.UpdatedAt = core.Now()
	return svc.repo.UpdateItem(ctx, it)
}

func (svc *service) DeleteItem(ctx context.Context, actor user.User, id string) error {
	it, err := svc.getControlledItem(ctx, actor, id)
	if err != nil {
		return err
	}
	count, err := svc.repo.CountTemplateItemsByItem(ctx, it.ID)
	if err != nil {
		return errors.Wrap(err, "counting template items by item")
	}
	if count > 0 {
		return errItemInUse
	}
	return svc.repo.DeleteItem(ctx, it.ID)
}

// Template items

func (svc *service) AddItem(ctx context.Context, actor user.User, templateID string, nti NewTemplateItem) (TemplateItem, error) {
	t, err := svc.getControlled(ctx, actor, templateID)
	if err != nil {
		return TemplateItem{}, err
	}
	it, err := svc.repo.GetItemByID(ctx, nti.ItemID)
	if err != nil {
		if errors.Cause(err) == ErrItemNotFound {
			return TemplateItem{}, core.NewFieldError("item_id", err.Error())
		}
		return TemplateItem{}, errors.Wrap(err, "finding item by ID")
	}
	if !(canControl(actor, it.OwnerID) || core.IsShared(it.Sharing)) {
		return TemplateItem{}, errItemNotUsable
	}

	var ti TemplateItem
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		tis, err := svc.repo.ListTemplateItems(ctx, t.ID)
		if err != nil {
			return errors.Wrap(err, "listing template items")
		}
		maxOrder := 0
		for _, existing := range tis {
			if existing.ItemID == it.ID {
				return errItemAlreadyAdded
			}
			if existing.DisplayOrder > maxOrder {
				maxOrder = existing.DisplayOrder
			}
		}

		ti = TemplateItem{
			TemplateID:   t.ID,
			ItemID:       it.ID,
			DisplayOrder: maxOrder + 1,
			Category:     defaultString(nti.Category, it.Category),
			Compulsory:   nti.Compulsory && it.IsAnswerable(),
			UsesNA:       it.UsesNA,
			ScaleDisplay: nti.ScaleDisplay,
			CreatedAt:    core.Now(),
		}
		if nti.UsesNA != nil {
			ti.UsesNA = *nti.UsesNA && it.IsAnswerable()
		}
		if it.Classification == ClassText {
			ti.DisplayRows = nti.DisplayRows
			if ti.DisplayRows == 0 {
				ti.DisplayRows = defaultDisplayRows
			}
		}
		if NeedsScale(it.Classification) && ti.ScaleDisplay == "" {
			ti.ScaleDisplay = ScaleDisplayFull
		}
		if !NeedsScale(it.Classification) {
			ti.ScaleDisplay = ""
		}

		ti, err = svc.repo.CreateTemplateItem(ctx, ti)
		if err != nil {
			return errors.Wrap(err, "creating template item")
		}
		return svc.touch(ctx, t)
	})
	return ti, err
}

func (svc *service) getControlledTemplateItem(ctx context.Context, actor user.User, id string) (TemplateItem, Template, error) {
	ti, err := svc.repo.GetTemplateItemByID(ctx, id)
	if err != nil {
		return TemplateItem{}, Template{}, err
	}
	t, err := svc.getControlled(ctx, actor, ti.TemplateID)
	if err != nil {
		return TemplateItem{}, Template{}, err
	}
	return ti, t, nil
}

func (svc *service) UpdateTemplateItem(ctx context.Context, actor user.User, id string, uti UpdateTemplateItem) (TemplateItem, error) {
	ti, t, err := svc.getControlledTemplateItem(ctx, actor, id)
	if err != nil {
		return TemplateItem{}, err
	}
	it, err := svc.repo.GetItemByID(ctx, ti.ItemID)
	if err != nil {
		return TemplateItem{}, errors.Wrap(err, "finding item by ID")
	}

	if uti.Category != "" {
		ti.Category = uti.Category
	}
	if uti.DisplayRows != nil && it.Classification == ClassText {
		ti.DisplayRows = *uti.DisplayRows
	}
	if uti.Compulsory != nil {
		ti.Compulsory = *uti.Compulsory && it.IsAnswerable()
	}
	if uti.UsesNA != nil {
		ti.UsesNA = *uti.UsesNA && it.IsAnswerable()
	}
	if uti.ScaleDisplay != "" && NeedsScale(it.Classification) {
		ti.ScaleDisplay = uti.ScaleDisplay
	}

	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		ti, err = svc.repo.UpdateTemplateItem(ctx, ti)
		if err != nil {
			return errors.Wrap(err, "updating template item")
		}
		return svc.touch(ctx, t)
	})
	return ti, err
}

func (svc *service) RemoveItem(ctx context.Context, actor user.User, id string) error {
	ti, t, err := svc.getControlledTemplateItem(ctx, actor, id)
	if err != nil {
		return err
	}
	return svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := svc.repo.DeleteTemplateItem(ctx, ti.ID); err != nil {
			return errors.Wrap(err, "deleting template item")
		}
		// compact the display order
		tis, err := svc.repo.ListTemplateItems(ctx, t.ID)
		if err != nil {
			return errors.Wrap(err, "listing template items")
		}
		for i, rest := range tis {
			if rest.DisplayOrder != i+1 {
				rest.DisplayOrder = i + 1
				if _, err := svc.repo.UpdateTemplateItem(ctx, rest); err != nil {
					return errors.Wrap(err, "updating template item order")
				}
			}
		}
		return svc.touch(ctx, t)
	})
}

func (svc *service) ReorderItems(ctx context.Context, actor user.User, templateID string, ids []string) ([]TemplateItem, error) {
	t, err := svc.getControlled(ctx, actor, templateID)
	if err != nil {
		return nil, err
	}

	var ordered []TemplateItem
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		tis, err := svc.repo.ListTemplateItems(ctx, t.ID)
		if err != nil {
			return errors.Wrap(err, "listing template items")
		}
		if len(ids) != len(tis) {
			return errBadReorder
		}
		order := make(map[string]int, len(ids))
		for i, id := range ids {
			if _, dup := order[id]; dup {
				return errBadReorder
			}
			order[id] = i + 1
		}

		ordered = make([]TemplateItem, 0, len(tis))
		for _, ti := range tis {
			pos, ok := order[ti.ID]
			if !ok {
				return errBadReorder
			}
			if ti.DisplayOrder != pos {
				ti.DisplayOrder = pos
				if ti, err = svc.repo.UpdateTemplateItem(ctx, ti); err != nil {
					return errors.Wrap(err, "updating template item order")
				}
			}
			ordered = append(ordered, ti)
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].DisplayOrder < ordered[j].DisplayOrder })
		return svc.touch(ctx, t)
	})
	return ordered, err
}

func (svc *service) touch(ctx context.Context, t Template) error {
	t.UpdatedAt = core.Now()
	_, err := svc.repo.UpdateTemplate(ctx, t)
	return errors.Wrap(err, "updating template")
}

func (svc *service) ListItems(ctx context.Context, templateID string) ([]TemplateItem, error) {
	if _, err := svc.repo.GetTemplateByID(ctx, templateID); err != nil {
		return nil, err
	}
	return svc.repo.ListTemplateItems(ctx, templateID)
}

func (svc *service) FullItems(ctx context.Context, templateID string) ([]FullItem, error) {
	tis, err := svc.ListItems(ctx, templateID)
	if err != nil {
		return nil, err
	}

	itemIDs := make([]string, len(tis))
	for i, ti := range tis {
		itemIDs[i] = ti.ItemID
	}
	items, err := svc.repo.GetItemsByID(ctx, itemIDs...)
	if err != nil {
		return nil, errors.Wrap(err, "finding items by ID")
	}
	itemsByID := make(map[string]Item, len(items))
	var scaleIDs []string
	for _, it := range items {
		itemsByID[it.ID] = it
		if it.ScaleID != "" {
			scaleIDs = append(scaleIDs, it.ScaleID)
		}
	}

	scalesByID := make(map[string]scale.Scale, len(scaleIDs))
	if len(scaleIDs) > 0 {
		scales, err := svc.scaleSvc.GetByIDs(ctx, scaleIDs...)
		if err != nil {
			return nil, errors.Wrap(err, "finding scales by ID")
		}
		for _, s := range scales {
			scalesByID[s.ID] = s
		}
	}

	full := make([]FullItem, 0, len(tis))
	for _, ti := range tis {
		fi := FullItem{TemplateItem: ti, Item: itemsByID[ti.ItemID]}
		if s, ok := scalesByID[fi.Item.ScaleID]; ok {
			s := s
			fi.Scale = &s
		}
		full = append(full, fi)
	}
	return full, nil
}
