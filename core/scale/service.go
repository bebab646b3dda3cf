package scale

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/user"
)

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("scale")
	errTitleExists = core.NewFieldError("title", "a scale with this title already exists")
	errNoCreate    = core.NewPermissionError("only admins and instructors can create scales")
	errNoControl   = core.NewPermissionError("only the owner or an admin can change this scale")
	errNoPublic    = core.NewPermissionError("only admins can make a scale public")
	errLocked      = core.NewStateError("this scale is locked and cannot be changed")
	errInUse       = core.NewStateError("this scale is used by items and cannot be deleted")
	errOptionCount = core.NewStateError("the number of options of a scale used by items cannot change")
	errNotAdhoc    = core.NewStateError("only adhoc scales are copied along with their item")
)

type (
	Repository interface {
		CreateScale(ctx context.Context, s Scale) (Scale, error)
		GetScaleByID(ctx context.Context, id string) (Scale, error)
		GetScalesByID(ctx context.Context, ids ...string) ([]Scale, error)
		FilterScales(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Scale, error)
		UpdateScale(ctx context.Context, s Scale) (Scale, error)
		SetScaleLocked(ctx context.Context, id string, locked bool) error
		DeleteScale(ctx context.Context, id string) error
		// CountScalesByTitle counts `scale` mode scales with this title (case-insensitive), ignoring excludedID.
		CountScalesByTitle(ctx context.Context, title, excludedID string) (int, error)
	}

	// ItemCounter counts the items using a scale.
	ItemCounter interface {
		CountItemsByScale(ctx context.Context, scaleID string) (int, error)
		CountLockedItemsByScale(ctx context.Context, scaleID string) (int, error)
	}

	Service interface {
		Create(ctx context.Context, actor user.User, ns NewScale) (Scale, error)
		GetByID(ctx context.Context, id string) (Scale, error)
		GetByIDs(ctx context.Context, ids ...string) ([]Scale, error)
		Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Scale, error)
		Update(ctx context.Context, actor user.User, id string, us UpdateScale) (Scale, error)
		Delete(ctx context.Context, actor user.User, id string) error
		Copy(ctx context.Context, actor user.User, id string) (Scale, error)
		// CopyAdhoc copies the adhoc scale of an item for actor. Access to the item
		// grants access to its scale, so the scale's own sharing is not checked.
		CopyAdhoc(ctx context.Context, actor user.User, id string) (Scale, error)

		// Lock prevents any further change to the scale.
		Lock(ctx context.Context, id string) error
		// Unlock releases the scale when no locked item uses it anymore.
		Unlock(ctx context.Context, id string) error

		CanControl(actor user.User, s Scale) bool
		CanUse(actor user.User, s Scale) bool
	}

	service struct {
		repo  Repository
		items ItemCounter
	}
)

var _ Service = (*service)(nil)

// NewService creates a scale Service. items is usually the template repository.
func NewService(repo Repository, items ItemCounter) Service {
	return &service{repo: repo, items: items}
}

func (svc *service) CanControl(actor user.User, s Scale) bool {
	return actor.IsAdmin() || (actor.ID != "" && actor.ID == s.OwnerID)
}

func (svc *service) CanUse(actor user.User, s Scale) bool {
	return svc.CanControl(actor, s) || core.IsShared(s.Sharing)
}

func (svc *service) checkTitle(ctx context.Context, mode, title, excludedID string) error {
	if mode != ModeScale {
		return nil
	}
	count, err := svc.repo.CountScalesByTitle(ctx, title, excludedID)
	if err != nil {
		return errors.Wrap(err, "counting scales by title")
	}
	if count > 0 {
		return errTitleExists
	}
	return nil
}

func (svc *service) Create(ctx context.Context, actor user.User, ns NewScale) (Scale, error) {
	if !(actor.IsAdmin() || actor.IsInstructor()) {
		return Scale{}, errNoCreate
	}
	if ns.Sharing == core.SharingPublic && !actor.IsAdmin() {
		return Scale{}, errNoPublic
	}
	if err := svc.checkTitle(ctx, ns.Mode, ns.Title, ""); err != nil {
		return Scale{}, err
	}

	now := core.Now()
	return svc.repo.CreateScale(ctx, Scale{
		OwnerID:   actor.ID,
		Title:     ns.Title,
		Options:   ns.Options,
		Ideal:     ns.Ideal,
		Mode:      ns.Mode,
		Sharing:   ns.Sharing,
		Expert:    ns.Expert,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *service) GetByID(ctx context.Context, id string) (Scale, error) {
	return svc.repo.GetScaleByID(ctx, id)
}

func (svc *service) GetByIDs(ctx context.Context, ids ...string) ([]Scale, error) {
	return svc.repo.GetScalesByID(ctx, ids...)
}

func (svc *service) Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Scale, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	if !actor.IsAdmin() {
		filter.VisibleTo = actor.ID
	}
	return svc.repo.FilterScales(ctx, *filter, ordering...)
}

func (svc *service) getControlled(ctx context.Context, actor user.User, id string) (Scale, error) {
	s, err := svc.repo.GetScaleByID(ctx, id)
	if err != nil {
		return Scale{}, err
	}
	if !svc.CanControl(actor, s) {
		return Scale{}, errNoControl
	}
	if s.Locked {
		return Scale{}, errLocked
	}
	return s, nil
}

func (svc *service) Update(ctx context.Context, actor user.User, id string, us UpdateScale) (Scale, error) {
	s, err := svc.getControlled(ctx, actor, id)
	if err != nil {
		return Scale{}, err
	}
	if us.Sharing == core.SharingPublic && s.Sharing != core.SharingPublic && !actor.IsAdmin() {
		return Scale{}, errNoPublic
	}
	if err := svc.checkTitle(ctx, s.Mode, us.Title, s.ID); err != nil {
		return Scale{}, err
	}
	if len(us.Options) != len(s.Options) {
		count, err := svc.items.CountItemsByScale(ctx, s.ID)
		if err != nil {
			return Scale{}, errors.Wrap(err, "counting items by scale")
		}
		if count > 0 {
			return Scale{}, errOptionCount
		}
	}

	s.Title = us.Title
	s.Options = us.Options
	s.Ideal = us.Ideal
	s.Sharing = us.Sharing
	if us.Expert != nil {
		s.Expert = *us.Expert
	}
	s.UpdatedAt = core.Now()
	return svc.repo.UpdateScale(ctx, s)
}

func (svc *service) Delete(ctx context.Context, actor user.User, id string) error {
	s, err := svc.getControlled(ctx, actor, id)
	if err != nil {
		return err
	}
	count, err := svc.items.CountItemsByScale(ctx, s.ID)
	if err != nil {
		return errors.Wrap(err, "counting items by scale")
	}
	if count > 0 {
		return errInUse
	}
	return svc.repo.DeleteScale(ctx, s.ID)
}

func (svc *service) Copy(ctx context.Context, actor user.User, id string) (Scale, error) {
	s, err := svc.repo.GetScaleByID(ctx, id)
	if err != nil {
		return Scale{}, err
	}
	if !svc.CanUse(actor, s) {
		return Scale{}, errNoControl
	}
	return svc.clone(ctx, actor, s)
}

func (svc *service) CopyAdhoc(ctx context.Context, actor user.User, id string) (Scale, error) {
	s, err := svc.repo.GetScaleByID(ctx, id)
	if err != nil {
		return Scale{}, err
	}
	if s.Mode != ModeAdhoc {
		return Scale{}, errNotAdhoc
	}
	return svc.clone(ctx, actor, s)
}

// clone stores an unlocked private copy of s owned by actor.
func (svc *service) clone(ctx context.Context, actor user.User, s Scale) (Scale, error) {
	title := s.Title
	if s.Mode == ModeScale {
		var err error
		title, err = core.CopyTitle(s.Title, func(t string) (bool, error) {
			count, err := svc.repo.CountScalesByTitle(ctx, t, "")
			return count > 0, err
		})
		if err != nil {
			return Scale{}, errors.Wrap(err, "making copy title")
		}
	}

	now := core.Now()
	return svc.repo.CreateScale(ctx, Scale{
		OwnerID:   actor.ID,
		Title:     title,
		Options:   append([]string(nil), s.Options...),
		Ideal:     s.Ideal,
		Mode:      s.Mode,
		Sharing:   core.SharingPrivate,
		Expert:    s.Expert,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *service) Lock(ctx context.Context, id string) error {
	return svc.repo.SetScaleLocked(ctx, id, true)
}

func (svc *service) Unlock(ctx context.Context, id string) error {
	count, err := svc.items.CountLockedItemsByScale(ctx, id)
	if err != nil {
		return errors.Wrap(err, "counting locked items by scale")
	}
	if count > 0 {
		return nil
	}
	return svc.repo.SetScaleLocked(ctx, id, false)
}
