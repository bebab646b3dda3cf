package group

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/user"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("group")
	ErrNotMember      = core.NewNotFoundError("group membership")
	errAdminOnly      = core.NewPermissionError("only admins can manage groups")
	errGroupAssigned  = core.NewStateError("this group is assigned to evaluations and cannot be deleted")
	errInactiveMember = core.NewFieldError("user_id", "inactive users cannot join a group")
)

type (
	Repository interface {
		CreateGroup(ctx context.Context, grp Group) (Group, error)
		GetGroupByID(ctx context.Context, id string) (Group, error)
		GetGroupsByID(ctx context.Context, ids ...string) ([]Group, error)
		FilterGroups(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Group, error)
		UpdateGroup(ctx context.Context, grp Group) (Group, error)
		DeleteGroup(ctx context.Context, id string) error

		// SaveMembership inserts the membership or updates the role of an existing one.
		SaveMembership(ctx context.Context, m Membership) (Membership, error)
		GetMembership(ctx context.Context, groupID, userID string) (Membership, error)
		DeleteMembership(ctx context.Context, groupID, userID string) error
		// ListMemberships lists the memberships of a group; an empty role lists all of them.
		ListMemberships(ctx context.Context, groupID, role string) ([]Membership, error)
		CountMemberships(ctx context.Context, groupID, role string) (int, error)
		// ListGroupsForUser lists the groups where userID holds role; an empty role lists all of them.
		ListGroupsForUser(ctx context.Context, userID, role string) ([]Group, error)
	}

	// AssignmentCounter counts the evaluations a group is assigned to.
	AssignmentCounter interface {
		CountAssignGroupsByGroup(ctx context.Context, groupID string) (int, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service interface {
		Create(ctx context.Context, actor user.User, ng NewGroup) (Group, error)
		GetByID(ctx context.Context, id string) (Group, error)
		GetByIDs(ctx context.Context, ids ...string) ([]Group, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Group, error)
		Update(ctx context.Context, actor user.User, id string, ug UpdateGroup) (Group, error)
		Delete(ctx context.Context, actor user.User, id string) error

		AddMember(ctx context.Context, actor user.User, groupID string, nm NewMember) (Membership, error)
		RemoveMember(ctx context.Context, actor user.User, groupID, userID string) error
		Members(ctx context.Context, groupID, role string) ([]Membership, error)
		CountMembers(ctx context.Context, groupID, role string) (int, error)
		GroupsForUser(ctx context.Context, userID, role string) ([]Group, error)
		IsInstructor(ctx context.Context, userID, groupID string) (bool, error)
		IsStudent(ctx context.Context, userID, groupID string) (bool, error)
	}

	service struct {
		repo     Repository
		users    UserGetter
		assigned AssignmentCounter
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, users UserGetter, assigned AssignmentCounter) Service {
	return &service{repo: repo, users: users, assigned: assigned}
}

func (svc *service) Create(ctx context.Context, actor user.User, ng NewGroup) (Group, error) {
	if !actor.IsAdmin() {
		return Group{}, errAdminOnly
	}
	now := core.Now()
	return svc.repo.CreateGroup(ctx, Group{
		Title:     ng.Title,
		Type:      ng.Type,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *service) GetByID(ctx context.Context, id string) (Group, error) {
	return svc.repo.GetGroupByID(ctx, id)
}

func (svc *service) GetByIDs(ctx context.Context, ids ...string) ([]Group, error) {
	return svc.repo.GetGroupsByID(ctx, ids...)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Group, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	return svc.repo.FilterGroups(ctx, *filter, ordering...)
}

func (svc *service) Update(ctx context.Context, actor user.User, id string, ug UpdateGroup) (Group, error) {
	if !actor.IsAdmin() {
		return Group{}, errAdminOnly
	}
	grp, err := svc.repo.GetGroupByID(ctx, id)
	if err != nil {
		return Group{}, err
	}
	grp.Title = ug.Title
	grp.Type = ug.Type
	grp.UpdatedAt = core.Now()
	return svc.repo.UpdateGroup(ctx, grp)
}

func (svc *service) Delete(ctx context.Context, actor user.User, id string) error {
	if !actor.IsAdmin() {
		return errAdminOnly
	}
	if _, err := svc.repo.GetGroupByID(ctx, id); err != nil {
		return err
	}
	count, err := svc.assigned.CountAssignGroupsByGroup(ctx, id)
	if err != nil {
		return errors.Wrap(err, "counting group assignments")
	}
	if count > 0 {
		return errGroupAssigned
	}
	return svc.repo.DeleteGroup(ctx, id)
}

func (svc *service) AddMember(ctx context.Context, actor user.User, groupID string, nm NewMember) (Membership, error) {
	if !actor.IsAdmin() {
		return Membership{}, errAdminOnly
	}
	if _, err := svc.repo.GetGroupByID(ctx, groupID); err != nil {
		return Membership{}, err
	}
	usr, err := svc.users.GetByID(ctx, nm.UserID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Membership{}, core.NewFieldError("user_id", err.Error())
		}
		return Membership{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return Membership{}, errInactiveMember
	}
	return svc.repo.SaveMembership(ctx, Membership{
		GroupID:   groupID,
		UserID:    usr.ID,
		Role:      nm.Role,
		CreatedAt: core.Now(),
	})
}

func (svc *service) RemoveMember(ctx context.Context, actor user.User, groupID, userID string) error {
	if !actor.IsAdmin() {
		return errAdminOnly
	}
	if _, err := svc.repo.GetMembership(ctx, groupID, userID); err != nil {
		return err
	}
	return svc.repo.DeleteMembership(ctx, groupID, userID)
}

func (svc *service) Members(ctx context.Context, groupID, role string) ([]Membership, error) {
	return svc.repo.ListMemberships(ctx, groupID, role)
}

func (svc *service) CountMembers(ctx context.Context, groupID, role string) (int, error) {
	return svc.repo.CountMemberships(ctx, groupID, role)
}

func (svc *service) GroupsForUser(ctx context.Context, userID, role string) ([]Group, error) {
	return svc.repo.ListGroupsForUser(ctx, userID, role)
}

func (svc *service) hasRole(ctx context.Context, userID, groupID, role string) (bool, error) {
	m, err := svc.repo.GetMembership(ctx, groupID, userID)
	if err != nil {
		if errors.Cause(err) == ErrNotMember {
			return false, nil
		}
		return false, err
	}
	return m.Role == role, nil
}

func (svc *service) IsInstructor(ctx context.Context, userID, groupID string) (bool, error) {
	return svc.hasRole(ctx, userID, groupID, RoleInstructor)
}

func (svc *service) IsStudent(ctx context.Context, userID, groupID string) (bool, error) {
	return svc.hasRole(ctx, userID, groupID, RoleStudent)
}
