package inmemdb

import (
	"cmp"
	"context"
	"strings"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/group"
)

var groupComparators = comparators[group.Group]{
	"title":      func(a, b group.Group) int { return cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)) },
	"type":       func(a, b group.Group) int { return cmp.Compare(a.Type, b.Type) },
	"created_at": func(a, b group.Group) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
}

func groupsByCreation(a, b group.Group) int { return byCreation(a.CreatedAt, b.CreatedAt, a.ID, b.ID) }

type groupRepository struct {
	db *DB
}

var _ group.Repository = (*groupRepository)(nil)

func NewGroupRepository(db *DB) group.Repository {
	return &groupRepository{db: db}
}

func membershipKey(groupID, userID string) string {
	return groupID + "/" + userID
}

func (repo *groupRepository) CreateGroup(_ context.Context, grp group.Group) (group.Group, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	grp.ID = newID()
	repo.db.groups[grp.ID] = grp
	return grp, nil
}

func (repo *groupRepository) GetGroupByID(_ context.Context, id string) (group.Group, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if grp, ok := repo.db.groups[id]; ok {
		return grp, nil
	}
	return group.Group{}, group.ErrNotFound
}

func (repo *groupRepository) GetGroupsByID(_ context.Context, ids ...string) ([]group.Group, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	grps := make([]group.Group, 0, len(ids))
	for _, id := range ids {
		if grp, ok := repo.db.groups[id]; ok {
			grps = append(grps, grp)
		}
	}
	sortRecords(grps, nil, nil, groupsByCreation)
	return grps, nil
}

func (repo *groupRepository) FilterGroups(_ context.Context, filter group.QueryFilter, ordering ...core.DBOrdering) ([]group.Group, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	grps := values(repo.db.groups, filter.Match)
	sortRecords(grps, ordering, groupComparators, groupsByCreation)
	return grps, nil
}

func (repo *groupRepository) UpdateGroup(_ context.Context, grp group.Group) (group.Group, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.groups[grp.ID]; !ok {
		return group.Group{}, group.ErrNotFound
	}
	repo.db.groups[grp.ID] = grp
	return grp, nil
}

func (repo *groupRepository) DeleteGroup(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.groups, id)
	for key, m := range repo.db.memberships {
		if m.GroupID == id {
			delete(repo.db.memberships, key)
		}
	}
	return nil
}

func (repo *groupRepository) SaveMembership(_ context.Context, m group.Membership) (group.Membership, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := membershipKey(m.GroupID, m.UserID)
	if orig, ok := repo.db.memberships[key]; ok {
		m.CreatedAt = orig.CreatedAt
	}
	repo.db.memberships[key] = m
	return m, nil
}

func (repo *groupRepository) GetMembership(_ context.Context, groupID, userID string) (group.Membership, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if m, ok := repo.db.memberships[membershipKey(groupID, userID)]; ok {
		return m, nil
	}
	return group.Membership{}, group.ErrNotMember
}

func (repo *groupRepository) DeleteMembership(_ context.Context, groupID, userID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.memberships, membershipKey(groupID, userID))
	return nil
}

func (repo *groupRepository) members(groupID, role string) []group.Membership {
	return values(repo.db.memberships, func(m group.Membership) bool {
		return m.GroupID == groupID && (role == "" || m.Role == role)
	})
}

func (repo *groupRepository) ListMemberships(_ context.Context, groupID, role string) ([]group.Membership, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ms := repo.members(groupID, role)
	sortRecords(ms, nil, nil, func(a, b group.Membership) int {
		return byCreation(a.CreatedAt, b.CreatedAt, a.UserID, b.UserID)
	})
	return ms, nil
}

func (repo *groupRepository) CountMemberships(_ context.Context, groupID, role string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return len(repo.members(groupID, role)), nil
}

func (repo *groupRepository) ListGroupsForUser(_ context.Context, userID, role string) ([]group.Group, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var grps []group.Group
	for _, m := range repo.db.memberships {
		if m.UserID != userID || (role != "" && m.Role != role) {
			continue
		}
		if grp, ok := repo.db.groups[m.GroupID]; ok {
			grps = append(grps, grp)
		}
	}
	sortRecords(grps, nil, nil, groupsByCreation)
	return grps, nil
}
