package inmemdb

import (
	"cmp"
	"context"
	"strings"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/user"
)

var userComparators = comparators[user.User]{
	"name":       func(a, b user.User) int { return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)) },
	"username":   func(a, b user.User) int { return cmp.Compare(a.Username, b.Username) },
	"email":      func(a, b user.User) int { return cmp.Compare(a.Email, b.Email) },
	"created_at": func(a, b user.User) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
	"last_login": func(a, b user.User) int { return compareTimes(a.LastLogin, b.LastLogin) },
}

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func copyUser(usr user.User) user.User {
	usr.Roles = copyStrings(usr.Roles)
	if usr.PasswordHash != nil {
		usr.PasswordHash = append([]byte(nil), usr.PasswordHash...)
	}
	return usr
}

func (repo *userRepository) query(keep func(user.User) bool, ordering ...core.DBOrdering) []user.User {
	users := values(repo.db.users, keep)
	for i := range users {
		users[i] = copyUser(users[i])
	}
	sortRecords(users, ordering, userComparators, func(a, b user.User) int {
		return byCreation(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return users
}

func (repo *userRepository) find(match func(user.User) bool) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.db.users {
		if match(usr) {
			return copyUser(usr), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, usr := range excludedUsers {
		excluded[usr.ID] = true
	}
	for _, usr := range repo.db.users {
		if excluded[usr.ID] {
			continue
		}
		if usr.Username == username {
			return user.ErrUsernameExists
		}
		if usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr.ID = newID()
	usr = copyUser(usr)
	repo.db.users[usr.ID] = usr
	return copyUser(usr), nil
}

func (repo *userRepository) QueryAllUsers(context.Context) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.query(nil), nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id string) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if usr, ok := repo.db.users[id]; ok {
		return copyUser(usr), nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsername(_ context.Context, username string) (user.User, error) {
	return repo.find(func(usr user.User) bool { return usr.Username == username })
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	return repo.find(func(usr user.User) bool { return usr.Email == email })
}

func (repo *userRepository) GetUserByUsernameOrEmail(_ context.Context, username string) (user.User, error) {
	return repo.find(func(usr user.User) bool { return usr.Username == username || usr.Email == username })
}

func (repo *userRepository) FilterUsers(_ context.Context, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.query(filter.Match, ordering...), nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, isActive *bool) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	// only save set fields
	orig, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if usr.Roles != nil {
		orig.Roles = copyStrings(usr.Roles)
	}
	if usr.PasswordHash != nil {
		orig.PasswordHash = append([]byte(nil), usr.PasswordHash...)
	}
	if isActive != nil {
		orig.IsActive = *isActive
	}
	orig.Name = usr.Name
	orig.Username = usr.Username
	orig.Email = usr.Email
	orig.UpdatedAt = usr.UpdatedAt
	orig.LastLogin = usr.LastLogin

	repo.db.users[usr.ID] = orig
	return copyUser(orig), nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for _, id := range ids {
		delete(repo.db.users, id)
	}
	return nil
}
