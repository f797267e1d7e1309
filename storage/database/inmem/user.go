package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/schoolms/backend/core"
	"github.com/schoolms/backend/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

// query returns copies of the stored users. The caller holds the lock.
func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.table))
	for _, u := range repo.db.table {
		users = append(users, *u)
	}
	return users
}

// checkUniqueness is CheckUniqueness for callers holding the lock.
func (repo *userRepository) checkUniqueness(usr user.User, excludeID string) error {
	empID, stdID := usr.EmployeeID(), usr.StudentID()
	for _, u := range repo.db.table {
		if u.ID == excludeID {
			continue
		}
		switch {
		case u.Email == usr.Email:
			return user.NewDuplicateIdentityError(user.FieldEmail)
		case u.Username == usr.Username:
			return user.NewDuplicateIdentityError(user.FieldUsername)
		case empID != "" && u.EmployeeID() == empID:
			return user.NewDuplicateIdentityError(user.FieldEmployeeID)
		case stdID != "" && u.StudentID() == stdID:
			return user.NewDuplicateIdentityError(user.FieldStudentID)
		}
	}
	return nil
}

func (repo *userRepository) CheckUniqueness(_ context.Context, usr user.User, excludeID string) error {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.checkUniqueness(usr, excludeID)
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if err := repo.checkUniqueness(usr, ""); err != nil {
		return user.User{}, err
	}
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.table[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.db.table {
		switch {
		case filter.Email != "":
			if usr.Email == filter.Email {
				return *usr, nil
			}
		case filter.UsernameOrEmail != "":
			if usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail {
				return *usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) filter(filter user.QueryFilter) []user.User {
	search := strings.ToLower(filter.Search)
	var ids map[string]struct{}
	if filter.IDs != nil {
		ids = make(map[string]struct{}, len(filter.IDs))
		for _, id := range filter.IDs {
			ids[id] = struct{}{}
		}
	}

	users := make([]user.User, 0)
	for _, usr := range repo.query() {
		if search != "" &&
			!strings.Contains(strings.ToLower(usr.Profile.Name), search) &&
			!strings.Contains(usr.Username, search) &&
			!strings.Contains(usr.Email, search) {
			continue
		}
		if len(filter.Roles) > 0 && !hasRole(usr, filter.Roles) {
			continue
		}
		if ids != nil {
			if _, ok := ids[usr.ID]; !ok {
				continue
			}
		}
		users = append(users, usr)
	}
	return users
}

func (repo *userRepository) FilterUsers(_ context.Context, filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := repo.filter(filter)
	sortUsers(users, orderings)
	return users, nil
}

func (repo *userRepository) CountUsers(_ context.Context, filter user.QueryFilter) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.filter(filter)), nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	origUsr, ok := repo.db.table[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	// role info may carry new identity values
	if err := repo.checkUniqueness(user.User{
		Username: usr.Username,
		Email:    usr.Email,
		Role:     origUsr.Role,
		Profile:  usr.Profile,
	}, usr.ID); err != nil {
		return user.User{}, err
	}
	updated := *origUsr
	updated.Username = usr.Username
	updated.Email = usr.Email
	updated.Profile = usr.Profile
	updated.UpdatedAt = usr.UpdatedAt
	repo.db.table[usr.ID] = &updated
	return updated, nil
}

func (repo *userRepository) SetPasswordHash(_ context.Context, id string, hash []byte, updatedAt time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr, ok := repo.db.table[id]
	if !ok {
		return user.ErrNotFound
	}
	updated := *usr
	updated.PasswordHash = hash
	updated.ResetToken = nil
	updated.UpdatedAt = updatedAt
	repo.db.table[id] = &updated
	return nil
}

func (repo *userRepository) SetResetToken(_ context.Context, id string, token user.ResetToken) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr, ok := repo.db.table[id]
	if !ok {
		return user.ErrNotFound
	}
	updated := *usr
	updated.ResetToken = &token
	repo.db.table[id] = &updated
	return nil
}

func (repo *userRepository) ResetPassword(_ context.Context, tokenHash string, now time.Time, hash []byte) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for id, usr := range repo.db.table {
		if usr.ResetToken == nil || usr.ResetToken.Hash != tokenHash || !usr.ResetToken.ExpiresAt.After(now) {
			continue
		}
		updated := *usr
		updated.PasswordHash = hash
		updated.ResetToken = nil
		updated.UpdatedAt = now
		repo.db.table[id] = &updated
		return updated, nil
	}
	return user.User{}, user.ErrResetTokenInvalid
}

func (repo *userRepository) SetLastLogin(_ context.Context, id string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr, ok := repo.db.table[id]
	if !ok {
		return user.ErrNotFound
	}
	updated := *usr
	updated.LastLogin = &at
	repo.db.table[id] = &updated
	return nil
}

func (repo *userRepository) DeleteUser(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return user.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}

func hasRole(usr user.User, roles []user.Role) bool {
	for _, r := range roles {
		if usr.Role == r {
			return true
		}
	}
	return false
}

func sortUsers(users []user.User, orderings []core.DBOrdering) {
	if len(orderings) == 0 {
		orderings = []core.DBOrdering{{Field: "created_at", Ascending: true}}
	}
	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range orderings {
			var cmp int
			switch ord.Field {
			case "username":
				cmp = strings.Compare(users[i].Username, users[j].Username)
			case "email":
				cmp = strings.Compare(users[i].Email, users[j].Email)
			case "created_at":
				cmp = users[i].CreatedAt.Compare(users[j].CreatedAt)
			}
			if cmp != 0 {
				return (cmp < 0) == ord.Ascending
			}
		}
		return false
	})
}
