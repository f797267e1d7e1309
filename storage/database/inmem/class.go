package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/schoolms/backend/core"
	"github.com/schoolms/backend/core/class"
)

type classRepository struct {
	db *classTable
}

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(db *DB) class.Repository {
	return &classRepository{db: db.class}
}

func (repo *classRepository) CreateClass(_ context.Context, cls class.Class) (class.Class, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.table[cls.ID] = &cls
	return cls, nil
}

func (repo *classRepository) GetClass(_ context.Context, id string) (class.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if cls, ok := repo.db.table[id]; ok {
		return *cls, nil
	}
	return class.Class{}, class.ErrNotFound
}

func (repo *classRepository) FilterClasses(_ context.Context, filter class.QueryFilter, orderings ...core.DBOrdering) ([]class.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	search := strings.ToLower(filter.Search)
	classes := make([]class.Class, 0)
	for _, cls := range repo.db.table {
		if search != "" && !strings.Contains(strings.ToLower(cls.Name), search) {
			continue
		}
		if filter.TeacherID != "" && !contains(cls.TeacherIDs(), filter.TeacherID) {
			continue
		}
		if filter.StudentID != "" && !contains(cls.StudentIDs, filter.StudentID) {
			continue
		}
		classes = append(classes, *cls)
	}

	if len(orderings) == 0 {
		orderings = []core.DBOrdering{{Field: "created_at", Ascending: true}}
	}
	sort.SliceStable(classes, func(i, j int) bool {
		for _, ord := range orderings {
			var cmp int
			switch ord.Field {
			case "name":
				cmp = strings.Compare(classes[i].Name, classes[j].Name)
			case "grade_level":
				cmp = strings.Compare(classes[i].GradeLevel, classes[j].GradeLevel)
			case "created_at":
				cmp = classes[i].CreatedAt.Compare(classes[j].CreatedAt)
			}
			if cmp != 0 {
				return (cmp < 0) == ord.Ascending
			}
		}
		return false
	})
	return classes, nil
}

func (repo *classRepository) UpdateClass(_ context.Context, cls class.Class) (class.Class, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if _, ok := repo.db.table[cls.ID]; !ok {
		return class.Class{}, class.ErrNotFound
	}
	repo.db.table[cls.ID] = &cls
	return cls, nil
}

func (repo *classRepository) DeleteClass(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if _, ok := repo.db.table[id]; !ok {
		return class.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
