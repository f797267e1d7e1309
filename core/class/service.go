package class

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/schoolms/backend/core"
	"github.com/schoolms/backend/core/user"
)

var ErrNotFound = errors.New("class not found")

type (
	Repository interface {
		CreateClass(ctx context.Context, cls Class) (Class, error)
		GetClass(ctx context.Context, id string) (Class, error)
		FilterClasses(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Class, error)
		UpdateClass(ctx context.Context, cls Class) (Class, error)
		DeleteClass(ctx context.Context, id string) error
	}

	// UserResolver checks that user ids refer to users of a given role.
	UserResolver interface {
		MissingWithRole(ctx context.Context, role user.Role, ids ...string) ([]string, error)
	}

	Service struct {
		repo  Repository
		users UserResolver
		now   func() time.Time
	}
)

func NewService(repo Repository, users UserResolver) *Service {
	return &Service{
		repo:  repo,
		users: users,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create validates the teacher and student references of ci and saves a new Class. ci must be validated.
func (svc *Service) Create(ctx context.Context, ci ClassInput) (Class, error) {
	now := svc.now()
	cls := Class{ID: uuid.NewString(), CreatedAt: now}
	ci.applyTo(&cls, now)
	if err := svc.checkReferences(ctx, cls); err != nil {
		return Class{}, err
	}
	cls, err := svc.repo.CreateClass(ctx, cls)
	return cls, errors.Wrap(err, "creating class")
}

func (svc *Service) GetByID(ctx context.Context, id string) (Class, error) {
	if id == "" {
		return Class{}, ErrNotFound
	}
	return svc.repo.GetClass(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Class, error) {
	return svc.repo.FilterClasses(ctx, filter, orderings...)
}

// Update replaces the class' attributes with ci, re-validating references. ci must be validated.
func (svc *Service) Update(ctx context.Context, id string, ci ClassInput) (Class, error) {
	cls, err := svc.GetByID(ctx, id)
	if err != nil {
		return Class{}, err
	}
	ci.applyTo(&cls, svc.now())
	if err := svc.checkReferences(ctx, cls); err != nil {
		return Class{}, err
	}
	cls, err = svc.repo.UpdateClass(ctx, cls)
	return cls, errors.Wrap(err, "updating class")
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteClass(ctx, id)
}

func (svc *Service) checkReferences(ctx context.Context, cls Class) error {
	var flds []core.FieldError

	missing, err := svc.users.MissingWithRole(ctx, user.RoleTeacher, cls.TeacherIDs()...)
	if err != nil {
		return errors.Wrap(err, "resolving teachers")
	}
	if len(missing) > 0 {
		flds = append(flds, core.FieldError{Field: "subjects", Error: "unknown teacher(s): " + strings.Join(missing, ", ")})
	}

	missing, err = svc.users.MissingWithRole(ctx, user.RoleStudent, cls.StudentIDs...)
	if err != nil {
		return errors.Wrap(err, "resolving students")
	}
	if len(missing) > 0 {
		flds = append(flds, core.FieldError{Field: "students", Error: "unknown student(s): " + strings.Join(missing, ", ")})
	}

	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

func (ci ClassInput) applyTo(cls *Class, now time.Time) {
	cls.Name = ci.Name
	cls.Section = ci.Section
	cls.GradeLevel = ci.GradeLevel
	cls.Subjects = ci.Subjects
	if cls.Subjects == nil {
		cls.Subjects = []Subject{}
	}
	cls.StudentIDs = ci.StudentIDs
	if cls.StudentIDs == nil {
		cls.StudentIDs = []string{}
	}
	cls.UpdatedAt = now
}
