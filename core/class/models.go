package class

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/schoolms/backend/core"
)

type Subject struct {
	Name      string `json:"name" bson:"name" validate:"required"`
	TeacherID string `json:"teacher,omitempty" bson:"teacher_id,omitempty"`
}

type Class struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Section    string    `json:"section,omitempty"`
	GradeLevel string    `json:"gradeLevel,omitempty"`
	Subjects   []Subject `json:"subjects"`
	StudentIDs []string  `json:"students"`
	CreatedAt  time.Time `json:"createdAt"` // UTC
	UpdatedAt  time.Time `json:"updatedAt"` // UTC
}

// TeacherIDs returns the distinct teachers of the class' subjects.
func (c Class) TeacherIDs() []string {
	seen := make(map[string]struct{}, len(c.Subjects))
	ids := make([]string, 0, len(c.Subjects))
	for _, s := range c.Subjects {
		if s.TeacherID == "" {
			continue
		}
		if _, ok := seen[s.TeacherID]; !ok {
			seen[s.TeacherID] = struct{}{}
			ids = append(ids, s.TeacherID)
		}
	}
	return ids
}

// ClassInput is what an admin supplies to create or replace a Class.
type ClassInput struct {
	Name       string    `json:"name" validate:"required,max=100"`
	Section    string    `json:"section" validate:"max=20"`
	GradeLevel string    `json:"gradeLevel" validate:"max=20"`
	Subjects   []Subject `json:"subjects" validate:"dive"`
	StudentIDs []string  `json:"students"`
}

func (ci *ClassInput) Validate(validate *validator.Validate) error {
	ci.Name = core.CleanString(ci.Name)
	ci.Section = core.CleanString(ci.Section)
	ci.GradeLevel = core.CleanString(ci.GradeLevel)
	for i := range ci.Subjects {
		ci.Subjects[i].Name = core.CleanString(ci.Subjects[i].Name)
		ci.Subjects[i].TeacherID = core.CleanString(ci.Subjects[i].TeacherID)
	}
	return validate.Struct(ci)
}

type QueryFilter struct {
	Search    string `query:"search"`
	TeacherID string `query:"teacher"`
	StudentID string `query:"student"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.TeacherID = core.CleanString(qf.TeacherID)
	qf.StudentID = core.CleanString(qf.StudentID)
}

// OrderingFields are the fields classes can be ordered by.
var OrderingFields = []string{"name", "grade_level", "created_at"}
