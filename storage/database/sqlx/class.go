package sqlxrepos

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/schoolms/backend/core"
	"github.com/schoolms/backend/core/class"
)

const classesTable = "classes"

type (
	classRow struct {
		ID         string         `db:"id"`
		Name       string         `db:"name"`
		Section    string         `db:"section"`
		GradeLevel string         `db:"grade_level"`
		Subjects   subjectsJSON   `db:"subjects"`
		StudentIDs pq.StringArray `db:"student_ids"`
		CreatedAt  time.Time      `db:"created_at"`
		UpdatedAt  time.Time      `db:"updated_at"`
	}

	subjectsJSON []class.Subject

	classRepository struct {
		db sqlx.ExtContext
	}
)

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(db sqlx.ExtContext) class.Repository {
	return &classRepository{db: db}
}

func (s subjectsJSON) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]class.Subject(s))
}

func (s *subjectsJSON) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, (*[]class.Subject)(s))
	case string:
		return json.Unmarshal([]byte(v), (*[]class.Subject)(s))
	case nil:
		*s = nil
		return nil
	}
	return errors.Errorf("unsupported subjects type %T", src)
}

func toClassRow(cls class.Class) classRow {
	return classRow{
		ID:         cls.ID,
		Name:       cls.Name,
		Section:    cls.Section,
		GradeLevel: cls.GradeLevel,
		Subjects:   subjectsJSON(cls.Subjects),
		StudentIDs: pq.StringArray(cls.StudentIDs),
		CreatedAt:  cls.CreatedAt.UTC(),
		UpdatedAt:  cls.UpdatedAt.UTC(),
	}
}

func (row classRow) class() class.Class {
	cls := class.Class{
		ID:         row.ID,
		Name:       row.Name,
		Section:    row.Section,
		GradeLevel: row.GradeLevel,
		Subjects:   []class.Subject(row.Subjects),
		StudentIDs: []string(row.StudentIDs),
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
	if cls.Subjects == nil {
		cls.Subjects = []class.Subject{}
	}
	if cls.StudentIDs == nil {
		cls.StudentIDs = []string{}
	}
	return cls
}

func (row classRow) values() map[string]interface{} {
	return map[string]interface{}{
		"name":        row.Name,
		"section":     row.Section,
		"grade_level": row.GradeLevel,
		"subjects":    row.Subjects,
		"student_ids": row.StudentIDs,
		"updated_at":  row.UpdatedAt,
	}
}

func (repo *classRepository) CreateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	row := toClassRow(cls)
	vals := row.values()
	vals["id"] = row.ID
	vals["created_at"] = row.CreatedAt

	query, args, err := psql.Insert(classesTable).SetMap(vals).ToSql()
	if err != nil {
		return class.Class{}, errors.Wrap(err, "building query")
	}
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return class.Class{}, errors.Wrap(err, "inserting class")
	}
	return cls, nil
}

func (repo *classRepository) GetClass(ctx context.Context, id string) (class.Class, error) {
	if _, err := uuid.Parse(id); err != nil {
		return class.Class{}, class.ErrNotFound
	}
	query, args, err := psql.Select("*").From(classesTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return class.Class{}, errors.Wrap(err, "building query")
	}
	var row classRow
	if err := sqlx.GetContext(ctx, repo.db, &row, query, args...); err != nil {
		return class.Class{}, trapNoRowsErr(err, class.ErrNotFound, "finding class")
	}
	return row.class(), nil
}

func (repo *classRepository) FilterClasses(ctx context.Context, filter class.QueryFilter, orderings ...core.DBOrdering) ([]class.Class, error) {
	qb := psql.Select("*").From(classesTable)
	if filter.Search != "" {
		qb = qb.Where(sq.ILike{"name": "%" + filter.Search + "%"})
	}
	if filter.TeacherID != "" {
		qb = qb.Where("subjects @> ?::jsonb", `[{"teacher":"`+jsonEscape(filter.TeacherID)+`"}]`)
	}
	if filter.StudentID != "" {
		qb = qb.Where("? = ANY(student_ids)", filter.StudentID)
	}
	if len(orderings) == 0 {
		orderings = []core.DBOrdering{{Field: "created_at", Ascending: true}}
	}
	for _, ord := range orderings {
		qb = qb.OrderBy(ord.String())
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []classRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]class.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, row.class())
	}
	return classes, nil
}

func (repo *classRepository) UpdateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	if _, err := uuid.Parse(cls.ID); err != nil {
		return class.Class{}, class.ErrNotFound
	}
	query, args, err := psql.Update(classesTable).
		SetMap(toClassRow(cls).values()).
		Where(sq.Eq{"id": cls.ID}).
		ToSql()
	if err != nil {
		return class.Class{}, errors.Wrap(err, "building query")
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return class.Class{}, errors.Wrap(err, "updating class")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return class.Class{}, class.ErrNotFound
	}
	return cls, nil
}

func (repo *classRepository) DeleteClass(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return class.ErrNotFound
	}
	query, args, err := psql.Delete(classesTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "deleting class")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return class.ErrNotFound
	}
	return nil
}

func jsonEscape(s string) string {
	b, _ := json.Marshal(s)
	return string(b[1 : len(b)-1])
}
