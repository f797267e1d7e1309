package mongorepos

import (
	"context"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/schoolms/backend/core"
	"github.com/schoolms/backend/core/class"
	"github.com/schoolms/backend/storage/database"
)

type (
	classDoc struct {
		ID         string          `bson:"_id"`
		Name       string          `bson:"name"`
		Section    string          `bson:"section"`
		GradeLevel string          `bson:"grade_level"`
		Subjects   []class.Subject `bson:"subjects"`
		StudentIDs []string        `bson:"student_ids"`
		CreatedAt  time.Time       `bson:"created_at"`
		UpdatedAt  time.Time       `bson:"updated_at"`
	}

	classRepository struct {
		coll *mongo.Collection
	}
)

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(db *mongo.Database) class.Repository {
	return &classRepository{coll: db.Collection(database.ClassesCollection)}
}

func toClassDoc(cls class.Class) classDoc {
	return classDoc{
		ID:         cls.ID,
		Name:       cls.Name,
		Section:    cls.Section,
		GradeLevel: cls.GradeLevel,
		Subjects:   cls.Subjects,
		StudentIDs: cls.StudentIDs,
		CreatedAt:  cls.CreatedAt,
		UpdatedAt:  cls.UpdatedAt,
	}
}

func (doc classDoc) class() class.Class {
	cls := class.Class{
		ID:         doc.ID,
		Name:       doc.Name,
		Section:    doc.Section,
		GradeLevel: doc.GradeLevel,
		Subjects:   doc.Subjects,
		StudentIDs: doc.StudentIDs,
		CreatedAt:  doc.CreatedAt.UTC(),
		UpdatedAt:  doc.UpdatedAt.UTC(),
	}
	if cls.Subjects == nil {
		cls.Subjects = []class.Subject{}
	}
	if cls.StudentIDs == nil {
		cls.StudentIDs = []string{}
	}
	return cls
}

func (repo *classRepository) CreateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	if _, err := repo.coll.InsertOne(ctx, toClassDoc(cls)); err != nil {
		return class.Class{}, errors.Wrap(err, "inserting class")
	}
	return cls, nil
}

func (repo *classRepository) GetClass(ctx context.Context, id string) (class.Class, error) {
	var doc classDoc
	if err := repo.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return class.Class{}, trapNoDocsErr(err, class.ErrNotFound, "finding class")
	}
	return doc.class(), nil
}

func (repo *classRepository) FilterClasses(ctx context.Context, filter class.QueryFilter, orderings ...core.DBOrdering) ([]class.Class, error) {
	q := bson.M{}
	if filter.Search != "" {
		q["name"] = primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
	}
	if filter.TeacherID != "" {
		q["subjects.teacher_id"] = filter.TeacherID
	}
	if filter.StudentID != "" {
		q["student_ids"] = filter.StudentID
	}

	cur, err := repo.coll.Find(ctx, q, options.Find().SetSort(sortDoc(orderings)))
	if err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	var docs []classDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding classes")
	}
	classes := make([]class.Class, 0, len(docs))
	for _, doc := range docs {
		classes = append(classes, doc.class())
	}
	return classes, nil
}

func (repo *classRepository) UpdateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	res, err := repo.coll.ReplaceOne(ctx, bson.M{"_id": cls.ID}, toClassDoc(cls))
	if err != nil {
		return class.Class{}, errors.Wrap(err, "updating class")
	}
	if res.MatchedCount == 0 {
		return class.Class{}, class.ErrNotFound
	}
	return cls, nil
}

func (repo *classRepository) DeleteClass(ctx context.Context, id string) error {
	res, err := repo.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "deleting class")
	}
	if res.DeletedCount == 0 {
		return class.ErrNotFound
	}
	return nil
}
