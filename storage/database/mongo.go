package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/schoolms/backend/core"
)

const (
	UsersCollection   = "users"
	ClassesCollection = "classes"

	// unique index names; a duplicate key error names the violated one
	UsernameIndex   = "username_unique"
	EmailIndex      = "email_unique"
	EmployeeIDIndex = "employee_id_unique"
	StudentIDIndex  = "student_id_unique"
)

// OpenMongo connects to the configured mongo server and returns the application database.
func OpenMongo(ctx context.Context, conf *core.Config) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(conf.Database.URI))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "pinging mongo")
	}
	return client.Database(conf.Database.Name), nil
}

// EnsureIndexes creates the indexes backing identity uniqueness and common lookups.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	users := []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetName(UsernameIndex).SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetName(EmailIndex).SetUnique(true)},
		{
			Keys: bson.D{{Key: "profile.teacher_info.employee_id", Value: 1}},
			Options: options.Index().SetName(EmployeeIDIndex).SetUnique(true).SetPartialFilterExpression(bson.M{
				"role":                             "teacher",
				"profile.teacher_info.employee_id": bson.M{"$exists": true},
			}),
		},
		{
			Keys: bson.D{{Key: "profile.student_info.student_id", Value: 1}},
			Options: options.Index().SetName(StudentIDIndex).SetUnique(true).SetPartialFilterExpression(bson.M{
				"role":                            "student",
				"profile.student_info.student_id": bson.M{"$exists": true},
			}),
		},
		{Keys: bson.D{{Key: "role", Value: 1}}},
		{Keys: bson.D{{Key: "reset_token.hash", Value: 1}}, Options: options.Index().SetSparse(true)},
	}
	if _, err := db.Collection(UsersCollection).Indexes().CreateMany(ctx, users); err != nil {
		return errors.Wrap(err, "creating user indexes")
	}

	classes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "student_ids", Value: 1}}},
		{Keys: bson.D{{Key: "subjects.teacher_id", Value: 1}}},
	}
	if _, err := db.Collection(ClassesCollection).Indexes().CreateMany(ctx, classes); err != nil {
		return errors.Wrap(err, "creating class indexes")
	}
	return nil
}
