package mongorepos

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/schoolms/backend/core"
	"github.com/schoolms/backend/core/user"
	"github.com/schoolms/backend/storage/database"
)

type (
	userDoc struct {
		ID           string         `bson:"_id"`
		Username     string         `bson:"username"`
		Email        string         `bson:"email"`
		Role         user.Role      `bson:"role"`
		PasswordHash []byte         `bson:"password_hash"`
		Profile      user.Profile   `bson:"profile"`
		ResetToken   *resetTokenDoc `bson:"reset_token,omitempty"`
		CreatedAt    time.Time      `bson:"created_at"`
		UpdatedAt    time.Time      `bson:"updated_at"`
		LastLogin    *time.Time     `bson:"last_login,omitempty"`
	}

	resetTokenDoc struct {
		Hash      string    `bson:"hash"`
		ExpiresAt time.Time `bson:"expires_at"`
	}

	userRepository struct {
		coll *mongo.Collection
	}
)

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *mongo.Database) user.Repository {
	return &userRepository{coll: db.Collection(database.UsersCollection)}
}

func toUserDoc(usr user.User) userDoc {
	doc := userDoc{
		ID:           usr.ID,
		Username:     usr.Username,
		Email:        usr.Email,
		Role:         usr.Role,
		PasswordHash: usr.PasswordHash,
		Profile:      usr.Profile,
		CreatedAt:    usr.CreatedAt,
		UpdatedAt:    usr.UpdatedAt,
		LastLogin:    usr.LastLogin,
	}
	if usr.ResetToken != nil {
		doc.ResetToken = &resetTokenDoc{Hash: usr.ResetToken.Hash, ExpiresAt: usr.ResetToken.ExpiresAt}
	}
	return doc
}

func (doc userDoc) user() user.User {
	usr := user.User{
		ID:           doc.ID,
		Username:     doc.Username,
		Email:        doc.Email,
		Role:         doc.Role,
		PasswordHash: doc.PasswordHash,
		Profile:      doc.Profile,
		CreatedAt:    doc.CreatedAt.UTC(),
		UpdatedAt:    doc.UpdatedAt.UTC(),
	}
	if doc.LastLogin != nil {
		ll := doc.LastLogin.UTC()
		usr.LastLogin = &ll
	}
	if doc.ResetToken != nil {
		usr.ResetToken = &user.ResetToken{Hash: doc.ResetToken.Hash, ExpiresAt: doc.ResetToken.ExpiresAt.UTC()}
	}
	return usr
}

// trapDuplicateErr maps a unique index violation to the identity field it guards.
func trapDuplicateErr(err error, msg string) error {
	if !mongo.IsDuplicateKeyError(err) {
		return errors.Wrap(err, msg)
	}
	text := err.Error()
	switch {
	case strings.Contains(text, database.UsernameIndex):
		return user.NewDuplicateIdentityError(user.FieldUsername)
	case strings.Contains(text, database.EmailIndex):
		return user.NewDuplicateIdentityError(user.FieldEmail)
	case strings.Contains(text, database.EmployeeIDIndex):
		return user.NewDuplicateIdentityError(user.FieldEmployeeID)
	case strings.Contains(text, database.StudentIDIndex):
		return user.NewDuplicateIdentityError(user.FieldStudentID)
	}
	return errors.Wrap(user.ErrDuplicateIdentity, msg)
}

// trapNoDocsErr maps mongo "no documents" err to `target`
func trapNoDocsErr(err error, target error, msg string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return target
	}
	return errors.Wrap(err, msg)
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, usr user.User, excludeID string) error {
	or := bson.A{
		bson.M{"username": usr.Username},
		bson.M{"email": usr.Email},
	}
	if empID := usr.EmployeeID(); empID != "" {
		or = append(or, bson.M{"role": user.RoleTeacher, "profile.teacher_info.employee_id": empID})
	}
	if stdID := usr.StudentID(); stdID != "" {
		or = append(or, bson.M{"role": user.RoleStudent, "profile.student_info.student_id": stdID})
	}
	filter := bson.M{"$or": or}
	if excludeID != "" {
		filter["_id"] = bson.M{"$ne": excludeID}
	}

	var doc userDoc
	if err := repo.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil
		}
		return errors.Wrap(err, "checking user uniqueness")
	}
	other := doc.user()
	switch {
	case other.Email == usr.Email:
		return user.NewDuplicateIdentityError(user.FieldEmail)
	case other.Username == usr.Username:
		return user.NewDuplicateIdentityError(user.FieldUsername)
	case usr.EmployeeID() != "" && other.EmployeeID() == usr.EmployeeID():
		return user.NewDuplicateIdentityError(user.FieldEmployeeID)
	default:
		return user.NewDuplicateIdentityError(user.FieldStudentID)
	}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if _, err := repo.coll.InsertOne(ctx, toUserDoc(usr)); err != nil {
		return user.User{}, trapDuplicateErr(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var q bson.M
	switch {
	case filter.ID != "":
		q = bson.M{"_id": filter.ID}
	case filter.Email != "":
		q = bson.M{"email": filter.Email}
	case filter.UsernameOrEmail != "":
		q = bson.M{"$or": bson.A{
			bson.M{"username": filter.UsernameOrEmail},
			bson.M{"email": filter.UsernameOrEmail},
		}}
	default:
		return user.User{}, user.ErrNotFound
	}

	var doc userDoc
	if err := repo.coll.FindOne(ctx, q).Decode(&doc); err != nil {
		return user.User{}, trapNoDocsErr(err, user.ErrNotFound, "finding user")
	}
	return doc.user(), nil
}

func userQuery(filter user.QueryFilter) bson.M {
	q := bson.M{}
	if filter.Search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		q["$or"] = bson.A{
			bson.M{"profile.name": re},
			bson.M{"username": re},
			bson.M{"email": re},
		}
	}
	if len(filter.Roles) > 0 {
		q["role"] = bson.M{"$in": filter.Roles}
	}
	if filter.IDs != nil {
		q["_id"] = bson.M{"$in": filter.IDs}
	}
	return q
}

func sortDoc(orderings []core.DBOrdering) bson.D {
	if len(orderings) == 0 {
		return bson.D{{Key: "created_at", Value: 1}}
	}
	sort := make(bson.D, 0, len(orderings))
	for _, ord := range orderings {
		dir := -1
		if ord.Ascending {
			dir = 1
		}
		sort = append(sort, bson.E{Key: ord.Field, Value: dir})
	}
	return sort
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	cur, err := repo.coll.Find(ctx, userQuery(filter), options.Find().SetSort(sortDoc(orderings)))
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding users")
	}
	users := make([]user.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.user())
	}
	return users, nil
}

func (repo *userRepository) CountUsers(ctx context.Context, filter user.QueryFilter) (int, error) {
	n, err := repo.coll.CountDocuments(ctx, userQuery(filter))
	if err != nil {
		return 0, errors.Wrap(err, "counting users")
	}
	return int(n), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	res, err := repo.coll.UpdateByID(ctx, usr.ID, bson.M{"$set": bson.M{
		"username":   usr.Username,
		"email":      usr.Email,
		"profile":    usr.Profile,
		"updated_at": usr.UpdatedAt,
	}})
	if err != nil {
		return user.User{}, trapDuplicateErr(err, "updating user")
	}
	if res.MatchedCount == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
}

func (repo *userRepository) SetPasswordHash(ctx context.Context, id string, hash []byte, updatedAt time.Time) error {
	res, err := repo.coll.UpdateByID(ctx, id, bson.M{
		"$set":   bson.M{"password_hash": hash, "updated_at": updatedAt},
		"$unset": bson.M{"reset_token": ""},
	})
	if err != nil {
		return errors.Wrap(err, "setting password hash")
	}
	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo *userRepository) SetResetToken(ctx context.Context, id string, token user.ResetToken) error {
	res, err := repo.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"reset_token": resetTokenDoc{Hash: token.Hash, ExpiresAt: token.ExpiresAt},
	}})
	if err != nil {
		return errors.Wrap(err, "setting reset token")
	}
	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo *userRepository) ResetPassword(ctx context.Context, tokenHash string, now time.Time, hash []byte) (user.User, error) {
	filter := bson.M{
		"reset_token.hash":       tokenHash,
		"reset_token.expires_at": bson.M{"$gt": now},
	}
	update := bson.M{
		"$set":   bson.M{"password_hash": hash, "updated_at": now},
		"$unset": bson.M{"reset_token": ""},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc userDoc
	if err := repo.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return user.User{}, trapNoDocsErr(err, user.ErrResetTokenInvalid, "resetting password")
	}
	return doc.user(), nil
}

func (repo *userRepository) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := repo.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"last_login": at}})
	if err != nil {
		return errors.Wrap(err, "setting last login")
	}
	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo *userRepository) DeleteUser(ctx context.Context, id string) error {
	res, err := repo.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "deleting user")
	}
	if res.DeletedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}
