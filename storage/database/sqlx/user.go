package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/schoolms/backend/core"
	"github.com/schoolms/backend/core/user"
)

const (
	usersTable         = "users"
	uniqueViolationErr = "23505"
)

var (
	psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	// unique constraint -> identity field
	userConstraints = map[string]string{
		"users_username_key":    user.FieldUsername,
		"users_email_key":       user.FieldEmail,
		"users_employee_id_key": user.FieldEmployeeID,
		"users_student_id_key":  user.FieldStudentID,
	}
)

type (
	userRow struct {
		ID                string         `db:"id"`
		Username          string         `db:"username"`
		Email             string         `db:"email"`
		Role              string         `db:"role"`
		Name              string         `db:"name"`
		PasswordHash      []byte         `db:"password_hash"`
		Profile           profileJSON    `db:"profile"`
		EmployeeID        sql.NullString `db:"employee_id"`
		StudentID         sql.NullString `db:"student_id"`
		ResetTokenHash    sql.NullString `db:"reset_token_hash"`
		ResetTokenExpires sql.NullTime   `db:"reset_token_expires"`
		CreatedAt         time.Time      `db:"created_at"`
		UpdatedAt         time.Time      `db:"updated_at"`
		LastLogin         sql.NullTime   `db:"last_login"`
	}

	// profileJSON stores a user.Profile in a JSONB column.
	profileJSON user.Profile

	userRepository struct {
		db sqlx.ExtContext
	}
)

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db sqlx.ExtContext) user.Repository {
	return &userRepository{db: db}
}

func (p profileJSON) Value() (driver.Value, error) {
	return json.Marshal(user.Profile(p))
}

func (p *profileJSON) Scan(src interface{}) error {
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	case nil:
		*p = profileJSON{}
		return nil
	default:
		return errors.Errorf("unsupported profile type %T", src)
	}
	return json.Unmarshal(b, (*user.Profile)(p))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toUserRow(usr user.User) userRow {
	row := userRow{
		ID:           usr.ID,
		Username:     usr.Username,
		Email:        usr.Email,
		Role:         string(usr.Role),
		Name:         usr.Profile.Name,
		PasswordHash: usr.PasswordHash,
		Profile:      profileJSON(usr.Profile),
		EmployeeID:   nullString(usr.EmployeeID()),
		StudentID:    nullString(usr.StudentID()),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
	}
	if usr.ResetToken != nil {
		row.ResetTokenHash = nullString(usr.ResetToken.Hash)
		row.ResetTokenExpires = sql.NullTime{Time: usr.ResetToken.ExpiresAt.UTC(), Valid: true}
	}
	if usr.LastLogin != nil {
		row.LastLogin = sql.NullTime{Time: usr.LastLogin.UTC(), Valid: true}
	}
	return row
}

func (row userRow) user() user.User {
	usr := user.User{
		ID:           row.ID,
		Username:     row.Username,
		Email:        row.Email,
		Role:         user.Role(row.Role),
		PasswordHash: row.PasswordHash,
		Profile:      user.Profile(row.Profile),
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	usr.Profile.Name = row.Name
	if row.ResetTokenHash.Valid && row.ResetTokenExpires.Valid {
		usr.ResetToken = &user.ResetToken{Hash: row.ResetTokenHash.String, ExpiresAt: row.ResetTokenExpires.Time.UTC()}
	}
	if row.LastLogin.Valid {
		ll := row.LastLogin.Time.UTC()
		usr.LastLogin = &ll
	}
	return usr
}

// trapNoRowsErr maps psql "no rows" err to `target`
func trapNoRowsErr(err error, target error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return target
	}
	return errors.Wrap(err, msg)
}

// trapUniqueErr maps a unique constraint violation to the identity field it guards.
func trapUniqueErr(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationErr {
		if field, ok := userConstraints[pqErr.Constraint]; ok {
			return user.NewDuplicateIdentityError(field)
		}
		return errors.Wrap(user.ErrDuplicateIdentity, msg)
	}
	return errors.Wrap(err, msg)
}

// validIDs drops ids that cannot be a uuid; such ids match no row.
func validIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	return valid
}

func (repo *userRepository) get(ctx context.Context, qb sq.Sqlizer, target error, msg string) (user.User, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building query")
	}
	var row userRow
	if err := sqlx.GetContext(ctx, repo.db, &row, query, args...); err != nil {
		return user.User{}, trapNoRowsErr(err, target, msg)
	}
	return row.user(), nil
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, usr user.User, excludeID string) error {
	or := sq.Or{
		sq.Eq{"username": usr.Username},
		sq.Eq{"email": usr.Email},
	}
	if empID := usr.EmployeeID(); empID != "" {
		or = append(or, sq.Eq{"role": user.RoleTeacher, "employee_id": empID})
	}
	if stdID := usr.StudentID(); stdID != "" {
		or = append(or, sq.Eq{"role": user.RoleStudent, "student_id": stdID})
	}
	qb := psql.Select("*").From(usersTable).Where(or).Limit(1)
	if _, err := uuid.Parse(excludeID); err == nil {
		qb = qb.Where(sq.NotEq{"id": excludeID})
	}

	other, err := repo.get(ctx, qb, nil, "checking user uniqueness")
	if err != nil {
		return err
	}
	if other.ID == "" {
		return nil
	}
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
	row := toUserRow(usr)
	query, args, err := psql.Insert(usersTable).SetMap(map[string]interface{}{
		"id":                  row.ID,
		"username":            row.Username,
		"email":               row.Email,
		"role":                row.Role,
		"name":                row.Name,
		"password_hash":       row.PasswordHash,
		"profile":             row.Profile,
		"employee_id":         row.EmployeeID,
		"student_id":          row.StudentID,
		"reset_token_hash":    row.ResetTokenHash,
		"reset_token_expires": row.ResetTokenExpires,
		"created_at":          row.CreatedAt,
		"updated_at":          row.UpdatedAt,
		"last_login":          row.LastLogin,
	}).ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building query")
	}
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return user.User{}, trapUniqueErr(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	qb := psql.Select("*").From(usersTable)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		qb = qb.Where(sq.Eq{"id": filter.ID})
	case filter.Email != "":
		qb = qb.Where(sq.Eq{"email": filter.Email})
	case filter.UsernameOrEmail != "":
		qb = qb.Where(sq.Or{sq.Eq{"username": filter.UsernameOrEmail}, sq.Eq{"email": filter.UsernameOrEmail}})
	default:
		return user.User{}, user.ErrNotFound
	}
	return repo.get(ctx, qb.Limit(1), user.ErrNotFound, "finding user")
}

func whereUsers(qb sq.SelectBuilder, filter user.QueryFilter) sq.SelectBuilder {
	// users with Name, Username or Email matching the search keyword
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		qb = qb.Where(sq.Or{sq.ILike{"name": val}, sq.ILike{"username": val}, sq.ILike{"email": val}})
	}
	if len(filter.Roles) > 0 {
		roles := make([]string, 0, len(filter.Roles))
		for _, r := range filter.Roles {
			roles = append(roles, string(r))
		}
		qb = qb.Where(sq.Eq{"role": roles})
	}
	if filter.IDs != nil {
		// an empty list renders as a false condition
		qb = qb.Where(sq.Eq{"id": validIDs(filter.IDs)})
	}
	return qb
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	qb := whereUsers(psql.Select("*").From(usersTable), filter)
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
	var rows []userRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users, nil
}

func (repo *userRepository) CountUsers(ctx context.Context, filter user.QueryFilter) (int, error) {
	query, args, err := whereUsers(psql.Select("COUNT(*)").From(usersTable), filter).ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	var n int
	if err := sqlx.GetContext(ctx, repo.db, &n, query, args...); err != nil {
		return 0, errors.Wrap(err, "counting users")
	}
	return n, nil
}

// update runs an UPDATE ... RETURNING * and maps "no rows" to target.
func (repo *userRepository) update(ctx context.Context, ub sq.UpdateBuilder, target error, msg string) (user.User, error) {
	query, args, err := ub.Suffix("RETURNING *").ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building query")
	}
	var row userRow
	if err := sqlx.GetContext(ctx, repo.db, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, target
		}
		return user.User{}, trapUniqueErr(err, msg)
	}
	return row.user(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	if _, err := uuid.Parse(usr.ID); err != nil {
		return user.User{}, user.ErrNotFound
	}
	row := toUserRow(usr)
	return repo.update(ctx, psql.Update(usersTable).SetMap(map[string]interface{}{
		"username":    row.Username,
		"email":       row.Email,
		"name":        row.Name,
		"profile":     row.Profile,
		"employee_id": row.EmployeeID,
		"student_id":  row.StudentID,
		"updated_at":  row.UpdatedAt,
	}).Where(sq.Eq{"id": usr.ID}), user.ErrNotFound, "updating user")
}

func (repo *userRepository) SetPasswordHash(ctx context.Context, id string, hash []byte, updatedAt time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return user.ErrNotFound
	}
	_, err := repo.update(ctx, psql.Update(usersTable).SetMap(map[string]interface{}{
		"password_hash":       hash,
		"reset_token_hash":    nil,
		"reset_token_expires": nil,
		"updated_at":          updatedAt.UTC(),
	}).Where(sq.Eq{"id": id}), user.ErrNotFound, "setting password hash")
	return err
}

func (repo *userRepository) SetResetToken(ctx context.Context, id string, token user.ResetToken) error {
	if _, err := uuid.Parse(id); err != nil {
		return user.ErrNotFound
	}
	_, err := repo.update(ctx, psql.Update(usersTable).SetMap(map[string]interface{}{
		"reset_token_hash":    token.Hash,
		"reset_token_expires": token.ExpiresAt.UTC(),
	}).Where(sq.Eq{"id": id}), user.ErrNotFound, "setting reset token")
	return err
}

func (repo *userRepository) ResetPassword(ctx context.Context, tokenHash string, now time.Time, hash []byte) (user.User, error) {
	return repo.update(ctx, psql.Update(usersTable).SetMap(map[string]interface{}{
		"password_hash":       hash,
		"reset_token_hash":    nil,
		"reset_token_expires": nil,
		"updated_at":          now.UTC(),
	}).Where(sq.And{
		sq.Eq{"reset_token_hash": tokenHash},
		sq.Gt{"reset_token_expires": now.UTC()},
	}), user.ErrResetTokenInvalid, "resetting password")
}

func (repo *userRepository) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return user.ErrNotFound
	}
	_, err := repo.update(ctx, psql.Update(usersTable).
		Set("last_login", at.UTC()).
		Where(sq.Eq{"id": id}), user.ErrNotFound, "setting last login")
	return err
}

func (repo *userRepository) DeleteUser(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return user.ErrNotFound
	}
	query, args, err := psql.Delete(usersTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "deleting user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.ErrNotFound
	}
	return nil
}
