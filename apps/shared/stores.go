package shared

import (
	"context"

	"github.com/pkg/errors"

	"github.com/schoolms/backend/core"
	"github.com/schoolms/backend/core/class"
	"github.com/schoolms/backend/core/user"
	"github.com/schoolms/backend/storage/database"
	inmemdb "github.com/schoolms/backend/storage/database/inmem"
	mongorepos "github.com/schoolms/backend/storage/database/mongodb"
	sqlxrepos "github.com/schoolms/backend/storage/database/sqlx"
)

var ErrUnsupportedMigration = errors.New("migration command not supported by this database engine")

// Stores holds the repositories of the configured database engine.
type Stores struct {
	Engine  string
	Users   user.Repository
	Classes class.Repository

	close   func(ctx context.Context) error
	migrate func(ctx context.Context, command string, args ...string) error
}

// OpenStores connects to the database selected by conf.Database.Engine.
func OpenStores(ctx context.Context, conf *core.Config) (*Stores, error) {
	switch engine := conf.Database.Engine; engine {
	case "mongo":
		db, err := database.OpenMongo(ctx, conf)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Engine:  engine,
			Users:   mongorepos.NewUserRepository(db),
			Classes: mongorepos.NewClassRepository(db),
			close:   db.Client().Disconnect,
			migrate: func(ctx context.Context, command string, _ ...string) error {
				// the schema is the set of indexes
				if command != "up" {
					return errors.Wrap(ErrUnsupportedMigration, command)
				}
				return database.EnsureIndexes(ctx, db)
			},
		}, nil

	case "postgres":
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}
		db, err := database.OpenPostgres(conf)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Engine:  engine,
			Users:   sqlxrepos.NewUserRepository(db),
			Classes: sqlxrepos.NewClassRepository(db),
			close:   func(context.Context) error { return db.Close() },
			migrate: func(ctx context.Context, command string, args ...string) error {
				return database.RunMigrations(ctx, command, db.DB, args...)
			},
		}, nil

	case "memory":
		db := inmemdb.Open()
		return &Stores{
			Engine:  engine,
			Users:   inmemdb.NewUserRepository(db),
			Classes: inmemdb.NewClassRepository(db),
			close:   func(context.Context) error { return nil },
			migrate: func(context.Context, string, ...string) error { return nil },
		}, nil

	default:
		return nil, errors.Errorf("unknown database engine %q", engine)
	}
}

// Migrate brings the schema up to date ("up"), or runs another migration command where the engine supports it.
func (s *Stores) Migrate(ctx context.Context, command string, args ...string) error {
	return s.migrate(ctx, command, args...)
}

func (s *Stores) Close(ctx context.Context) error {
	return s.close(ctx)
}
