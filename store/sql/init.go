package sql

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
)

func createShootoutsTable(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().
		Model((*shootoutModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func createJobsTable(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().
		Model((*jobModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func createCredentialsTable(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().
		Model((*credentialModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func createLeaseIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*jobModel)(nil)).
		Index("idx_jobs_status_lease").
		Column("status", "lease_deadline").
		IfNotExists().
		Exec(ctx)
	return err
}

func createRunIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*jobModel)(nil)).
		Index("idx_jobs_status_next").
		Column("status", "next_run_at").
		IfNotExists().
		Exec(ctx)
	return err
}

func createUpdatedIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*jobModel)(nil)).
		Index("idx_jobs_status_updated").
		Column("status", "updated_at").
		IfNotExists().
		Exec(ctx)
	return err
}

func createOwnerIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*jobModel)(nil)).
		Index("idx_jobs_owner_created").
		Column("owner_id", "created_at").
		IfNotExists().
		Exec(ctx)
	return err
}

func initDB(ctx context.Context, db *bun.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	steps := []func(context.Context, bun.IDB) error{
		createShootoutsTable,
		createJobsTable,
		createCredentialsTable,
		createLeaseIndex,
		createRunIndex,
		createUpdatedIndex,
		createOwnerIndex,
	}
	for _, step := range steps {
		if err := step(ctx, tx); err != nil {
			return errors.Join(err, tx.Rollback())
		}
	}
	return tx.Commit()
}

// InitDB initializes the database schema required by the SQL backend:
// the shootouts, jobs and credentials tables plus the indexes Store
// and Broker rely on.
//
// It is idempotent and may be safely called multiple times. It does
// not drop or modify existing tables beyond creating missing objects.
func InitDB(ctx context.Context, db *bun.DB) error {
	return initDB(ctx, db)
}

// MustInitDB behaves like InitDB but panics if initialization fails.
// Intended for application bootstrap code where failure to initialize
// schema is considered unrecoverable.
func MustInitDB(ctx context.Context, db *bun.DB) {
	if err := initDB(ctx, db); err != nil {
		panic(err)
	}
}
