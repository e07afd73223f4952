package content

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// Open connects to the content database. driver is "pgx" (Postgres) or
// "sqlite3"; the sqlite driver must be registered by the caller.
func Open(driver, dsn string) (*bun.DB, error) {
	if driver == "postgres" {
		driver = "pgx"
	}
	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	switch driver {
	case "pgx":
		return bun.NewDB(sqldb, pgdialect.New()), nil
	case "sqlite3":
		// SQLite serializes writers; a single connection keeps in-memory databases shared.
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	default:
		_ = sqldb.Close()
		return nil, fmt.Errorf("unsupported content database driver %q", driver)
	}
}

// CreateSchema creates every content table that does not yet exist.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range Models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("creating table for %T: %w", model, err)
		}
	}
	return nil
}
