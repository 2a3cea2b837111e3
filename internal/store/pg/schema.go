package pg

import (
	"context"
	"database/sql"
	"fmt"
)

// RequiredSchemaVersion is the migrations/ version this binary expects.
const RequiredSchemaVersion uint = 1

// SchemaStatus is the outcome of comparing schema_migrations with RequiredSchemaVersion.
type SchemaStatus struct {
	CurrentVersion uint
	Dirty          bool
	Compatible     bool
	NeedsMigration bool
}

// CheckSchema reads the golang-migrate bookkeeping table. A missing table or
// row means nothing has been applied yet.
func CheckSchema(ctx context.Context, db *sql.DB) SchemaStatus {
	var version uint
	var dirty bool
	if err := db.QueryRowContext(ctx, "SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&version, &dirty); err != nil {
		return SchemaStatus{NeedsMigration: true}
	}
	return schemaStatus(version, dirty)
}

func schemaStatus(version uint, dirty bool) SchemaStatus {
	s := SchemaStatus{CurrentVersion: version, Dirty: dirty}
	if dirty {
		return s
	}
	switch {
	case version == RequiredSchemaVersion:
		s.Compatible = true
	case version < RequiredSchemaVersion:
		s.NeedsMigration = true
	}
	return s
}

// Err returns nil when the store can be used, otherwise an operator-facing fix.
func (s SchemaStatus) Err() error {
	switch {
	case s.Compatible:
		return nil
	case s.Dirty:
		return fmt.Errorf("session schema is dirty at v%d (a migration failed partway); run `squabble migrate force %d` then `squabble migrate up`",
			s.CurrentVersion, s.CurrentVersion-1)
	case s.NeedsMigration:
		return fmt.Errorf("session schema is at v%d, v%d required; run `squabble migrate up`",
			s.CurrentVersion, RequiredSchemaVersion)
	default:
		return fmt.Errorf("session schema v%d is newer than this binary (v%d); upgrade squabble",
			s.CurrentVersion, RequiredSchemaVersion)
	}
}
