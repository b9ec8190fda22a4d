package blob

import (
	"context"
	"log/slog"

	"blobstore/internal/infra/blob/sqlstore"
)

type (
	// SQLConfig re-exports the SQL backend configuration.
	SQLConfig = sqlstore.Config
	// SQLDialect selects sqlite or postgres.
	SQLDialect = sqlstore.Dialect
)

const (
	SQLDialectSQLite   = sqlstore.DialectSQLite
	SQLDialectPostgres = sqlstore.DialectPostgres
)

// NewSQL opens the relational backend. An empty SQLConfig selects an ephemeral
// in-memory sqlite database.
func NewSQL(ctx context.Context, cfg SQLConfig, log *slog.Logger) (Store, error) {
	s, err := sqlstore.NewStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return s, nil
}
