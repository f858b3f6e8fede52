// Package backend opens the storage.RecordStore named by a storage kind.
package backend

import (
	"context"
	"fmt"

	"github.com/zappabad/herdmarket/internal/storage"
	"github.com/zappabad/herdmarket/internal/storage/clickhouse"
	"github.com/zappabad/herdmarket/internal/storage/csvstore"
	"github.com/zappabad/herdmarket/internal/storage/memory"
	"github.com/zappabad/herdmarket/internal/storage/postgres"
	"github.com/zappabad/herdmarket/internal/storage/sqlitestore"
)

// Storage kinds.
const (
	KindNone       = "none"
	KindMemory     = "memory"
	KindCSV        = "csv"
	KindSQLite     = "sqlite"
	KindPostgres   = "postgres"
	KindClickhouse = "clickhouse"
)

// Open returns the store for kind. KindNone yields a nil store and no error.
// dsn is a directory for csv, a file path for sqlite and a URL for the
// database servers.
func Open(ctx context.Context, kind, dsn string) (storage.RecordStore, error) {
	var (
		store storage.RecordStore
		err   error
	)
	switch kind {
	case KindNone, "":
		return nil, nil
	case KindMemory:
		return memory.NewRecordStore(), nil
	case KindCSV:
		store, err = openCSV(dsn)
	case KindSQLite:
		store, err = openSQLite(dsn)
	case KindPostgres:
		store, err = openPostgres(ctx, dsn)
	case KindClickhouse:
		store, err = openClickhouse(ctx, dsn)
	default:
		return nil, fmt.Errorf("%w: unknown storage kind %q", storage.ErrInvalidInput, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", kind, err)
	}
	return store, nil
}

func openCSV(dir string) (storage.RecordStore, error) {
	s, err := csvstore.NewRecordStore(dir)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openSQLite(path string) (storage.RecordStore, error) {
	s, err := sqlitestore.NewRecordStore(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openPostgres(ctx context.Context, dsn string) (storage.RecordStore, error) {
	s, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openClickhouse(ctx context.Context, dsn string) (storage.RecordStore, error) {
	s, err := clickhouse.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return s, nil
}
