package session

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// kvEntry is the single-table layout for persisted client state.
type kvEntry struct {
	bun.BaseModel `bun:"table:session_kv,alias:kv"`
	Key           string    `bun:"key,pk" json:"key"`
	Value         string    `bun:"value,notnull" json:"value"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at"`
}

// BunStorage is the sqlite-backed Storage used by desktop and kiosk
// deployments where the session must survive process restarts.
type BunStorage struct {
	db *bun.DB
}

var _ Storage = (*BunStorage)(nil)

// NewBunStorage opens (or creates) the sqlite database at path and ensures
// the key/value table exists. Use ":memory:" for a throwaway store.
func NewBunStorage(ctx context.Context, path string) (*BunStorage, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open session storage")
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if _, err := db.NewCreateTable().
		Model((*kvEntry)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to initialize session storage")
	}

	return &BunStorage{db: db}, nil
}

func (s *BunStorage) Get(ctx context.Context, key string) (string, bool, error) {
	entry := &kvEntry{}
	err := s.db.NewSelect().
		Model(entry).
		Where("kv.key = ?", key).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, errors.CategoryInternal, "failed to read session storage")
	}
	return entry.Value, true, nil
}

func (s *BunStorage) Set(ctx context.Context, key, value string) error {
	entry := &kvEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	_, err := s.db.NewInsert().
		Model(entry).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to write session storage")
	}
	return nil
}

func (s *BunStorage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.db.NewDelete().
		Model((*kvEntry)(nil)).
		Where("kv.key IN (?)", bun.In(keys)).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to clear session storage")
	}
	return nil
}

// Close releases the underlying database handle.
func (s *BunStorage) Close() error {
	return s.db.Close()
}
