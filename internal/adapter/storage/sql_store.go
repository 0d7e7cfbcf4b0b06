package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/port"
)

const defaultLockWait = 5 * time.Second

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLStore struct {
	db       *sql.DB
	dialect  dialect
	lockWait time.Duration
}

type Option func(*SQLStore)

// WithLockWait bounds how long a transaction waits for a row lock before
// failing with domain.ErrBusy (MySQL only; SQLite uses the DSN busy timeout).
func WithLockWait(d time.Duration) Option {
	return func(s *SQLStore) {
		if d > 0 {
			s.lockWait = d
		}
	}
}

func NewSQLStore(db *sql.DB, driver string, opts ...Option) (*SQLStore, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	s := &SQLStore{db: db, dialect: d, lockWait: defaultLockWait}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open connects, pings and migrates the database.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := Migrate(db, driver); err != nil {
		db.Close()
		return nil, err
	}

	store, err := NewSQLStore(db, driver, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Repositories() port.Repositories {
	return s.repositories(s.db)
}

func (s *SQLStore) repositories(q queryer) port.Repositories {
	return port.Repositories{
		Catalog: &catalogRepository{q: q, dialect: s.dialect},
		Stock:   &stockRepository{q: q, dialect: s.dialect},
		Carts:   &cartRepository{q: q, dialect: s.dialect},
		Orders:  &orderRepository{q: q},
		Outbox:  &outboxRepository{q: q},
	}
}

func (s *SQLStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.classify(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	if err := s.dialect.prepareTx(ctx, tx, s.lockWait); err != nil {
		return s.classify(fmt.Errorf("prepare tx: %w", err))
	}

	if err := fn(ctx, s.repositories(tx)); err != nil {
		return s.classify(err)
	}

	if err := tx.Commit(); err != nil {
		return s.classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *SQLStore) classify(err error) error {
	if errors.Is(err, domain.ErrBusy) {
		return err
	}
	if s.dialect.isBusy(err) {
		return fmt.Errorf("%w: %v", domain.ErrBusy, err)
	}
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
