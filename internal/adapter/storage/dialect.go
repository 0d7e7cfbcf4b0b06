package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// dialect holds what differs between the MySQL and SQLite back ends. Both use
// '?' placeholders, so the queries themselves are shared.
type dialect struct {
	name          string
	lockSuffix    string
	upsertProduct string
	isBusy        func(error) bool
	isDuplicate   func(error) bool
	prepareTx     func(ctx context.Context, tx *sql.Tx, lockWait time.Duration) error
}

var mysqlDialect = dialect{
	name:       DriverMySQL,
	lockSuffix: " FOR UPDATE",
	upsertProduct: `
		INSERT INTO products (id, name, description, price, category, stock, image, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name), description = VALUES(description), price = VALUES(price),
			category = VALUES(category), stock = VALUES(stock), image = VALUES(image),
			version = version + 1, updated_at = VALUES(updated_at)`,
	isBusy: func(err error) bool {
		var me *mysql.MySQLError
		// 1205 lock wait timeout, 1213 deadlock victim
		return errors.As(err, &me) && (me.Number == 1205 || me.Number == 1213)
	},
	isDuplicate: func(err error) bool {
		var me *mysql.MySQLError
		return errors.As(err, &me) && me.Number == 1062
	},
	prepareTx: func(ctx context.Context, tx *sql.Tx, lockWait time.Duration) error {
		secs := int(lockWait / time.Second)
		if secs < 1 {
			secs = 1
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", secs))
		return err
	},
}

// SQLite serializes writers itself; the DSN sets _txlock=immediate and a busy timeout.
var sqliteDialect = dialect{
	name:       DriverSQLite,
	lockSuffix: "",
	upsertProduct: `
		INSERT INTO products (id, name, description, price, category, stock, image, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, description = excluded.description, price = excluded.price,
			category = excluded.category, stock = excluded.stock, image = excluded.image,
			version = products.version + 1, updated_at = excluded.updated_at`,
	isBusy: func(err error) bool {
		var se *sqlite.Error
		if !errors.As(err, &se) {
			return false
		}
		primary := se.Code() & 0xff
		return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
	},
	isDuplicate: func(err error) bool {
		var se *sqlite.Error
		if !errors.As(err, &se) {
			return false
		}
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
		// without extended result codes only the primary code is reported
		return se.Code() == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
	},
	prepareTx: func(context.Context, *sql.Tx, time.Duration) error { return nil },
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverMySQL:
		return mysqlDialect, nil
	case DriverSQLite:
		return sqliteDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported driver %q", driver)
	}
}

// SQLiteDSN builds a DSN for a file database configured the way the store expects.
func SQLiteDSN(path string) string {
	return "file:" + path +
		"?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)" +
		"&_txlock=immediate&_time_format=sqlite"
}
