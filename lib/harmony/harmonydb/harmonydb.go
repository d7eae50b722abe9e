// Package harmonydb is the shared SQL handle every node of a cluster talks
// through. It speaks the postgres protocol (postgres, yugabyte) for real
// clusters and sqlite for single-host setups and tests. Every call checks a
// connection out of the pool for its own duration only, so no statement
// sequence spans more than one call unless BeginTransaction is used.
package harmonydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	logging "github.com/ipfs/go-log/v2"
	"github.com/jackc/pgerrcode"
	"github.com/mattn/go-sqlite3"
	"github.com/yugabyte/pgx/v5/pgconn"
	_ "github.com/yugabyte/pgx/v5/stdlib" // registers the pgx driver
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/taskcoord/lib/retry"
	"github.com/filecoin-project/taskcoord/node/config"
)

var log = logging.Logger("harmonydb")

const (
	DriverPostgres = "postgres"
	DriverYugabyte = "yugabyte"
	DriverSQLite   = "sqlite"
)

type DB struct {
	db     *sql.DB
	driver string
	name   string
}

// NewFromConfig is a convenience function.
// In usage:
//
//	db, err := NewFromConfig(config.HarmonyDB)  // in binary init
func NewFromConfig(cfg config.HarmonyDB) (*DB, error) {
	switch cfg.Driver {
	case DriverSQLite:
		return NewSqlite(cfg.Path)
	case DriverPostgres, DriverYugabyte, "":
		return New(cfg.Hosts, cfg.Username, cfg.Password, cfg.Database, cfg.Port, cfg.MaxOpenConns, time.Duration(cfg.ConnMaxIdleTime))
	default:
		return nil, xerrors.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// New opens a pool against a postgres-protocol cluster. Multiple hosts are
// tried in order by the driver.
func New(hosts []string, username, password, database, port string, maxOpen int, maxIdle time.Duration) (*DB, error) {
	if len(hosts) == 0 {
		return nil, xerrors.Errorf("no database hosts given")
	}
	if port == "" {
		port = "5433"
	}
	connString := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		strings.Join(hosts, ","), port, username, password, database)

	sdb, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, xerrors.Errorf("opening database: %w", err)
	}
	if maxOpen > 0 {
		sdb.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		sdb.SetConnMaxIdleTime(maxIdle)
	}

	db := &DB{db: sdb, driver: DriverPostgres, name: database}
	if err := db.ping(5); err != nil {
		_ = sdb.Close()
		return nil, xerrors.Errorf("connecting to %s: %w", strings.Join(hosts, ","), err)
	}
	log.Infow("connected to database", "hosts", hosts, "database", database)
	return db, nil
}

// NewSqlite opens (creating if needed) a sqlite database file.
func NewSqlite(path string) (*DB, error) {
	sdb, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, xerrors.Errorf("opening sqlite database %s: %w", path, err)
	}
	// sqlite serialises writers anyway; a single connection avoids SQLITE_BUSY
	// between our own goroutines.
	sdb.SetMaxOpenConns(1)

	db := &DB{db: sdb, driver: DriverSQLite, name: "sqlite"}
	if err := db.ping(1); err != nil {
		_ = sdb.Close()
		return nil, xerrors.Errorf("connecting to sqlite database %s: %w", path, err)
	}
	return db, nil
}

func (db *DB) ping(attempts int) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, err := retry.Retry(ctx, attempts, time.Second, nil, func() (struct{}, error) {
		return struct{}{}, db.db.PingContext(ctx)
	})
	return err
}

// DriverName is DriverPostgres or DriverSQLite.
func (db *DB) DriverName() string {
	return db.driver
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) record(ctx context.Context, start time.Time, err error) {
	ctx, _ = tag.New(ctx, tag.Upsert(dbTag, db.name), tag.Upsert(driverTag, db.driver))
	wait := time.Since(start).Milliseconds()
	stats.Record(ctx,
		DBMeasures.Hits.M(1),
		DBMeasures.TotalWait.M(wait),
		DBMeasures.OpenConnections.M(int64(db.db.Stats().OpenConnections)))
	DBMeasures.Waits.Observe(float64(wait))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		stats.Record(ctx, DBMeasures.Errors.M(1))
	}
}

// Exec executes changes (INSERT, DELETE,  or UPDATE).
// Note, for CREATE & DROP please keep these permanent and express
// them in the DDL list handed to ExecSchema.
func (db *DB) Exec(ctx context.Context, sql string, arguments ...any) (count int, err error) {
	defer func(start time.Time) { db.record(ctx, start, err) }(time.Now())

	res, err := db.db.ExecContext(ctx, sql, arguments...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

/*
Select multiple rows into a slice using name matching
Ex:

	type user struct {
		Name string
		ID int
		Number string `db:"tel_no"`
	}

	var users []user
	pageSize := 10
	err := db.Select(ctx, &users, "SELECT name, id, tel_no FROM customers WHERE pg_size = $1", pageSize)
*/
func (db *DB) Select(ctx context.Context, sliceOfStructPtr any, sql string, arguments ...any) (err error) {
	defer func(start time.Time) { db.record(ctx, start, err) }(time.Now())
	return sqlscan.Select(ctx, db.db, sliceOfStructPtr, sql, arguments...)
}

// QueryRow gets 1 row using column order matching.
// This is a timesaver for the special case of wanting the first row returned only.
// EX:
//
//	var name, pet string
//	var ID = 123
//	err := db.QueryRow(ctx, "SELECT name, pet FROM users WHERE ID=$1", ID).Scan(&name, &pet)
func (db *DB) QueryRow(ctx context.Context, sql string, arguments ...any) *Row {
	start := time.Now()
	return &Row{
		row:  db.db.QueryRowContext(ctx, sql, arguments...),
		done: func(err error) { db.record(ctx, start, err) },
	}
}

// Row is the result of QueryRow. The query is accounted for when Scan
// returns, so its wait covers reading the row.
type Row struct {
	row  *sql.Row
	done func(error)
}

// Scan copies the columns of the row into dest. It returns sql.ErrNoRows
// when the query matched nothing.
func (r *Row) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if r.done != nil {
		r.done(err)
	}
	return err
}

// ExecSchema runs the given DDL statements in order. They are expected to be
// idempotent (CREATE ... IF NOT EXISTS).
func (db *DB) ExecSchema(ctx context.Context, ddls []string) error {
	for _, ddl := range ddls {
		if _, err := db.Exec(ctx, ddl); err != nil {
			return xerrors.Errorf("executing ddl %q: %w", ddl, err)
		}
	}
	return nil
}

// ExecBatch prepares query once and executes it for every argument row in a
// single transaction. It returns the total number of affected rows. An empty
// batch does not touch the database.
func (db *DB) ExecBatch(ctx context.Context, query string, rows [][]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	var total int
	_, err := db.BeginTransaction(ctx, func(tx *Tx) (bool, error) {
		stmt, err := tx.tx.PrepareContext(ctx, query)
		if err != nil {
			return false, xerrors.Errorf("preparing batch statement: %w", err)
		}
		defer stmt.Close() //nolint:errcheck

		for _, args := range rows {
			res, err := stmt.ExecContext(ctx, args...)
			if err != nil {
				return false, err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return false, err
			}
			total += int(n)
		}
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

type Tx struct {
	tx  *sql.Tx
	ctx context.Context
}

// BeginTransaction is how you can access transactions using this library.
// The entire transaction happens in the function passed in.
// The return must be true or a rollback will occur.
func (db *DB) BeginTransaction(ctx context.Context, f func(*Tx) (commit bool, err error)) (didCommit bool, retErr error) {
	defer func(start time.Time) { db.record(ctx, start, retErr) }(time.Now())

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	var commit bool
	defer func() { // Panic clean-up.
		if !commit {
			if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
				log.Errorw("rollback failed", "error", rerr)
			}
		}
	}()
	commit, err = f(&Tx{tx: tx, ctx: ctx})
	if err != nil {
		commit = false
		return false, err
	}
	if !commit {
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// Exec in a transaction.
func (t *Tx) Exec(sql string, arguments ...any) (count int, err error) {
	res, err := t.tx.ExecContext(t.ctx, sql, arguments...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// QueryRow in a transaction.
func (t *Tx) QueryRow(sql string, arguments ...any) *Row {
	return &Row{row: t.tx.QueryRowContext(t.ctx, sql, arguments...)}
}

// Select in a transaction.
func (t *Tx) Select(sliceOfStructPtr any, sql string, arguments ...any) error {
	return sqlscan.Select(t.ctx, t.tx, sliceOfStructPtr, sql, arguments...)
}

// IsErrUniqueContraint reports whether err is a primary key or unique
// constraint violation on either supported driver.
func IsErrUniqueContraint(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
