package database

import (
	"context"
	"database/sql"
	"net/url"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	appfs "github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/fs"
)

const (
	migrationsDir = "migrations"
	maintenanceDB = "postgres"

	pingAttempts = 30
)

// dsn builds the connection URL of dbName. admin connects as the admin user when one is configured.
func dsn(dbName string, admin bool, conf core.DatabaseConfig) string {
	user := url.UserPassword(conf.User, conf.Password)
	if admin && conf.AdminUser != "" {
		user = url.UserPassword(conf.AdminUser, conf.AdminPassword)
	}

	sslMode := "require"
	if conf.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   "postgres",
		User:     user,
		Host:     conf.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Open returns a pool on the app database. It does not connect; see Ping.
func Open(conf *core.Config) (*sql.DB, error) {
	db, err := sql.Open(conf.Database.Engine, dsn(conf.Database.Name, false, conf.Database))
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if n := conf.Database.MaxOpenConns; n > 0 {
		db.SetMaxOpenConns(n)
	}
	if n := conf.Database.MaxIdleConns; n > 0 {
		db.SetMaxIdleConns(n)
	}
	if d := conf.Database.ConnMaxLifetime; d > 0 {
		db.SetConnMaxLifetime(d)
	}
	return db, nil
}

// Ping waits for the database to be ready, backing off 100ms more after each failed attempt.
func Ping(ctx context.Context, db *sql.DB) error {
	var err error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting for database")
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return errors.Wrap(err, "DB ping timeout")
}

func exists(ctx context.Context, db *sql.DB, query string, arg interface{}) (bool, error) {
	var found bool
	err := db.QueryRowContext(ctx, query, arg).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return found, err
}

func createAppUser(ctx context.Context, db *sql.DB, conf core.DatabaseConfig) error {
	if conf.User == "" {
		return nil
	}
	found, err := exists(ctx, db, "SELECT true FROM pg_roles WHERE rolname = $1", conf.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if found {
		return nil
	}

	q := "CREATE USER " + pq.QuoteIdentifier(conf.User) + " CREATEDB ENCRYPTED PASSWORD " + pq.QuoteLiteral(conf.Password)
	if _, err = db.ExecContext(ctx, q); err != nil {
		return errors.Wrap(err, "creating app user")
	}
	return nil
}

func createDB(ctx context.Context, db *sql.DB, conf core.DatabaseConfig) error {
	found, err := exists(ctx, db, "SELECT true FROM pg_database WHERE datname = $1", conf.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if found {
		return nil
	}

	if _, err = db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(conf.Name)); err != nil {
		return errors.Wrap(err, "creating database")
	}
	return nil
}

// CreateIfNotExist creates the app user (as admin) and the app database (as the app user).
func CreateIfNotExist(conf *core.Config) error {
	ctx := context.Background()

	admin, err := sql.Open(conf.Database.Engine, dsn(maintenanceDB, true, conf.Database))
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = admin.Close() }()
	if err = Ping(ctx, admin); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(ctx, admin, conf.Database); err != nil {
		return err
	}

	app, err := sql.Open(conf.Database.Engine, dsn(maintenanceDB, false, conf.Database))
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = app.Close() }()
	return createDB(ctx, app, conf.Database)
}

// RunMigrations runs a goose command (up, down, status, ...) against the embedded migrations.
func RunMigrations(command string, db *sql.DB, args ...string) error {
	goose.SetBaseFS(appfs.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "setting goose dialect")
	}
	return goose.Run(command, db, migrationsDir, args...)
}

func Migrate(db *sql.DB) error {
	if err := RunMigrations("up", db); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
