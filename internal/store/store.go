package store

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/riskwatch/backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DB wraps GORM and provides typed access to all entities.
type DB struct {
	*gorm.DB
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.MetricData{},
		&models.AlertRule{},
		&models.AlertRecord{},
		&models.NotifyChannel{},
	)
}

// Open opens the database: a non-empty url means PostgreSQL, else SQLite at path.
// Falls back to DATABASE_URL / DB_PATH env when both arguments are empty.
func Open(url, path string) (*DB, error) {
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url != "" {
		return OpenPostgres(url)
	}
	if path == "" {
		path = os.Getenv("DB_PATH")
	}
	if path == "" {
		path = "data/riskwatch.db"
	}
	return OpenSQLite(path)
}

// OpenPostgres opens a PostgreSQL DB and runs migrations.
func OpenPostgres(dsn string) (*DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	// Tune connection pool to handle concurrent engine workers + API load.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &DB{DB: db}, nil
}

// OpenSQLite opens a SQLite DB and runs migrations.
func OpenSQLite(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	// An in-memory database exists per connection; keep the pool at one so
	// concurrent engine workers all see the same data.
	if path == ":memory:" {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &DB{DB: db}, nil
}

// Ping verifies connectivity on the underlying connection. The engine calls
// this at cycle start so a dead store fails the whole cycle before any
// per-rule work begins.
func (d *DB) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
