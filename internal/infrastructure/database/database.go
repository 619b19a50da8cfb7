package database

import (
	"strings"

	"certverify-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite:"

// Open opens a GORM DB from a DSN. "sqlite:<path>" and ":memory:" select the pure-Go SQLite
// driver; anything else is treated as a Postgres URL.
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") behind connection poolers.
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if path, ok := sqlitePath(dsn); ok {
		return gorm.Open(sqlite.Open(path), cfg)
	}
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), cfg)
}

func sqlitePath(dsn string) (string, bool) {
	dsn = strings.TrimSpace(dsn)
	if dsn == ":memory:" {
		return dsn, true
	}
	if strings.HasPrefix(dsn, sqlitePrefix) {
		return strings.TrimPrefix(dsn, sqlitePrefix), true
	}
	return "", false
}

// AutoMigrate creates or updates the certificate, audit and principal tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Issuer{},
		&domain.Verifier{},
		&domain.Certificate{},
		&domain.VerificationLog{},
	)
}
