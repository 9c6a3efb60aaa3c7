package database

import (
	"log"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/totegamma/customeradmin/internal/config"
	"github.com/totegamma/customeradmin/internal/infra/database/models"
)

func newLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             300 * time.Millisecond, // Slow SQL threshold
			LogLevel:                  logger.Warn,            // Log level
			IgnoreRecordNotFoundError: true,                   // Ignore ErrRecordNotFound error for logger
			Colorful:                  true,                   // Enable color
		},
	)
}

func NewPostgres(dsn string) (*gorm.DB, error) {
	// Errors are left untranslated so unique violations keep their
	// *pgconn.PgError and constraint name.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newLogger(),
	})
	return db, err
}

// NewSqlite opens a sqlite database. dsn may be a file path or a
// "file:...?mode=memory" URI.
func NewSqlite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         newLogger(),
	})
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; serialize through one connection.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// Open selects the driver named in the server configuration.
func Open(conf config.Server) (*gorm.DB, error) {
	switch conf.DatabaseDriver {
	case "", "postgres":
		return NewPostgres(conf.PostgresDsn)
	case "sqlite":
		return NewSqlite(conf.SqlitePath)
	default:
		return nil, errors.Errorf("unsupported database driver %q", conf.DatabaseDriver)
	}
}

type tableIndex struct {
	suffix string
	column string
	unique bool
}

var (
	customerIndexes = []tableIndex{
		{suffix: "user_id_key", column: "user_id", unique: true},
		{suffix: "email_key", column: "email", unique: true},
	}
	metaIndexes = []tableIndex{
		{suffix: "customer_id", column: "customer_id"},
		{suffix: "meta_key", column: "meta_key"},
	}
)

// IndexName returns the name of the index on table with the given suffix.
// Index names share one namespace per schema, so they carry the table name.
func IndexName(table, suffix string) string {
	return table + "_" + suffix
}

func createIndexes(db *gorm.DB, table string, indexes []tableIndex) error {
	for _, idx := range indexes {
		ddl := "CREATE INDEX IF NOT EXISTS ? ON ? (?)"
		if idx.unique {
			ddl = "CREATE UNIQUE INDEX IF NOT EXISTS ? ON ? (?)"
		}
		name := IndexName(table, idx.suffix)
		err := db.Exec(ddl, clause.Table{Name: name}, clause.Table{Name: table}, clause.Column{Name: idx.column}).Error
		if err != nil {
			return errors.Wrapf(err, "create index %s", name)
		}
	}
	return nil
}

// Migrate creates the customer and metadata tables under the configured
// names, together with their per-table indexes.
func Migrate(db *gorm.DB, store config.Store) error {
	if err := db.Table(store.CustomerTable).AutoMigrate(&models.Customer{}); err != nil {
		return errors.Wrapf(err, "migrate %s", store.CustomerTable)
	}
	if err := createIndexes(db, store.CustomerTable, customerIndexes); err != nil {
		return errors.Wrapf(err, "migrate %s", store.CustomerTable)
	}
	if err := db.Table(store.MetaTable).AutoMigrate(&models.CustomerMeta{}); err != nil {
		return errors.Wrapf(err, "migrate %s", store.MetaTable)
	}
	if err := createIndexes(db, store.MetaTable, metaIndexes); err != nil {
		return errors.Wrapf(err, "migrate %s", store.MetaTable)
	}
	return nil
}
