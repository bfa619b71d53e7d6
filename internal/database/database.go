package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	puresqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"codemother/internal/logging"
	"codemother/internal/models"
)

const (
	DriverSQLite     = "sqlite"
	DriverSQLitePure = "sqlite-pure"
	DriverPostgres   = "postgres"
)

// Config holds DB configuration. Path is used by the sqlite drivers, DSN by postgres.
type Config struct {
	Driver   string
	Path     string
	DSN      string
	LogLevel logger.LogLevel
}

// Init opens the configured database and runs migrations
func Init(cfg Config) (*gorm.DB, error) {
	if cfg.LogLevel == 0 {
		cfg.LogLevel = logger.Warn
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverSQLite
	}

	gormLogger := logger.New(
		log.New(logging.Writer(logging.Component("gorm"), zerolog.DebugLevel), "", 0),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  cfg.LogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	gcfg := &gorm.Config{Logger: gormLogger}

	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case DriverSQLite, DriverSQLitePure:
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			path = GetDefaultDBPath()
		}
		if err := ensureDir(path); err != nil {
			return nil, err
		}
		dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", path)
		if driver == DriverSQLitePure {
			// modernc sqlite takes pragmas in _pragma form
			dsn = fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
			db, err = gorm.Open(puresqlite.Open(dsn), gcfg)
		} else {
			db, err = gorm.Open(sqlite.Open(dsn), gcfg)
		}
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// Configure connection pool for SQLite to prevent "database is locked" errors
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	case DriverPostgres:
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, fmt.Errorf("dsn is required for driver %q", driver)
		}
		db, err = gorm.Open(postgres.Open(cfg.DSN), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// migrate runs all automigrations. Keep the model list in one place.
func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.App{},
		&models.Turn{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sqlite db dir: %w", err)
	}
	return nil
}
