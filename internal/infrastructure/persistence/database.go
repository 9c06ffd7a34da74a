package persistence

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/config"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/logger"
)

// Database holds the journal connection
type Database struct {
	DB     *gorm.DB
	driver string
}

// NewDatabase opens the journal database and migrates its schema
func NewDatabase(cfg config.JournalConfig, zl *zap.Logger) (*Database, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		cfg.Driver = "sqlite"
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported journal driver %q", cfg.Driver)
	}

	db, err := Open(dialector, zl, logger.MapGormLogLevel(cfg.LogLevel),
		logger.WithSlowThreshold(cfg.SlowThreshold))
	if err != nil {
		return nil, err
	}
	db.driver = cfg.Driver
	if cfg.Driver != "postgres" {
		// sqlite allows one writer; :memory: databases exist per connection
		sqlDB, _ := db.DB.DB()
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Open connects through dialector with the zap-backed gorm logger
func Open(dialector gorm.Dialector, zl *zap.Logger, level gormlogger.LogLevel, opts ...logger.GormLoggerOption) (*Database, error) {
	if zl == nil {
		zl = zap.NewNop()
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.NewGormLogger(zl, level, opts...),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	return &Database{DB: db}, nil
}

// Migrate creates or updates the journal table
func (d *Database) Migrate() error {
	if err := d.DB.AutoMigrate(&DecisionModel{}); err != nil {
		return fmt.Errorf("failed to migrate decision journal: %w", err)
	}
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks if the database connection is alive
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Ping()
}

// Driver returns the configured driver name
func (d *Database) Driver() string {
	return d.driver
}
