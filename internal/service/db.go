package service

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ifuryst/quill/internal/config"
	"github.com/ifuryst/quill/internal/models"
	"github.com/ifuryst/quill/internal/store"
)

// NewDatabase opens the configured database and migrates the schema. The
// memory type keeps articles in process and uses an in-memory sqlite database
// for the monitoring rows.
func NewDatabase(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
			cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port, cfg.SSLMode, cfg.TimeZone)
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
	case "memory":
		dialector = sqlite.Open(":memory:")
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Type != "postgres" {
		// sqlite serializes writers anyway, and every :memory: connection is a new database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(
		&models.Article{},
		&models.PropertyEntry{},
		&models.Target{},
		&models.ArticleTarget{},
		&models.ErrorLog{},
		&models.MetricsSample{},
		&models.PublicationSummary{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// NewStores returns the stores for the configured database type.
func NewStores(cfg *config.DatabaseConfig, db *gorm.DB) store.Stores {
	if cfg.Type == "memory" {
		return store.NewMemoryStores()
	}
	return store.NewGormStores(db)
}
