package storage

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"refcheck/config"
	"refcheck/models"
)

// Open öffnet die Datenbank gemäß DB_DRIVER und führt die Auto-Migration aus.
func Open(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DBSQLitePath)
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.DBDriver, err)
	}
	log.Info("Datenbankverbindung hergestellt", zap.String("driver", cfg.DBDriver))

	if cfg.DBDriver == "sqlite" {
		// SQLite verträgt nur einen Schreiber gleichzeitig.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate legt alle Tabellen an bzw. aktualisiert sie.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Work{}, &models.Author{}, &models.Check{}, &models.ClaimCard{}); err != nil {
		return fmt.Errorf("auto-migration: %w", err)
	}
	return nil
}
