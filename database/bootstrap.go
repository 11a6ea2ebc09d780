// database/bootstrap.go
package database

import (
	"fmt"
	"strings"

	sqlite "github.com/glebarez/sqlite" // CGO-free driver
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cropcal/entities"
)

// Open opens the sqlite file at path and migrates every table.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// sqlite allows one writer; a single connection turns lock errors into queueing
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := configure(db, path); err != nil {
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	if err := db.AutoMigrate(
		&entities.CropProfile{},
		&entities.Farm{},
		&entities.CropCalendar{},
		&entities.Observation{},
		&entities.RecalcLog{},
	); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return db, nil
}

// configure sets connection pragmas. WAL only applies to file databases.
func configure(db *gorm.DB, path string) error {
	pragmas := []string{`PRAGMA foreign_keys=ON`, `PRAGMA busy_timeout=5000`}
	if !strings.Contains(path, ":memory:") {
		pragmas = append(pragmas, `PRAGMA journal_mode=WAL`)
	}
	for _, p := range pragmas {
		if err := db.Exec(p).Error; err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}
