package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to Postgres and migrates the schema.
func Open(dsn string) (*gorm.DB, error) {
	g, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}

	if err := g.AutoMigrate(&SettingRecord{}, &SessionRecord{}, &Workspace{}); err != nil {
		return nil, fmt.Errorf("db: migrate: %w", err)
	}

	return g, nil
}
