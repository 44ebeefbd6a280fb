package db

import (
	"fmt"

	"gorm.io/gorm"
)

// Migrate creates or updates every table. Users go first so foreign keys resolve.
func Migrate(gdb *gorm.DB) error {
	models := []any{
		&userRow{},
		&uploadRow{},
		&reportRow{},
		&subscriptionRow{},
		&sessionRow{},
		&verificationTokenRow{},
	}
	for _, m := range models {
		if err := gdb.AutoMigrate(m); err != nil {
			return fmt.Errorf("migrate %T: %w", m, err)
		}
	}
	return nil
}
