package db

import (
	"context"
	"fmt"

	"github.com/tropicaldog17/finledger/internal/models"
)

// Models lists every persisted entity in dependency order
func Models() []any {
	return []any{
		&models.User{},
		&models.Asset{},
		&models.Portfolio{},
		&models.Account{},
		&models.Transaction{},
		&models.Record{},
		&models.AssetValue{},
	}
}

// Migrate creates or updates the schema, including the unique indexes the
// ledger and price table rely on.
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// DropAll drops every table created by Migrate
func (db *DB) DropAll(ctx context.Context) error {
	m := Models()
	for i := len(m) - 1; i >= 0; i-- {
		if err := db.WithContext(ctx).Migrator().DropTable(m[i]); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}
	return nil
}
