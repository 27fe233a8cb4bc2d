package db

import (
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/migrator"
	"gorm.io/gorm/schema"
)

// sqliteDialector stores fixed-point columns as text. sqlite gives
// decimal(p,s) NUMERIC affinity, which rounds to float64 on insert.
// decimal.Decimal writes its canonical string, so equality and unique
// indexes on those columns stay exact.
type sqliteDialector struct {
	sqlite.Dialector
}

func newSQLiteDialector(dsn string) gorm.Dialector {
	return sqliteDialector{sqlite.Dialector{DSN: dsn}}
}

func (d sqliteDialector) DataTypeOf(field *schema.Field) string {
	if isFixedPoint(field.DataType) {
		return "text"
	}
	return d.Dialector.DataTypeOf(field)
}

// Migrator is sqlite's own migrator, bound to this dialector so column
// types go through DataTypeOf above.
func (d sqliteDialector) Migrator(db *gorm.DB) gorm.Migrator {
	return sqlite.Migrator{Migrator: migrator.Migrator{Config: migrator.Config{
		DB:                          db,
		Dialector:                   d,
		CreateIndexAfterCreateTable: true,
	}}}
}

func isFixedPoint(t schema.DataType) bool {
	s := strings.ToLower(string(t))
	return strings.HasPrefix(s, "decimal") || strings.HasPrefix(s, "numeric")
}
