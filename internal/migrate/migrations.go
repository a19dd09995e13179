package migrate

import (
	"embed"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

// Column is an additive, nullable-or-defaulted column. Adding a column that
// already exists is treated as success.
type Column struct {
	Table      string
	Name       string
	Definition string
}

type Migration struct {
	Version int
	Name    string
	SQL     string
	Columns []Column
}

func mustRead(name string) string {
	b, err := sqlFiles.ReadFile("sql/" + name)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// Migrations returns the ordered schema history. Versions are append-only.
func Migrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_tables",
			SQL:     mustRead("0001_create_tables.sql"),
		},
		{
			// Databases created before these columns existed get them here;
			// fresh databases already have them from version 1.
			Version: 2,
			Name:    "add_late_columns",
			Columns: []Column{
				{"products", "compare_at_price", "TEXT"},
				{"products", "is_hot", "BOOLEAN NOT NULL DEFAULT FALSE"},
				{"orders", "points_used", "BIGINT NOT NULL DEFAULT 0"},
				{"orders", "quantity", "INTEGER NOT NULL DEFAULT 1"},
				{"orders", "current_payment_id", "TEXT"},
				{"orders", "payee", "TEXT"},
				{"cards", "reserved_order_id", "TEXT"},
				{"cards", "reserved_at", "TIMESTAMPTZ"},
				{"login_users", "points", "BIGINT NOT NULL DEFAULT 0"},
				{"login_users", "is_blocked", "BOOLEAN NOT NULL DEFAULT FALSE"},
			},
		},
		{
			Version: 3,
			Name:    "ledger_indexes",
			SQL:     mustRead("0003_ledger_indexes.sql"),
		},
		{
			Version: 4,
			Name:    "pending_orders_index",
			SQL:     mustRead("0004_pending_orders_index.sql"),
		},
	}
}
