package loader

import (
	_ "embed"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var schemaSQL string

// additiveColumn は古いデータベースに後から追加する列です。
type additiveColumn struct {
	table      string
	name       string
	definition string
}

// 既存行は DEFAULT の値で埋まる
var additiveColumns = []additiveColumn{
	{table: "basic_info", name: "page", definition: "TEXT NOT NULL DEFAULT ''"},
	{table: "basic_info", name: "import_session_id", definition: "TEXT NOT NULL DEFAULT 'legacy'"},
}

// InitDatabase はデータベーススキーマを適用し、不足している列を追加します。
func InitDatabase(db *sqlx.DB) error {
	log.Println("Applying database schema...")
	if err := applySchema(db); err != nil {
		return fmt.Errorf("failed to apply schema.sql: %w", err)
	}
	log.Println("Schema applied successfully.")

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for column migration: %w", err)
	}
	defer tx.Rollback()

	for _, col := range additiveColumns {
		added, err := ensureColumn(tx, col)
		if err != nil {
			return err
		}
		if added {
			log.Printf("INFO: [Migration] Added column %s.%s", col.table, col.name)
		}
	}

	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_basic_info_session ON basic_info (import_session_id, created_at)`); err != nil {
		return fmt.Errorf("failed to create session index: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit column migration: %w", err)
	}
	return nil
}

func applySchema(db *sqlx.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// ensureColumn は列がなければ ALTER TABLE で追加し、追加したかどうかを返します。
func ensureColumn(tx *sqlx.Tx, col additiveColumn) (bool, error) {
	exists, err := columnExists(tx, col.table, col.name)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	q := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", col.table, col.name, col.definition)
	if _, err := tx.Exec(q); err != nil {
		return false, fmt.Errorf("failed to add column %s.%s: %w", col.table, col.name, err)
	}
	return true, nil
}

func columnExists(tx *sqlx.Tx, table, column string) (bool, error) {
	var count int
	err := tx.Get(&count, `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column)
	if err != nil {
		return false, fmt.Errorf("failed to inspect columns of %s: %w", table, err)
	}
	return count > 0, nil
}
