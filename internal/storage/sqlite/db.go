package sqlite

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer; sqlite serializes anyway and this keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS complaints (
		id                 TEXT PRIMARY KEY,
		order_id           TEXT NOT NULL DEFAULT '',
		name               TEXT DEFAULT '',
		email              TEXT DEFAULT '',
		contact_number     TEXT DEFAULT '',
		product_name       TEXT DEFAULT '',
		purchase_date      TEXT DEFAULT '',
		category           TEXT DEFAULT '',
		description        TEXT DEFAULT '',
		photo_proof_link   TEXT DEFAULT '',
		importance_level   TEXT NOT NULL DEFAULT 'Medium',
		status             TEXT NOT NULL DEFAULT 'Pending',
		root_cause         TEXT,
		suggested_solution TEXT,
		received_at        DATETIME NOT NULL,
		processed_at       DATETIME
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_complaints_order_id ON complaints(order_id) WHERE order_id <> '';
	CREATE INDEX IF NOT EXISTS idx_complaints_status ON complaints(status);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
