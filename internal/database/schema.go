package database

import "strings"

type dialect struct {
	timestamp string
	money     string
	json      string
	serialPK  string
}

var dialects = map[string]dialect{
	DriverPostgres: {
		timestamp: "TIMESTAMPTZ",
		money:     "NUMERIC(12,2)",
		json:      "JSONB",
		serialPK:  "BIGSERIAL PRIMARY KEY",
	},
	DriverSQLite: {
		timestamp: "DATETIME",
		money:     "TEXT",
		json:      "TEXT",
		serialPK:  "INTEGER PRIMARY KEY AUTOINCREMENT",
	},
}

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS books (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	author TEXT NOT NULL DEFAULT '',
	isbn TEXT UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	cover_image TEXT NOT NULL DEFAULT '',
	total_copies INTEGER NOT NULL,
	available_copies INTEGER NOT NULL,
	scan_code TEXT NOT NULL,
	version INTEGER NOT NULL DEFAULT 1,
	created_at {{timestamp}} NOT NULL,
	CHECK (total_copies >= 1),
	CHECK (available_copies >= 0 AND available_copies <= total_copies)
);
---
CREATE TABLE IF NOT EXISTS students (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT UNIQUE,
	roll_no TEXT NOT NULL UNIQUE,
	version INTEGER NOT NULL DEFAULT 1,
	created_at {{timestamp}} NOT NULL
);
---
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	student_id TEXT NOT NULL REFERENCES students(id),
	book_id TEXT NOT NULL REFERENCES books(id),
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	issue_date {{timestamp}} NOT NULL,
	due_date {{timestamp}} NOT NULL,
	return_date {{timestamp}},
	days_overdue INTEGER NOT NULL DEFAULT 0,
	fine_amount {{money}} NOT NULL DEFAULT 0,
	fine_paid BOOLEAN NOT NULL DEFAULT FALSE,
	version INTEGER NOT NULL DEFAULT 1
);
---
CREATE UNIQUE INDEX IF NOT EXISTS transactions_open_pair
	ON transactions (student_id, book_id) WHERE status = 'active';
---
CREATE INDEX IF NOT EXISTS transactions_student ON transactions (student_id, issue_date);
---
CREATE INDEX IF NOT EXISTS transactions_book ON transactions (book_id, status);
---
CREATE TABLE IF NOT EXISTS events (
	id {{serial_pk}},
	aggregate_id TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	event_type TEXT NOT NULL,
	event_data {{json}} NOT NULL,
	metadata {{json}},
	version INTEGER NOT NULL,
	created_at {{timestamp}} NOT NULL,
	UNIQUE (aggregate_id, version)
);
`

func schema(driver string) []string {
	d, ok := dialects[driver]
	if !ok {
		d = dialects[DriverPostgres]
	}
	r := strings.NewReplacer(
		"{{timestamp}}", d.timestamp,
		"{{money}}", d.money,
		"{{json}}", d.json,
		"{{serial_pk}}", d.serialPK,
	)

	var stmts []string
	for _, part := range strings.Split(r.Replace(schemaTemplate), "---") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
