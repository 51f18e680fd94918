package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// MemorySQLitePath はプロセス内メモリ上のSQLiteを指すパス。テストとローカル実行で使用する。
const MemorySQLitePath = ":memory:"

// OpenSQLite はSQLiteデータベースを開き、スキーマを作成する。
// 外部キー制約を有効にするため、接続ごとにforeign_keysプラグマを設定する。
// SQLiteは単一ライターのため接続数は1に制限する。メモリDBはこの接続が閉じるまで保持される。
func OpenSQLite(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := path
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func initSchema(db *sql.DB) error {
	if err := initTable(db, "users", `
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT    PRIMARY KEY,
			email         TEXT    NOT NULL UNIQUE,
			phone         TEXT    NOT NULL UNIQUE,
			password_hash TEXT    NOT NULL,
			created_at    INTEGER NOT NULL
		);`,
	); err != nil {
		return err
	}

	if err := initTable(db, "refresh_tokens", `
		CREATE TABLE IF NOT EXISTS refresh_tokens (
			token      TEXT    PRIMARY KEY,
			user_id    TEXT    NOT NULL,
			issued_at  INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
		);`,
	); err != nil {
		return err
	}

	if err := initTable(db, "refresh_tokens_expires_at", `
		CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires_at
		ON refresh_tokens (expires_at);`,
	); err != nil {
		return err
	}

	return nil
}

func initTable(db *sql.DB, name, ddl string) error {
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("failed to init '%s' schema: %w", name, err)
	}
	return nil
}
