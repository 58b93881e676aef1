// Package database はTodoストアのデータベース接続とスキーマを管理します。
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"go-todo-api/internal/config"
)

const (
	DriverMySQL  = config.DriverMySQL
	DriverSQLite = config.DriverSQLite
)

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS todos (
	id INT AUTO_INCREMENT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	done BOOLEAN NOT NULL DEFAULT FALSE,
	date DATETIME(6) NULL,
	created_at DATETIME(6) NOT NULL,
	updated_at DATETIME(6) NOT NULL
) DEFAULT CHARSET=utf8mb4`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS todos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	done BOOLEAN NOT NULL DEFAULT 0,
	date DATETIME NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
)`

// Open はデータベース接続を初期化し、疎通を確認します。
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// SQLiteは書き込みが直列なので接続は1本にする (":memory:" も接続ごとに別DBになる)
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate は todos テーブルが無ければ作成します。
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var schema string
	switch driver {
	case DriverMySQL:
		schema = mysqlSchema
	case DriverSQLite:
		schema = sqliteSchema
	default:
		return fmt.Errorf("unsupported driver %q", driver)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create todos table: %w", err)
	}
	return nil
}
