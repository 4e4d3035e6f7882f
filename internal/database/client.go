package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	_const "swgconf/internal/const"
	"swgconf/internal/logger"
	"swgconf/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TEXT    NOT NULL,
	action     TEXT    NOT NULL,
	target     TEXT    NOT NULL,
	detail     TEXT    NOT NULL DEFAULT '',
	success    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_created_at ON history (created_at);
`

// Client represents a SQLite database client holding the operation history
type Client struct {
	dbPath string
	logger *logger.Logger
	db     *sql.DB // 添加数据库连接字段
}

// New creates a new database client
func New(dbPath string, logger *logger.Logger) *Client {
	return &Client{
		dbPath: dbPath,
		logger: logger,
	}
}

// IsAvailable checks if the database file exists and is accessible
func (c *Client) IsAvailable() bool {
	if _, err := os.Stat(c.dbPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// Initialize opens (creating if needed) the database, sets WAL mode and
// creates the history schema
func (c *Client) Initialize() error {
	// If already initialized, just check the connection
	if c.db != nil {
		if err := c.db.Ping(); err == nil {
			c.logger.Debug("Database connection already active")
			return nil
		}
		// Connection failed, close and reinitialize
		c.logger.Warn("Existing database connection failed, reinitializing...")
		c.db.Close()
		c.db = nil
	}

	c.logger.Info("Initializing database connection: %s", c.dbPath)

	if dir := filepath.Dir(c.dbPath); dir != "" {
		if err := os.MkdirAll(dir, _const.DirPerm); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Open database connection
	db, err := sql.Open("sqlite3", c.dbPath)
	if err != nil {
		// Provide more specific error messages for common issues
		if strings.Contains(err.Error(), "CGO_ENABLED=0") {
			return fmt.Errorf("SQLite driver requires CGO to be enabled. Please rebuild with CGO_ENABLED=1: %w", err)
		}
		return fmt.Errorf("failed to open database: %w", err)
	}
	// 单连接即可, 避免 database is locked
	db.SetMaxOpenConns(1)

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		if strings.Contains(err.Error(), "database is locked") {
			return fmt.Errorf("database is locked, another process may be using it: %w", err)
		}
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Set WAL mode
	if _, err = db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return fmt.Errorf("failed to set WAL mode: %w", err)
	}

	var journalMode string
	if err = db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		db.Close()
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	c.logger.Debug("Database journal mode set to: %s", journalMode)

	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}

	c.db = db
	return nil
}

// Close closes the database connection
func (c *Client) Close() error {
	if c.db != nil {
		c.logger.Info("Closing database connection")
		err := c.db.Close()
		c.db = nil
		return err
	}
	return nil
}

// Record appends one entry to the history. CreatedAt defaults to now.
func (c *Client) Record(entry model.HistoryEntry) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := c.db.Exec(
		"INSERT INTO history (created_at, action, target, detail, success) VALUES (?, ?, ?, ?, ?)",
		entry.CreatedAt.UTC().Format(time.RFC3339Nano), entry.Action, entry.Target, entry.Detail, entry.Success,
	)
	if err != nil {
		return fmt.Errorf("failed to record history: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (c *Client) Recent(limit int) ([]model.HistoryEntry, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = _const.DefaultHistoryLimit
	}
	if limit > _const.MaxHistoryLimit {
		limit = _const.MaxHistoryLimit
	}

	rows, err := c.db.Query(
		"SELECT id, created_at, action, target, detail, success FROM history ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := []model.HistoryEntry{}
	for rows.Next() {
		var entry model.HistoryEntry
		var createdAt string
		if err := rows.Scan(&entry.ID, &createdAt, &entry.Action, &entry.Target, &entry.Detail, &entry.Success); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			c.logger.Warn("Invalid history timestamp %q: %v", createdAt, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return entries, nil
}

// Query executes a SQL query and returns the results
// Supports parameterized queries using ? placeholders
func (c *Client) Query(query string, args ...interface{}) ([]map[string]interface{}, error) {
	c.logger.Debug("Executing query: %s", query)
	if c.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	var results []map[string]interface{}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))

		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			val := values[i]
			if b, ok := val.([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = val
			}
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	c.logger.Debug("Query returned %d rows", len(results))
	return results, nil
}

// Execute executes a SQL command (INSERT, UPDATE, DELETE)
func (c *Client) Execute(query string, args ...interface{}) (int64, error) {
	c.logger.Debug("Executing command: %s", query)
	if c.db == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	result, err := c.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to execute command: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	c.logger.Debug("Command affected %d rows", rowsAffected)
	return rowsAffected, nil
}

// Prune deletes all but the newest keep entries.
func (c *Client) Prune(keep int) (int64, error) {
	return c.Execute("DELETE FROM history WHERE id NOT IN (SELECT id FROM history ORDER BY id DESC LIMIT ?)", keep)
}

// CountByAction returns how many history entries each action has.
func (c *Client) CountByAction() (map[string]int64, error) {
	rows, err := c.Query("SELECT action, COUNT(*) AS total FROM history GROUP BY action")
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		action, _ := row["action"].(string)
		total, _ := row["total"].(int64)
		counts[action] = total
	}
	return counts, nil
}
