package server

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// OperatorRow is an operator account
type OperatorRow struct {
	ID        int64
	Username  string
	PassHash  string
	CreatedAt time.Time
}

// ResultRow is the final tally of one recorded session
type ResultRow struct {
	ID         int64
	SessionID  string
	OperatorID int64 // 0 for guests
	Name       string
	Score      int
	Collisions int
	GameTime   int // seconds
	Ticks      uint64
	CreatedAt  time.Time
}

// LeaderboardEntry represents one row in the leaderboard
type LeaderboardEntry struct {
	Rank       int    `json:"rank"`
	Name       string `json:"name"`
	Score      int    `json:"score"`
	Collisions int    `json:"collisions"`
	GameTime   int    `json:"time"`
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY
	// between the analytics writer and result inserts.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS operators (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		pass_hash TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		operator_id INTEGER REFERENCES operators(id),
		name TEXT NOT NULL DEFAULT '',
		score INTEGER NOT NULL DEFAULT 0,
		collisions INTEGER NOT NULL DEFAULT 0,
		game_time INTEGER NOT NULL DEFAULT 0,
		ticks INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analytics_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		operator_id INTEGER,
		session_id TEXT,
		data TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_score ON results(score DESC);
	CREATE INDEX IF NOT EXISTS idx_results_operator ON results(operator_id);
	CREATE INDEX IF NOT EXISTS idx_events_type ON analytics_events(event_type, created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// CreateOperator creates a new operator account (returns operator ID)
func (db *DB) CreateOperator(username, passHash string) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO operators (username, pass_hash) VALUES (?, ?)",
		username, passHash,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetOperatorByUsername returns an operator by username, or nil if there is none
func (db *DB) GetOperatorByUsername(username string) (*OperatorRow, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, pass_hash, created_at FROM operators WHERE username = ?",
		username,
	)
	o := &OperatorRow{}
	err := row.Scan(&o.ID, &o.Username, &o.PassHash, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

// UsernameExists checks if a username is taken
func (db *DB) UsernameExists(username string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM operators WHERE username = ?", username).Scan(&count)
	return count > 0, err
}

// GetSetting returns the stored value for key, or "" if unset
func (db *DB) GetSetting(key string) string {
	var v string
	if err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v); err != nil {
		return ""
	}
	return v
}

// SetSetting stores value under key
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// RecordResult stores a finished session and returns its row ID
func (db *DB) RecordResult(r ResultRow) (int64, error) {
	oid := sql.NullInt64{Int64: r.OperatorID, Valid: r.OperatorID > 0}
	res, err := db.conn.Exec(
		`INSERT INTO results (session_id, operator_id, name, score, collisions, game_time, ticks)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, oid, r.Name, r.Score, r.Collisions, r.GameTime, int64(r.Ticks),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RankOf returns the 1-based leaderboard position a score would take
func (db *DB) RankOf(score int) (int, error) {
	var higher int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM results WHERE score > ?", score).Scan(&higher)
	return higher + 1, err
}

// GetLeaderboard returns the best recorded sessions by score
func (db *DB) GetLeaderboard(limit int) ([]LeaderboardEntry, error) {
	rows, err := db.conn.Query(`
		SELECT COALESCE(o.username, r.name), r.score, r.collisions, r.game_time
		FROM results r LEFT JOIN operators o ON o.id = r.operator_id
		ORDER BY r.score DESC, r.game_time DESC, r.id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []LeaderboardEntry{}
	rank := 1
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Name, &e.Score, &e.Collisions, &e.GameTime); err != nil {
			return nil, err
		}
		e.Rank = rank
		rank++
		result = append(result, e)
	}
	return result, rows.Err()
}

// GetOperatorResults returns an operator's most recent sessions
func (db *DB) GetOperatorResults(operatorID int64, limit int) ([]ResultRow, error) {
	rows, err := db.conn.Query(`
		SELECT id, session_id, COALESCE(operator_id, 0), name, score, collisions, game_time, ticks, created_at
		FROM results WHERE operator_id = ?
		ORDER BY id DESC LIMIT ?`, operatorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ResultRow
	for rows.Next() {
		var r ResultRow
		var ticks int64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.OperatorID, &r.Name, &r.Score, &r.Collisions, &r.GameTime, &ticks, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Ticks = uint64(ticks)
		result = append(result, r)
	}
	return result, rows.Err()
}
