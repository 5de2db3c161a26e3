package server

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"atc-sim/internal/log"
)

// Event types for analytics tracking
const (
	EvtSessionStart = "session_start"
	EvtSessionEnd   = "session_end"
	EvtCommand      = "command"
	EvtConflict     = "conflict"
	EvtReset        = "reset"
)

const (
	analyticsBuf        = 1024
	analyticsBatch      = 50
	analyticsFlushEvery = 5 * time.Second
)

// AnalyticsEvent represents a single trackable event
type AnalyticsEvent struct {
	Type       string
	OperatorID int64
	SessionID  string
	Data       string // JSON metadata (optional)
	Timestamp  time.Time
}

// Analytics handles event tracking with batched background writes. A nil
// *Analytics or one without a database accepts and discards events.
type Analytics struct {
	db     *DB
	lg     *log.Logger
	events chan AnalyticsEvent
	stop   chan struct{}
	wg     sync.WaitGroup

	mu             sync.RWMutex
	activeSessions int
	connections    int
}

// NewAnalytics creates and starts the analytics background writer
func NewAnalytics(db *DB, lg *log.Logger) *Analytics {
	a := &Analytics{
		db:     db,
		lg:     lg,
		events: make(chan AnalyticsEvent, analyticsBuf),
		stop:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// Track enqueues an event for async persistence (non-blocking). data is
// marshalled to JSON when not nil.
func (a *Analytics) Track(evtType string, operatorID int64, sessionID string, data any) {
	if a == nil {
		return
	}
	var meta string
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			a.lg.Warnf("analytics: marshal %s: %v", evtType, err)
		} else {
			meta = string(b)
		}
	}
	select {
	case a.events <- AnalyticsEvent{
		Type:       evtType,
		OperatorID: operatorID,
		SessionID:  sessionID,
		Data:       meta,
		Timestamp:  time.Now().UTC(),
	}:
	default:
		// full, drop rather than stall the caller
	}
}

// SetActiveSessions updates live session count metric
func (a *Analytics) SetActiveSessions(n int) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.activeSessions = n
	a.mu.Unlock()
}

// SetConnections updates the live websocket connection metric
func (a *Analytics) SetConnections(n int) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.connections = n
	a.mu.Unlock()
}

// LiveMetrics returns (active sessions, connections)
func (a *Analytics) LiveMetrics() (int, int) {
	if a == nil {
		return 0, 0
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.activeSessions, a.connections
}

// Stop flushes pending events and shuts down the writer
func (a *Analytics) Stop() {
	if a == nil {
		return
	}
	close(a.stop)
	a.wg.Wait()
}

func (a *Analytics) writer() {
	defer a.wg.Done()

	batch := make([]AnalyticsEvent, 0, 64)
	ticker := time.NewTicker(analyticsFlushEvery)
	defer ticker.Stop()

	for {
		select {
		case evt := <-a.events:
			batch = append(batch, evt)
			if len(batch) >= analyticsBatch {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.stop:
		drain:
			for {
				select {
				case evt := <-a.events:
					batch = append(batch, evt)
				default:
					break drain
				}
			}
			a.flush(batch)
			return
		}
	}
}

// flush writes a batch of events to the database
func (a *Analytics) flush(events []AnalyticsEvent) {
	if a.db == nil || len(events) == 0 {
		return
	}
	tx, err := a.db.conn.Begin()
	if err != nil {
		a.lg.Errorf("analytics: begin tx: %v", err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO analytics_events (event_type, operator_id, session_id, data, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		a.lg.Errorf("analytics: prepare: %v", err)
		return
	}
	defer stmt.Close()

	for _, evt := range events {
		oid := sql.NullInt64{Int64: evt.OperatorID, Valid: evt.OperatorID > 0}
		sid := sql.NullString{String: evt.SessionID, Valid: evt.SessionID != ""}
		data := sql.NullString{String: evt.Data, Valid: evt.Data != ""}
		if _, err := stmt.Exec(evt.Type, oid, sid, data, evt.Timestamp.Format(time.RFC3339)); err != nil {
			a.lg.Errorf("analytics: insert %s: %v", evt.Type, err)
		}
	}
	if err := tx.Commit(); err != nil {
		a.lg.Errorf("analytics: commit: %v", err)
	}
}

// EventCounts returns counts of each event type for the last N days
func (a *Analytics) EventCounts(days int) (map[string]int, error) {
	result := make(map[string]int)
	if a == nil || a.db == nil {
		return result, nil
	}
	rows, err := a.db.conn.Query(`
		SELECT event_type, COUNT(*) FROM analytics_events
		WHERE created_at >= date('now', '-' || ? || ' days')
		GROUP BY event_type ORDER BY COUNT(*) DESC
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var evtType string
		var count int
		if err := rows.Scan(&evtType, &count); err != nil {
			return nil, err
		}
		result[evtType] = count
	}
	return result, rows.Err()
}

// DayCount holds a count for a specific day
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// DailySessions returns the number of sessions started per day for the last N days
func (a *Analytics) DailySessions(days int) ([]DayCount, error) {
	result := []DayCount{}
	if a == nil || a.db == nil {
		return result, nil
	}
	rows, err := a.db.conn.Query(`
		SELECT date(created_at) AS day, COUNT(*)
		FROM analytics_events
		WHERE event_type = ? AND created_at >= date('now', '-' || ? || ' days')
		GROUP BY day ORDER BY day
	`, EvtSessionStart, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, err
		}
		result = append(result, dc)
	}
	return result, rows.Err()
}
