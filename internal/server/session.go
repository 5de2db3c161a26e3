package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"atc-sim/internal/log"
	"atc-sim/internal/sim"
)

const (
	maxSessions = 100
	snapshotTTL = 2 * time.Second
)

// SessionIdleTimeout is how long a session with no attached connection
// is kept for a resume before it is ended. It is read when a
// SessionManager is created.
var SessionIdleTimeout = 2 * time.Minute

// SessionConfig is applied to the engine of every new session.
type SessionConfig struct {
	Seed          int64 // 0 seeds each session from the clock
	TickInterval  time.Duration
	ClockInterval time.Duration
	Rules         sim.Rules
}

// Session is one operator's game: an engine running on its own goroutine
// and at most one attached connection.
type Session struct {
	ID        string
	Name      string
	Engine    *sim.Engine
	CreatedAt time.Time

	cancel context.CancelFunc

	mu         sync.Mutex
	operatorID int64
	client     *Client
	stopFeed   func()
	idle       *time.Timer
	ended      bool
}

// OperatorID returns the account the session's results are attributed
// to, 0 for a guest.
func (s *Session) OperatorID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operatorID
}

// adoptOperator attributes a guest session to an operator who logged in
// while playing it.
func (s *Session) adoptOperator(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.operatorID == 0 {
		s.operatorID = id
	}
}

// Attached reports whether a connection is currently attached.
func (s *Session) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

// SessionManager handles creation, lookup and teardown of sessions
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	created  int64
	idleTTL  time.Duration

	cfg       SessionConfig
	db        *DB
	analytics *Analytics
	lg        *log.Logger
}

// NewSessionManager creates a new SessionManager. db and analytics may be nil.
func NewSessionManager(cfg SessionConfig, db *DB, analytics *Analytics, lg *log.Logger) *SessionManager {
	return &SessionManager{
		sessions:  make(map[string]*Session),
		idleTTL:   SessionIdleTimeout,
		cfg:       cfg,
		db:        db,
		analytics: analytics,
		lg:        lg,
	}
}

// CreateSession starts a new session and its engine.
func (sm *SessionManager) CreateSession(name string, operatorID int64) (*Session, error) {
	sm.mu.Lock()
	if len(sm.sessions) >= maxSessions {
		sm.mu.Unlock()
		return nil, ErrTooManySessions
	}
	sm.created++
	seed := sm.cfg.Seed
	if seed != 0 {
		seed += sm.created - 1
	}

	id := GenerateUUID()
	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		ID:        id,
		Name:      name,
		CreatedAt: time.Now(),
		cancel:    cancel,
		Engine: sim.NewEngine(sim.Config{
			Seed:          seed,
			TickInterval:  sm.cfg.TickInterval,
			ClockInterval: sm.cfg.ClockInterval,
			Rules:         sm.cfg.Rules,
			Logger:        sm.lg.With("sid", id),
		}),
		operatorID: operatorID,
	}
	sm.sessions[sess.ID] = sess
	n := len(sm.sessions)
	sm.mu.Unlock()

	go func() {
		if err := sess.Engine.Run(ctx); err != nil {
			sm.lg.Errorf("session %s: engine: %v", sess.ID, err)
		}
	}()

	sm.analytics.SetActiveSessions(n)
	sm.analytics.Track(EvtSessionStart, operatorID, sess.ID, nil)
	sm.lg.Info("session created", "sid", sess.ID, "name", name, "operator_id", operatorID)
	return sess, nil
}

// GetSession returns a session by ID, or nil
func (sm *SessionManager) GetSession(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// Count returns the number of live sessions
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Attach binds c to sess, sends ack and then starts forwarding engine
// states to it. A session has at most one connection.
func (sm *SessionManager) Attach(sess *Session, c *Client, ack Envelope) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.ended {
		return ErrSessionNotFound
	}
	if sess.client != nil && sess.client != c {
		return ErrSessionInUse
	}
	if sess.client == c {
		c.SendJSON(ack)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), snapshotTTL)
	defer cancel()
	ch, unsub, err := sess.Engine.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("attach %s: %w: %w", sess.ID, ErrSessionNotFound, err)
	}
	if sess.idle != nil {
		sess.idle.Stop()
		sess.idle = nil
	}
	if sess.operatorID == 0 && c.operatorID != 0 {
		sess.operatorID = c.operatorID
	}

	// the initial state is already buffered; the feed starts after the ack
	c.SendJSON(ack)
	sess.client = c
	sess.stopFeed = unsub
	go sm.feed(sess, c, ch)
	return nil
}

// Detach unbinds c from sess. The session is kept for the idle timeout
// so the operator can resume it, then ended.
func (sm *SessionManager) Detach(sess *Session, c *Client) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.client != c {
		return
	}
	sess.client = nil
	if sess.stopFeed != nil {
		sess.stopFeed()
		sess.stopFeed = nil
	}
	id := sess.ID
	sess.idle = time.AfterFunc(sm.idleTTL, func() {
		if _, err := sm.EndSession(id); err == nil {
			sm.lg.Info("idle session ended", "sid", id)
		}
	})
}

// feed forwards every published state to c until the subscription closes
// and reports newly formed conflicts to analytics.
func (sm *SessionManager) feed(sess *Session, c *Client, ch <-chan sim.State) {
	seen := make(map[[2]string]bool)
	for st := range ch {
		c.SendState(st)

		next := make(map[[2]string]bool, len(st.Conflicts))
		for _, cf := range st.Conflicts {
			key := [2]string{cf.A, cf.B}
			next[key] = true
			if !seen[key] {
				sm.analytics.Track(EvtConflict, sess.OperatorID(), sess.ID, map[string]any{
					"a":        cf.A,
					"b":        cf.B,
					"distance": cf.Distance,
					"alt_diff": cf.AltitudeDiff,
				})
			}
		}
		seen = next
	}
}

// EndSession stops a session, records its result and removes it. The
// result is nil when nothing was played.
func (sm *SessionManager) EndSession(id string) (*ResultMsg, error) {
	sm.mu.Lock()
	sess, ok := sm.sessions[id]
	if ok {
		delete(sm.sessions, id)
	}
	n := len(sm.sessions)
	sm.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	sess.mu.Lock()
	if sess.idle != nil {
		sess.idle.Stop()
		sess.idle = nil
	}
	if sess.stopFeed != nil {
		sess.stopFeed()
		sess.stopFeed = nil
	}
	sess.client = nil
	sess.ended = true
	sess.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), snapshotTTL)
	defer cancel()
	final, err := sess.Engine.Snapshot(ctx)
	sess.cancel()
	<-sess.Engine.Done()
	sm.analytics.SetActiveSessions(n)
	if err != nil {
		return nil, fmt.Errorf("end session %s: %w", id, err)
	}

	res := sm.record(sess, final)
	sm.analytics.Track(EvtSessionEnd, sess.OperatorID(), sess.ID, map[string]any{
		"score":      final.Score,
		"collisions": final.Collisions,
		"time":       final.GameTime,
	})
	sm.lg.Info("session ended", "sid", id, "score", final.Score, "collisions", final.Collisions,
		"time", sim.FormatGameTime(final.GameTime))
	return res, nil
}

// ResetSession starts sess over. The replaced game is recorded if it was
// played.
func (sm *SessionManager) ResetSession(ctx context.Context, sess *Session) (*ResultMsg, error) {
	prev, err := sess.Engine.Reset(ctx)
	if err != nil {
		return nil, fmt.Errorf("reset session %s: %w", sess.ID, err)
	}
	sm.analytics.Track(EvtReset, sess.OperatorID(), sess.ID, map[string]any{
		"score":      prev.Score,
		"collisions": prev.Collisions,
		"time":       prev.GameTime,
	})
	return sm.record(sess, prev), nil
}

// record stores the figures of a played game. Unplayed games (no clock
// seconds elapsed) are not recorded.
func (sm *SessionManager) record(sess *Session, st sim.State) *ResultMsg {
	if st.GameTime == 0 {
		return nil
	}
	res := &ResultMsg{
		SID:        sess.ID,
		Score:      st.Score,
		Collisions: st.Collisions,
		GameTime:   st.GameTime,
	}
	if sm.db == nil {
		return res
	}
	_, err := sm.db.RecordResult(ResultRow{
		SessionID:  sess.ID,
		OperatorID: sess.OperatorID(),
		Name:       sess.Name,
		Score:      st.Score,
		Collisions: st.Collisions,
		GameTime:   st.GameTime,
		Ticks:      st.Tick,
	})
	if err != nil {
		sm.lg.Errorf("record result for %s: %v", sess.ID, err)
		return res
	}
	if rank, err := sm.db.RankOf(st.Score); err == nil {
		res.Rank = rank
	}
	return res
}

// Shutdown ends every session, recording played games.
func (sm *SessionManager) Shutdown() {
	sm.mu.RLock()
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	sm.mu.RUnlock()

	for _, id := range ids {
		if _, err := sm.EndSession(id); err != nil {
			sm.lg.Warnf("shutdown: %v", err)
		}
	}
}
