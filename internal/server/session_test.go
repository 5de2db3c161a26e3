package server

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"atc-sim/internal/sim"
)

func testSessionConfig() SessionConfig {
	rules := sim.DefaultRules()
	rules.SpawnProbability = 0
	return SessionConfig{
		Seed:          99,
		TickInterval:  5 * time.Millisecond,
		ClockInterval: 20 * time.Millisecond,
		Rules:         rules,
	}
}

func newTestManager(t *testing.T, db *DB) *SessionManager {
	t.Helper()
	sm := NewSessionManager(testSessionConfig(), db, nil, nil)
	t.Cleanup(sm.Shutdown)
	return sm
}

// fakeClient is a Client with no connection; frames accumulate in send.
func fakeClient() *Client {
	return &Client{hub: &Hub{}, send: make(chan []byte, sendBufSize)}
}

// playUntil runs sess until its clock shows at least sec seconds.
func playUntil(t *testing.T, sess *Session, sec int) {
	t.Helper()
	sess.Engine.TogglePlay()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st, err := sess.Engine.Snapshot(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if st.GameTime >= sec {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("clock did not reach %ds", sec)
}

func TestSessionManagerCreateAndGet(t *testing.T) {
	sm := newTestManager(t, nil)
	sess, err := sm.CreateSession("Tower", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !uuidRegex.MatchString(sess.ID) {
		t.Errorf("session id %q is not a v4 uuid", sess.ID)
	}
	if got := sm.GetSession(sess.ID); got != sess {
		t.Error("GetSession did not return the created session")
	}
	if sm.GetSession("nonexistent") != nil {
		t.Error("expected nil for unknown id")
	}
	if sm.Count() != 1 {
		t.Errorf("Count = %d", sm.Count())
	}

	st, err := sess.Engine.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Aircraft) != 3 || st.Playing {
		t.Errorf("new session state: %d aircraft, playing=%v", len(st.Aircraft), st.Playing)
	}
}

func TestSessionSeedsAreDeterministic(t *testing.T) {
	first := func() []string {
		sm := NewSessionManager(testSessionConfig(), nil, nil, nil)
		defer sm.Shutdown()
		sess, err := sm.CreateSession("x", 0)
		if err != nil {
			t.Fatal(err)
		}
		st, _ := sess.Engine.Snapshot(context.Background())
		var ids []string
		for _, a := range st.Aircraft {
			ids = append(ids, a.ID)
		}
		return ids
	}
	a, b := first(), first()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("aircraft ids differ for the same seed: %v vs %v", a, b)
		}
	}
}

func TestSessionLimit(t *testing.T) {
	sm := newTestManager(t, nil)
	for i := 0; i < maxSessions; i++ {
		if _, err := sm.CreateSession("s", 0); err != nil {
			t.Fatalf("session %d: %v", i, err)
		}
	}
	if _, err := sm.CreateSession("s", 0); !errors.Is(err, ErrTooManySessions) {
		t.Errorf("over limit: %v", err)
	}
}

func TestEndUnplayedSessionRecordsNothing(t *testing.T) {
	db := openTestDB(t)
	sm := newTestManager(t, db)
	sess, _ := sm.CreateSession("Idle", 0)

	res, err := sm.EndSession(sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Errorf("unplayed session produced result %+v", res)
	}
	select {
	case <-sess.Engine.Done():
	default:
		t.Error("engine still running after EndSession")
	}
	if _, err := sm.EndSession(sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second end: %v", err)
	}
	lb, _ := db.GetLeaderboard(10)
	if len(lb) != 0 {
		t.Errorf("leaderboard = %+v", lb)
	}
}

func TestEndPlayedSessionRecordsResult(t *testing.T) {
	db := openTestDB(t)
	sm := newTestManager(t, db)
	sess, _ := sm.CreateSession("Approach", 0)
	playUntil(t, sess, 2)

	res, err := sm.EndSession(sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res == nil {
		t.Fatal("expected a result")
	}
	if res.GameTime < 2 || res.SID != sess.ID || res.Rank != 1 {
		t.Errorf("result = %+v", res)
	}
	lb, _ := db.GetLeaderboard(10)
	if len(lb) != 1 || lb[0].Name != "Approach" || lb[0].GameTime != res.GameTime {
		t.Errorf("leaderboard = %+v", lb)
	}
}

func TestResetSessionRecordsPreviousGame(t *testing.T) {
	db := openTestDB(t)
	sm := newTestManager(t, db)
	sess, _ := sm.CreateSession("Center", 0)
	playUntil(t, sess, 1)

	res, err := sm.ResetSession(context.Background(), sess)
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || res.GameTime < 1 {
		t.Fatalf("result = %+v", res)
	}
	st, _ := sess.Engine.Snapshot(context.Background())
	if st.GameTime != 0 || st.Playing || len(st.Aircraft) != 3 {
		t.Errorf("after reset: time=%d playing=%v aircraft=%d", st.GameTime, st.Playing, len(st.Aircraft))
	}

	// a fresh game has nothing to record
	res, err = sm.ResetSession(context.Background(), sess)
	if err != nil || res != nil {
		t.Errorf("second reset = %+v, %v", res, err)
	}
}

func TestAttachSingleConnection(t *testing.T) {
	sm := newTestManager(t, nil)
	sess, _ := sm.CreateSession("Ground", 0)

	c1, c2 := fakeClient(), fakeClient()
	if err := sm.Attach(sess, c1, Envelope{T: MsgCreated}); err != nil {
		t.Fatal(err)
	}
	if err := sm.Attach(sess, c2, Envelope{T: MsgResumed}); !errors.Is(err, ErrSessionInUse) {
		t.Errorf("second attach: %v", err)
	}
	if !sess.Attached() {
		t.Error("Attached = false")
	}

	// ack first, then the current state
	for _, want := range []string{MsgCreated, MsgState} {
		select {
		case raw := <-c1.send:
			var env InEnvelope
			if err := json.Unmarshal(raw, &env); err != nil || env.T != want {
				t.Fatalf("frame %s: got %q (%v)", want, env.T, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("no %s frame", want)
		}
	}
}

func TestDetachEndsSessionAfterIdleTimeout(t *testing.T) {
	prev := SessionIdleTimeout
	SessionIdleTimeout = 30 * time.Millisecond
	defer func() { SessionIdleTimeout = prev }()

	sm := newTestManager(t, nil)
	sess, _ := sm.CreateSession("Gone", 0)
	c := fakeClient()
	if err := sm.Attach(sess, c, Envelope{T: MsgCreated}); err != nil {
		t.Fatal(err)
	}
	sm.Detach(sess, c)
	if sess.Attached() {
		t.Error("still attached after Detach")
	}

	time.Sleep(SessionIdleTimeout + 50*time.Millisecond)
	if sm.GetSession(sess.ID) != nil {
		t.Error("session should be ended after the idle timeout")
	}
}

func TestReattachCancelsIdleTimeout(t *testing.T) {
	prev := SessionIdleTimeout
	SessionIdleTimeout = 30 * time.Millisecond
	defer func() { SessionIdleTimeout = prev }()

	sm := newTestManager(t, nil)
	sess, _ := sm.CreateSession("Back", 0)
	c1 := fakeClient()
	sm.Attach(sess, c1, Envelope{T: MsgCreated})
	sm.Detach(sess, c1)

	c2 := fakeClient()
	if err := sm.Attach(sess, c2, Envelope{T: MsgResumed}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(SessionIdleTimeout + 50*time.Millisecond)
	if sm.GetSession(sess.ID) == nil {
		t.Error("resumed session was ended by a stale idle timer")
	}
}

func TestAdoptOperator(t *testing.T) {
	sm := newTestManager(t, nil)
	sess, _ := sm.CreateSession("Guest", 0)
	sess.adoptOperator(5)
	sess.adoptOperator(6)
	if got := sess.OperatorID(); got != 5 {
		t.Errorf("OperatorID = %d, want 5", got)
	}
}

func TestAttachEndedSession(t *testing.T) {
	sm := newTestManager(t, nil)
	sess, _ := sm.CreateSession("Closed", 0)
	if _, err := sm.EndSession(sess.ID); err != nil {
		t.Fatal(err)
	}

	c := fakeClient()
	if err := sm.Attach(sess, c, Envelope{T: MsgResumed}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("attach ended session: %v", err)
	}
	if sess.Attached() {
		t.Error("ended session has a connection")
	}
	if len(c.send) != 0 {
		t.Errorf("%d frames sent for a failed attach", len(c.send))
	}
}

func TestAttachStoppedEngine(t *testing.T) {
	sm := newTestManager(t, nil)
	sess, _ := sm.CreateSession("Stopped", 0)
	// the engine stops while the session is still listed
	sess.cancel()
	<-sess.Engine.Done()

	for i := 0; i < 50; i++ {
		c := fakeClient()
		if err := sm.Attach(sess, c, Envelope{T: MsgResumed}); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if sess.Attached() {
			t.Fatalf("attempt %d: attached to a stopped engine", i)
		}
	}
}
