package server

import "testing"

func TestAnalyticsFlushOnStop(t *testing.T) {
	db := openTestDB(t)
	a := NewAnalytics(db, nil)

	a.Track(EvtSessionStart, 0, "s1", nil)
	a.Track(EvtCommand, 0, "s1", map[string]any{"id": "x", "type": "altitude", "value": 30000})
	a.Track(EvtCommand, 7, "s1", nil)
	a.Stop()

	counts, err := a.EventCounts(1)
	if err != nil {
		t.Fatal(err)
	}
	if counts[EvtSessionStart] != 1 || counts[EvtCommand] != 2 {
		t.Errorf("counts = %v", counts)
	}

	days, err := a.DailySessions(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 1 || days[0].Count != 1 {
		t.Errorf("DailySessions = %+v", days)
	}
}

func TestAnalyticsWithoutDB(t *testing.T) {
	a := NewAnalytics(nil, nil)
	a.Track(EvtReset, 0, "s", nil)
	a.SetActiveSessions(3)
	a.SetConnections(4)
	if s, c := a.LiveMetrics(); s != 3 || c != 4 {
		t.Errorf("LiveMetrics = %d, %d", s, c)
	}
	a.Stop()

	counts, err := a.EventCounts(7)
	if err != nil || len(counts) != 0 {
		t.Errorf("EventCounts = %v, %v", counts, err)
	}
}

func TestNilAnalytics(t *testing.T) {
	var a *Analytics
	a.Track(EvtConflict, 0, "", nil)
	a.SetActiveSessions(1)
	a.Stop()
	if s, c := a.LiveMetrics(); s != 0 || c != 0 {
		t.Errorf("LiveMetrics = %d, %d", s, c)
	}
}
