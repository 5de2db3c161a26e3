package server

import (
	"path/filepath"
	"testing"
)

func TestOpenDBMigratesTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atc.db")
	db, err := OpenDB(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := db.CreateOperator("alice", "hash"); err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}
	db.Close()

	db, err = OpenDB(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer db.Close()
	exists, err := db.UsernameExists("alice")
	if err != nil || !exists {
		t.Errorf("UsernameExists(alice) = %v, %v after reopen", exists, err)
	}
}

func TestOperators(t *testing.T) {
	db := openTestDB(t)

	id, err := db.CreateOperator("bob", "h1")
	if err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}
	if _, err := db.CreateOperator("bob", "h2"); err == nil {
		t.Error("duplicate username should fail")
	}

	op, err := db.GetOperatorByUsername("bob")
	if err != nil || op == nil {
		t.Fatalf("GetOperatorByUsername: %v, %v", op, err)
	}
	if op.ID != id || op.PassHash != "h1" {
		t.Errorf("got %+v, want id %d hash h1", op, id)
	}

	op, err = db.GetOperatorByUsername("nobody")
	if err != nil || op != nil {
		t.Errorf("missing operator: got %v, %v", op, err)
	}
}

func TestSettings(t *testing.T) {
	db := openTestDB(t)

	if v := db.GetSetting("k"); v != "" {
		t.Errorf("unset key = %q", v)
	}
	if err := db.SetSetting("k", "one"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSetting("k", "two"); err != nil {
		t.Fatal(err)
	}
	if v := db.GetSetting("k"); v != "two" {
		t.Errorf("GetSetting = %q, want two", v)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	db := openTestDB(t)
	oid, _ := db.CreateOperator("carol", "h")

	for _, r := range []ResultRow{
		{SessionID: "s1", Name: "guest1", Score: 3, GameTime: 40},
		{SessionID: "s2", Name: "ignored", OperatorID: oid, Score: 12, Collisions: 2, GameTime: 90, Ticks: 450},
		{SessionID: "s3", Name: "guest2", Score: 3, GameTime: 60},
		{SessionID: "s4", Name: "guest3", Score: 0, GameTime: 5},
	} {
		if _, err := db.RecordResult(r); err != nil {
			t.Fatalf("RecordResult: %v", err)
		}
	}

	lb, err := db.GetLeaderboard(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(lb) != 3 {
		t.Fatalf("got %d entries, want 3", len(lb))
	}
	want := []struct {
		name  string
		score int
	}{{"carol", 12}, {"guest2", 3}, {"guest1", 3}}
	for i, w := range want {
		if lb[i].Rank != i+1 || lb[i].Name != w.name || lb[i].Score != w.score {
			t.Errorf("entry %d = %+v, want rank %d %s %d", i, lb[i], i+1, w.name, w.score)
		}
	}

	if rank, _ := db.RankOf(12); rank != 1 {
		t.Errorf("RankOf(12) = %d, want 1", rank)
	}
	if rank, _ := db.RankOf(3); rank != 2 {
		t.Errorf("RankOf(3) = %d, want 2", rank)
	}
	if rank, _ := db.RankOf(0); rank != 4 {
		t.Errorf("RankOf(0) = %d, want 4", rank)
	}

	mine, err := db.GetOperatorResults(oid, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].SessionID != "s2" || mine[0].Ticks != 450 || mine[0].OperatorID != oid {
		t.Errorf("GetOperatorResults = %+v", mine)
	}
}

func TestEmptyLeaderboard(t *testing.T) {
	db := openTestDB(t)
	lb, err := db.GetLeaderboard(10)
	if err != nil {
		t.Fatal(err)
	}
	if lb == nil || len(lb) != 0 {
		t.Errorf("want empty non-nil slice, got %#v", lb)
	}
}
