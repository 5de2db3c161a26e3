package sim

import "testing"

func TestDetectConflicts(t *testing.T) {
	list := []Aircraft{
		steady("a", 50, 50, 90, 25000, 300),
		steady("b", 51, 50, 90, 25500, 300),
		steady("c", 52, 50, 90, 27000, 300), // close to b laterally, 1500 ft apart
		steady("d", 80, 80, 90, 25000, 300),
	}
	got := DetectConflicts(list)
	if len(got) != 1 {
		t.Fatalf("expected 1 conflict, got %+v", got)
	}
	if got[0].A != "a" || got[0].B != "b" || got[0].AltitudeDiff != 500 {
		t.Errorf("unexpected conflict %+v", got[0])
	}
	if got[0].Distance < 0.999 || got[0].Distance > 1.001 {
		t.Errorf("distance %v, want 1", got[0].Distance)
	}
}

func TestInConflictThresholds(t *testing.T) {
	base := steady("a", 50, 50, 0, 25000, 300)
	cases := []struct {
		name string
		x    float64
		alt  int
		want bool
	}{
		{"inside both", 52.9, 25999, true},
		{"exactly 3 apart", 53, 25000, false},
		{"exactly 1000 ft", 50, 26000, false},
		{"lateral only", 50.5, 30000, false},
		{"vertical only", 60, 25000, false},
	}
	for _, c := range cases {
		b := steady("b", c.x, 50, 0, c.alt, 300)
		if got := InConflict(base, b); got != c.want {
			t.Errorf("%s: InConflict = %v, want %v", c.name, got, c.want)
		}
		if got := InConflict(b, base); got != c.want {
			t.Errorf("%s: InConflict not symmetric", c.name)
		}
	}
}

func TestDetectConflictsOrderIndependentCount(t *testing.T) {
	list := []Aircraft{
		steady("a", 50, 50, 0, 25000, 300),
		steady("b", 51, 50, 0, 25100, 300),
		steady("c", 50, 51, 0, 25200, 300),
	}
	reversed := []Aircraft{list[2], list[1], list[0]}
	if n, m := len(DetectConflicts(list)), len(DetectConflicts(reversed)); n != 3 || m != 3 {
		t.Errorf("expected 3 conflicts either way, got %d and %d", n, m)
	}
}
