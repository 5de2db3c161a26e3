package rand

import "testing"

func TestSeedDeterminism(t *testing.T) {
	a, b := New(42), New(42)
	for i := 0; i < 100; i++ {
		if x, y := a.Uint32(), b.Uint32(); x != y {
			t.Fatalf("draw %d: %d != %d with identical seeds", i, x, y)
		}
	}

	c := New(43)
	same := 0
	a.Seed(42)
	for i := 0; i < 100; i++ {
		if a.Uint32() == c.Uint32() {
			same++
		}
	}
	if same == 100 {
		t.Error("different seeds produced identical streams")
	}
}

func TestIntnBounds(t *testing.T) {
	r := New(1)
	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		v := r.Intn(4)
		if v < 0 || v >= 4 {
			t.Fatalf("Intn(4) = %d, out of range", v)
		}
		seen[v] = true
	}
	if len(seen) != 4 {
		t.Errorf("expected all 4 values to appear, saw %v", seen)
	}
}

func TestFloat64Range(t *testing.T) {
	r := New(7)
	for i := 0; i < 10000; i++ {
		if f := r.Float64(); f < 0 || f >= 1 {
			t.Fatalf("Float64() = %v, out of [0,1)", f)
		}
		if f := r.Range(-30, 30); f < -30 || f >= 30 {
			t.Fatalf("Range(-30,30) = %v", f)
		}
	}
}

func TestBernoulliExtremes(t *testing.T) {
	r := New(3)
	for i := 0; i < 100; i++ {
		if r.Bernoulli(0) {
			t.Fatal("Bernoulli(0) succeeded")
		}
		if !r.Bernoulli(1) {
			t.Fatal("Bernoulli(1) failed")
		}
	}
}

func TestRead(t *testing.T) {
	r := New(9)
	buf := make([]byte, 17)
	n, err := r.Read(buf)
	if err != nil || n != len(buf) {
		t.Fatalf("Read = %d, %v", n, err)
	}
	zero := true
	for _, b := range buf {
		if b != 0 {
			zero = false
		}
	}
	if zero {
		t.Error("Read produced all zero bytes")
	}
}

func TestSampleSlice(t *testing.T) {
	r := New(11)
	s := []string{"a", "b", "c"}
	for i := 0; i < 50; i++ {
		v := SampleSlice(r, s)
		if v != "a" && v != "b" && v != "c" {
			t.Fatalf("SampleSlice returned %q", v)
		}
	}
}
