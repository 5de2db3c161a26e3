package sim

import "testing"

func TestNormalizeHeading(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{0, 0},
		{359, 359},
		{360, 0},
		{370, 10},
		{-10, 350},
		{-360, 0},
		{725, 5},
		{-1e-15, 0},
	}
	for _, c := range cases {
		if got := NormalizeHeading(c.in); got != c.want {
			t.Errorf("NormalizeHeading(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestHeadingSignedTurn(t *testing.T) {
	cases := []struct{ cur, target, want float64 }{
		{350, 10, 20},
		{10, 350, -20},
		{90, 270, 180},
		{270, 90, 180},
		{0, 360, 0},
		{45, 44, -1},
		{180, 0, 180},
		{181, 0, 179},
	}
	for _, c := range cases {
		got := HeadingSignedTurn(c.cur, c.target)
		if got != c.want {
			t.Errorf("HeadingSignedTurn(%v, %v) = %v, want %v", c.cur, c.target, got, c.want)
		}
		if got <= -180 || got > 180 {
			t.Errorf("HeadingSignedTurn(%v, %v) = %v outside (-180,180]", c.cur, c.target, got)
		}
	}
}

func TestCompass(t *testing.T) {
	cases := map[float64]string{0: "N", 44: "NE", 90: "E", 180: "S", 269: "W", 337: "NW", 350: "N"}
	for h, want := range cases {
		if got := Compass(h); got != want {
			t.Errorf("Compass(%v) = %s, want %s", h, got, want)
		}
	}
}
