package stroke

import (
	"image"
	"sync"
	"testing"
)

func TestAccumulatorLifecycle(t *testing.T) {
	var acc Accumulator

	acc.AddPoint(1, 1, 0.5) // outside a gesture
	if acc.Len() != 0 {
		t.Fatalf("expected sample outside gesture to be dropped, got %d", acc.Len())
	}

	acc.Begin()
	if !acc.Active() {
		t.Fatal("expected accumulator to be active after Begin")
	}
	acc.AddPoint(1, 2, 0.5)
	acc.AddPoint(3, 4, 1.7)
	acc.AddPoint(5, 6, -1)

	s := acc.End()
	if len(s) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(s))
	}
	if s[1].Pressure != 1 || s[2].Pressure != 0 {
		t.Errorf("expected pressure clamped to [0,1], got %v and %v", s[1].Pressure, s[2].Pressure)
	}
	if acc.Active() || acc.Len() != 0 {
		t.Error("expected End to clear the accumulator")
	}
}

func TestEndWithoutSamplesIsEmpty(t *testing.T) {
	var acc Accumulator
	acc.Begin()
	if s := acc.End(); len(s) != 0 {
		t.Errorf("expected empty stroke, got %d samples", len(s))
	}
}

func TestBeginDiscardsPreviousSamples(t *testing.T) {
	var acc Accumulator
	acc.Begin()
	acc.AddPoint(1, 1, 1)
	acc.Begin()
	if acc.Len() != 0 {
		t.Errorf("expected Begin to clear samples, got %d", acc.Len())
	}
}

func TestAccumulatorConcurrentAdds(t *testing.T) {
	var acc Accumulator
	acc.Begin()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				acc.AddPoint(float32(j), 0, 1)
			}
		}()
	}
	wg.Wait()

	if n := len(acc.End()); n != 800 {
		t.Errorf("expected 800 samples, got %d", n)
	}
}

func TestResample(t *testing.T) {
	s := Stroke{{X: 0, Y: 0, Pressure: 0}, {X: 10, Y: 0, Pressure: 1}}
	got := Resample(s, 2.5)

	wantX := []float32{0, 2.5, 5, 7.5, 10}
	if len(got) != len(wantX) {
		t.Fatalf("expected %d dabs, got %d: %v", len(wantX), len(got), got)
	}
	for i, x := range wantX {
		if got[i].X != x {
			t.Errorf("dab %d: expected x=%v, got %v", i, x, got[i].X)
		}
	}
	if got[2].Pressure != 0.5 {
		t.Errorf("expected interpolated pressure 0.5, got %v", got[2].Pressure)
	}
}

func TestResampleCarriesAcrossSegments(t *testing.T) {
	s := Stroke{{X: 0, Y: 0, Pressure: 1}, {X: 3, Y: 0, Pressure: 1}, {X: 6, Y: 0, Pressure: 1}}
	got := Resample(s, 4)

	wantX := []float32{0, 4, 6}
	if len(got) != len(wantX) {
		t.Fatalf("expected %d dabs, got %d: %v", len(wantX), len(got), got)
	}
	for i, x := range wantX {
		if got[i].X != x {
			t.Errorf("dab %d: expected x=%v, got %v", i, x, got[i].X)
		}
	}
}

func TestResampleSinglePoint(t *testing.T) {
	s := Stroke{{X: 4, Y: 4, Pressure: 1}}
	if got := Resample(s, 1); len(got) != 1 || got[0] != s[0] {
		t.Errorf("expected single point unchanged, got %v", got)
	}
}

func TestResampleWithin(t *testing.T) {
	s := Stroke{{X: 0, Y: 0, Pressure: 1}, {X: 100, Y: 0, Pressure: 1}}
	got := ResampleWithin(s, 2.5, image.Rect(9, -1, 21, 1))

	wantX := []float32{10, 12.5, 15, 17.5, 20}
	if len(got) != len(wantX) {
		t.Fatalf("expected %d dabs, got %d: %v", len(wantX), len(got), got)
	}
	for i, x := range wantX {
		if got[i].X != x {
			t.Errorf("dab %d: expected x=%v, got %v", i, x, got[i].X)
		}
	}
}

func TestResampleWithinSkipsFarSamples(t *testing.T) {
	s := Stroke{{X: 5, Y: 5, Pressure: 1}, {X: 1e8, Y: 5, Pressure: 1}, {X: -1e8, Y: -1e8, Pressure: 1}}
	clip := image.Rect(0, 0, 32, 32)
	got := ResampleWithin(s, 1, clip)

	if len(got) < 27 || len(got) > 40 {
		t.Fatalf("expected only the on-canvas dabs, got %d", len(got))
	}
	for i, p := range got {
		if !inside(p, clip) {
			t.Errorf("dab %d outside clip: %+v", i, p)
		}
	}
	if got[0] != s[0] {
		t.Errorf("expected the first sample kept, got %+v", got[0])
	}
}

func TestResampleWithinOffCanvas(t *testing.T) {
	s := Stroke{{X: -50, Y: -50, Pressure: 1}, {X: -40, Y: -50, Pressure: 1}}
	if got := ResampleWithin(s, 1, image.Rect(0, 0, 10, 10)); len(got) != 0 {
		t.Errorf("expected no dabs, got %v", got)
	}
	if got := ResampleWithin(Stroke{{X: 3, Y: 3, Pressure: 1}}, 1, image.Rect(0, 0, 10, 10)); len(got) != 1 {
		t.Errorf("expected single on-canvas sample kept, got %v", got)
	}
}

func TestBounds(t *testing.T) {
	s := Stroke{{X: 10, Y: 20}, {X: 30, Y: 5}}
	got := s.Bounds(2)
	want := image.Rect(8, 3, 33, 23)
	if got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
	if !(Stroke{}).Bounds(2).Empty() {
		t.Error("expected empty bounds for empty stroke")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := Stroke{{X: 1}}
	c := s.Clone()
	c[0].X = 9
	if s[0].X != 1 {
		t.Error("expected clone to be independent of the source")
	}
}
