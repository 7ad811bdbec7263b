package scanner

import (
	"context"
	"testing"
	"time"
)

func TestAdaptiveLimiter_BaseDelayBeforeThreshold(t *testing.T) {
	l := NewAdaptiveLimiter(1) // base interval: 1s
	for i := 0; i < historyThreshold; i++ {
		if d := l.Delay(); d != time.Second {
			t.Fatalf("delay %d = %v, want 1s before history threshold", i, d)
		}
	}
	if f := l.Factor(); f != 1.0 {
		t.Fatalf("factor = %v, want 1.0 before history threshold", f)
	}
}

func TestAdaptiveLimiter_AdaptsAfterThreshold(t *testing.T) {
	l := NewAdaptiveLimiter(1)
	for i := 0; i < historyThreshold; i++ {
		l.Delay()
	}

	// History now holds ten 1s delays: avg 1s, factor 1.0*1.2 = 1.2.
	if d := l.Delay(); d != 1200*time.Millisecond {
		t.Fatalf("adapted delay = %v, want 1.2s", d)
	}
	if f := l.Factor(); f != 1.2 {
		t.Fatalf("factor = %v, want 1.2", f)
	}
}

func TestAdaptiveLimiter_FactorFloorAtHighRates(t *testing.T) {
	// At 1000 pps the recorded delays are 1ms, so the raw factor
	// (avg seconds * 1.2) is tiny and must clamp to the 0.5 floor.
	l := NewAdaptiveLimiter(1000)
	for i := 0; i < historyThreshold+1; i++ {
		l.Delay()
	}
	if f := l.Factor(); f != factorFloor {
		t.Fatalf("factor = %v, want the %v floor", f, factorFloor)
	}
	if d := l.Delay(); d != 500*time.Microsecond {
		t.Fatalf("delay = %v, want 0.5ms (base 1ms * floor)", d)
	}
}

func TestAdaptiveLimiter_FactorNeverExceedsCeil(t *testing.T) {
	l := NewAdaptiveLimiter(1)
	for i := 0; i < historySize; i++ {
		l.Delay()
	}
	if f := l.Factor(); f > factorCeil {
		t.Fatalf("factor = %v, exceeds the %v ceiling", f, factorCeil)
	}
	if d := l.Delay(); d > 2*time.Second {
		t.Fatalf("delay = %v, exceeds base * ceiling", d)
	}
}

func TestAdaptiveLimiter_WaitHonorsCancellation(t *testing.T) {
	l := NewAdaptiveLimiter(1) // 1s delay would stall the test
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestAdaptiveLimiter_ZeroRateFallsBackToDefault(t *testing.T) {
	l := NewAdaptiveLimiter(0)
	want := time.Second / time.Duration(defaultMaxRate)
	if d := l.Delay(); d != want {
		t.Fatalf("delay = %v, want %v", d, want)
	}
}
