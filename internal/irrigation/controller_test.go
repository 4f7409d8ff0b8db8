package irrigation

import (
	"sync"
	"testing"

	"leafscan/internal/logger"
)

func newController(t *testing.T) *Controller {
	t.Helper()
	c, err := NewController(logger.Discard(), Thresholds{Dry: 50, Wet: 70})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c
}

func TestEvaluateAuto(t *testing.T) {
	c := newController(t)

	tests := []struct {
		moisture float64
		pumpOn   bool
	}{
		{10, true},
		{49.9, true},
		{50, false},
		{60, false},
		{70, false},
		{85, false},
	}
	for _, tt := range tests {
		d := c.Evaluate(tt.moisture)
		if d.PumpOn != tt.pumpOn || d.Trigger != TriggerAuto {
			t.Errorf("Evaluate(%v) = %+v, want pump %v AUTO", tt.moisture, d, tt.pumpOn)
		}
	}
}

func TestManualOverride(t *testing.T) {
	c := newController(t)

	if mode := c.SetManual(true); mode != ModeManualOn {
		t.Fatalf("mode = %s, want MANUAL_ON", mode)
	}

	d := c.Evaluate(60)
	if !d.PumpOn || d.Trigger != TriggerManual {
		t.Errorf("in-band reading with override = %+v, want ON MANUAL", d)
	}

	// Wet soil clears the override.
	d = c.Evaluate(75)
	if d.PumpOn || d.Trigger != TriggerAuto || c.Manual() {
		t.Errorf("wet reading = %+v manual=%v, want OFF AUTO and override cleared", d, c.Manual())
	}

	d = c.Evaluate(60)
	if d.PumpOn {
		t.Errorf("override came back: %+v", d)
	}

	c.SetManual(true)
	if mode := c.SetManual(false); mode != ModeAuto || c.Manual() {
		t.Errorf("mode = %s manual=%v, want AUTO", mode, c.Manual())
	}
}

func TestControllerConcurrentUse(t *testing.T) {
	c := newController(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.SetManual(i%2 == 0)
		}(i)
		go func(i int) {
			defer wg.Done()
			c.Evaluate(float64(i))
		}(i)
	}
	wg.Wait()
}

func TestNewControllerRejectsInvertedThresholds(t *testing.T) {
	if _, err := NewController(logger.Discard(), Thresholds{Dry: 80, Wet: 20}); err == nil {
		t.Error("expected error")
	}
}

func TestComputeTankLevel(t *testing.T) {
	tests := []struct {
		distance, level, percent float64
	}{
		{20, 80, 80},
		{0, 100, 100},
		{100, 0, 0},
		{130, 0, 0},
	}
	for _, tt := range tests {
		got := ComputeTankLevel(100, tt.distance)
		if got.LevelCm != tt.level || got.Percent != tt.percent {
			t.Errorf("ComputeTankLevel(100, %v) = %+v, want %v cm %v%%", tt.distance, got, tt.level, tt.percent)
		}
	}
}
