package perf

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/gogpu/chart/lod"
)

func newMonitor(t *testing.T, cfg Config) *Monitor {
	t.Helper()
	m, err := NewMonitor(cfg)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	return m
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero fps", func(c *Config) { c.TargetFPS = 0 }},
		{"zero window", func(c *Config) { c.Window = 0 }},
		{"zero N", func(c *Config) { c.CoarsenAfter = 0 }},
		{"N equals M", func(c *Config) { c.RefineAfter = c.CoarsenAfter }},
		{"M below N", func(c *Config) { c.RefineAfter = 5; c.CoarsenAfter = 8 }},
		{"negative margin", func(c *Config) { c.RefineMargin = -0.1 }},
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := NewMonitor(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestAverageFPSEmpty(t *testing.T) {
	m := newMonitor(t, DefaultConfig())
	if got := m.AverageFPS(); got != 0 {
		t.Fatalf("AverageFPS() = %v, want 0", got)
	}
	if m.IsTargetMet(60) {
		t.Fatal("empty monitor should not meet target")
	}
}

func TestRingEviction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window = 4
	m := newMonitor(t, cfg)
	for i := 1; i <= 6; i++ {
		m.Record(time.Duration(i) * time.Millisecond)
	}
	if m.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", m.Len())
	}
	got := m.Samples()
	for i, s := range got {
		want := time.Duration(i+3) * time.Millisecond
		if s.Duration != want {
			t.Errorf("sample %d = %v, want %v", i, s.Duration, want)
		}
	}
	// (3+4+5+6)ms over 4 frames.
	want := 4 / 0.018
	if math.Abs(m.AverageFPS()-want) > 1e-9 {
		t.Errorf("AverageFPS() = %v, want %v", m.AverageFPS(), want)
	}
	if m.Recorded() != 6 {
		t.Errorf("Recorded() = %d, want 6", m.Recorded())
	}
}

func TestSixtyFramesAtTwentyMillis(t *testing.T) {
	m := newMonitor(t, DefaultConfig())
	for i := 0; i < 60; i++ {
		m.Record(20 * time.Millisecond)
	}
	if got := m.AverageFPS(); math.Abs(got-50) > 1e-9 {
		t.Fatalf("AverageFPS() = %v, want 50", got)
	}
	if m.IsTargetMet(60) {
		t.Fatal("IsTargetMet(60) = true at 50 fps")
	}
	if !m.IsTargetMet(50) {
		t.Fatal("IsTargetMet(50) = false at 50 fps")
	}
}

func TestHysteresisCoarsenAfterN(t *testing.T) {
	for _, n := range []int{1, 3, 10} {
		cfg := DefaultConfig()
		cfg.CoarsenAfter = n
		cfg.RefineAfter = n + 5
		m := newMonitor(t, cfg)
		sys, err := lod.NewSystem(lod.DefaultLevels())
		if err != nil {
			t.Fatal(err)
		}

		changes := 0
		for frame := 1; frame <= 3*n; frame++ {
			m.Record(20 * time.Millisecond)
			before := sys.Current().Index
			sel := sys.Update(0.5, 150_000, m.Decision())
			if sel.Index != before {
				if sel.Index-before != 1 {
					t.Fatalf("N=%d frame %d: jumped %d tiers", n, frame, sel.Index-before)
				}
				if frame%n != 0 {
					t.Fatalf("N=%d: coarsened at frame %d", n, frame)
				}
				changes++
			}
		}
		if changes != min(3, len(lod.DefaultLevels())-1) {
			t.Errorf("N=%d: %d level changes, want 3", n, changes)
		}
	}
}

func TestHysteresisRefineNeedsMargin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CoarsenAfter = 2
	cfg.RefineAfter = 4
	m := newMonitor(t, cfg)

	// 62.5 fps meets 60 but not 60*1.1.
	for i := 0; i < 10; i++ {
		m.Record(16 * time.Millisecond)
		if d := m.Decision(); d != lod.Hold {
			t.Fatalf("frame %d: decision %v inside margin", i, d)
		}
	}

	// 100 fps beats the margin; refine on the 4th frame only.
	for i := 1; i <= 4; i++ {
		m.Record(10 * time.Millisecond)
		d := m.Decision()
		if i < 4 && d != lod.Hold {
			t.Fatalf("frame %d: decision %v before M", i, d)
		}
		if i == 4 && d != lod.Refine {
			t.Fatalf("frame %d: decision %v, want refine", i, d)
		}
	}
}

func TestMissResetsExceedStreak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CoarsenAfter = 3
	cfg.RefineAfter = 4
	m := newMonitor(t, cfg)

	m.Record(5 * time.Millisecond)
	m.Record(5 * time.Millisecond)
	m.Record(30 * time.Millisecond)
	misses, exceeds := m.Streak()
	if misses != 1 || exceeds != 0 {
		t.Fatalf("Streak() = %d, %d; want 1, 0", misses, exceeds)
	}
}

func TestBudgetAndPercentile(t *testing.T) {
	m := newMonitor(t, DefaultConfig())
	if got := m.Budget(); got != time.Second/60 {
		t.Errorf("Budget() = %v", got)
	}
	if m.Percentile(99) != 0 {
		t.Error("Percentile on empty window should be 0")
	}
	for i := 1; i <= 10; i++ {
		m.Record(time.Duration(i) * time.Millisecond)
	}
	if got := m.Percentile(50); got != 5*time.Millisecond {
		t.Errorf("Percentile(50) = %v, want 5ms", got)
	}
	if got := m.Percentile(95); got != 10*time.Millisecond {
		t.Errorf("Percentile(95) = %v, want 10ms", got)
	}
	if got := m.Percentile(100); got != 10*time.Millisecond {
		t.Errorf("Percentile(100) = %v, want 10ms", got)
	}
	if got := m.Percentile(0); got != time.Millisecond {
		t.Errorf("Percentile(0) = %v, want 1ms", got)
	}
}

func TestPercentileNearestRank(t *testing.T) {
	m := newMonitor(t, DefaultConfig())
	m.Record(10 * time.Millisecond)
	m.Record(30 * time.Millisecond)
	if got := m.Percentile(50); got != 10*time.Millisecond {
		t.Errorf("Percentile(50) of two = %v, want the lower 10ms", got)
	}
	if got := m.Percentile(51); got != 30*time.Millisecond {
		t.Errorf("Percentile(51) of two = %v, want 30ms", got)
	}
}

func TestClockOption(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m, err := NewMonitor(DefaultConfig(), WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatal(err)
	}
	m.Record(time.Millisecond)
	if got := m.Samples()[0].At; !got.Equal(fixed) {
		t.Errorf("sample time = %v, want %v", got, fixed)
	}
}

func TestReset(t *testing.T) {
	m := newMonitor(t, DefaultConfig())
	m.Record(40 * time.Millisecond)
	m.Reset()
	if m.Len() != 0 || m.AverageFPS() != 0 {
		t.Fatal("Reset did not clear the window")
	}
	if misses, _ := m.Streak(); misses != 0 {
		t.Fatal("Reset did not clear the streak")
	}
}

func TestSuggestQuality(t *testing.T) {
	tests := []struct {
		frame time.Duration
		want  Quality
	}{
		{10 * time.Millisecond, QualityHigh},
		{20 * time.Millisecond, QualityMedium},
		{30 * time.Millisecond, QualityLow},
		{100 * time.Millisecond, QualityMinimal},
	}
	for _, tt := range tests {
		m := newMonitor(t, DefaultConfig())
		for i := 0; i < 5; i++ {
			m.Record(tt.frame)
		}
		if got := m.SuggestQuality(); got != tt.want {
			t.Errorf("frame %v: SuggestQuality() = %v, want %v", tt.frame, got, tt.want)
		}
	}
	if got := newMonitor(t, DefaultConfig()).SuggestQuality(); got != QualityHigh {
		t.Errorf("empty monitor quality = %v", got)
	}
}
