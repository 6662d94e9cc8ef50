package quality_test

import (
	"testing"

	"github.com/corvid-labs/voxline/internal/quality"
)

func TestEvaluate(t *testing.T) {
	t.Parallel()

	g := quality.New()

	tests := []struct {
		name     string
		duration float64
		snr      float64
		want     bool
	}{
		{"clean long sample passes", 5.0, 25.0, true},
		{"exactly at thresholds passes", 2.0, 10.0, true},
		{"too short fails", 1.5, 25.0, false},
		{"too noisy fails", 5.0, 9.9, false},
		{"both below fails", 0.5, 3.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := g.Evaluate(tt.duration, tt.snr)
			if got.Passed != tt.want {
				t.Fatalf("Evaluate(%v, %v).Passed = %v, want %v", tt.duration, tt.snr, got.Passed, tt.want)
			}
			if got.DurationSeconds != tt.duration || got.SNRdB != tt.snr {
				t.Fatalf("report did not echo inputs: %+v", got)
			}
		})
	}
}

func TestEvaluateOptions(t *testing.T) {
	t.Parallel()

	g := quality.New(quality.WithMinDuration(10), quality.WithMinSNR(20))

	if got := g.Evaluate(5, 25); got.Passed {
		t.Fatal("5s sample passed a 10s minimum")
	}
	if got := g.Evaluate(12, 15); got.Passed {
		t.Fatal("15dB sample passed a 20dB minimum")
	}
	if got := g.Evaluate(12, 25); !got.Passed {
		t.Fatal("sample above both raised thresholds failed")
	}
	if g.MinSNR() != 20 {
		t.Fatalf("MinSNR = %v, want 20", g.MinSNR())
	}
}
