package playback_test

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/corvid-labs/voxline/internal/playback"
	"github.com/corvid-labs/voxline/internal/timeline"
	"github.com/corvid-labs/voxline/pkg/vecmath"
	"github.com/corvid-labs/voxline/pkg/voice"
)

var dob = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

func unit(vals ...float32) voice.Embedding {
	return voice.Embedding(vecmath.Normalize(vals))
}

// seedStore builds a store for "alice" with one version per (age,
// embedding, confidence) tuple.
func seedStore(t *testing.T, versions ...voice.Version) *timeline.MemStore {
	t.Helper()
	s := timeline.NewMemStore()
	ctx := context.Background()
	if err := s.PutProfile(ctx, voice.Profile{UserID: "alice", DateOfBirth: dob}); err != nil {
		t.Fatalf("setup profile: %v", err)
	}
	for _, v := range versions {
		if err := s.InsertVersion(ctx, v); err != nil {
			t.Fatalf("setup version %s: %v", v.ID, err)
		}
	}
	return s
}

func ver(id string, age float64, emb voice.Embedding, conf float64) voice.Version {
	return voice.Version{
		ID: id, UserID: "alice", Embedding: emb,
		CreatedAt:     dob.Add(time.Duration(age * 365.2425 * 24 * float64(time.Hour))),
		AgeAtCreation: age,
		Confidence:    conf,
		SampleCount:   1,
	}
}

func TestPlaybackNoData(t *testing.T) {
	t.Parallel()

	e := playback.New(seedStore(t))
	_, err := e.Playback(context.Background(), "alice", 30)
	if !errors.Is(err, voice.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestPlaybackInvalidAge(t *testing.T) {
	t.Parallel()

	e := playback.New(seedStore(t, ver("v1", 20, unit(1, 0, 0), 0.9)))
	_, err := e.Playback(context.Background(), "alice", -3)
	if !errors.Is(err, voice.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPlaybackRecorded(t *testing.T) {
	t.Parallel()

	a := unit(1, 0, 0)
	e := playback.New(seedStore(t,
		ver("v8", 8, a, 0.9),
		ver("v20", 20, unit(0, 1, 0), 0.8),
	))

	t.Run("exact age", func(t *testing.T) {
		t.Parallel()
		got, err := e.Playback(context.Background(), "alice", 8)
		if err != nil {
			t.Fatalf("Playback: %v", err)
		}
		if got.Label != voice.LabelRecorded {
			t.Fatalf("Label = %s, want RECORDED", got.Label)
		}
		if !slices.Equal(got.SourceVersions, []string{"v8"}) {
			t.Fatalf("SourceVersions = %v, want [v8]", got.SourceVersions)
		}
		if got.Confidence != 0.9 {
			t.Fatalf("Confidence = %v, want the version's own 0.9", got.Confidence)
		}
	})

	t.Run("within epsilon", func(t *testing.T) {
		t.Parallel()
		got, err := e.Playback(context.Background(), "alice", 8.2)
		if err != nil {
			t.Fatalf("Playback: %v", err)
		}
		if got.Label != voice.LabelRecorded {
			t.Fatalf("Label = %s, want RECORDED for age within epsilon", got.Label)
		}
	})
}

func TestPlaybackInterpolated(t *testing.T) {
	t.Parallel()

	a := unit(1, 0, 0)
	b := unit(0, 1, 0)
	e := playback.New(seedStore(t,
		ver("v8", 8, a, 0.9),
		ver("v20", 20, b, 0.8),
	))

	got, err := e.Playback(context.Background(), "alice", 14)
	if err != nil {
		t.Fatalf("Playback: %v", err)
	}

	if got.Label != voice.LabelInterpolated {
		t.Fatalf("Label = %s, want INTERPOLATED", got.Label)
	}
	if !slices.Equal(got.SourceVersions, []string{"v8", "v20"}) {
		t.Fatalf("SourceVersions = %v, want [v8 v20]", got.SourceVersions)
	}
	if got.Confidence > 0.8 {
		t.Fatalf("Confidence %v exceeds min of bracketing confidences", got.Confidence)
	}

	// Age 14 is the exact midpoint of 8 and 20, so the embedding must be
	// SLERP(a, b, 0.5).
	want := vecmath.Slerp(a, b, 0.5)
	for i := range want {
		if math.Abs(float64(got.Embedding[i]-want[i])) > 1e-5 {
			t.Fatalf("embedding = %v, want SLERP midpoint %v", got.Embedding, want)
		}
	}
	if n := vecmath.Norm(got.Embedding); math.Abs(n-1) > 1e-5 {
		t.Fatalf("interpolated norm = %v, want 1", n)
	}
}

func TestPlaybackInterpolationGapPenalty(t *testing.T) {
	t.Parallel()

	narrow := playback.New(seedStore(t,
		ver("a", 19, unit(1, 0, 0), 0.9),
		ver("b", 21, unit(0, 1, 0), 0.9),
	))
	wide := playback.New(seedStore(t,
		ver("a", 8, unit(1, 0, 0), 0.9),
		ver("b", 32, unit(0, 1, 0), 0.9),
	))

	n, err := narrow.Playback(context.Background(), "alice", 20)
	if err != nil {
		t.Fatalf("narrow Playback: %v", err)
	}
	w, err := wide.Playback(context.Background(), "alice", 20)
	if err != nil {
		t.Fatalf("wide Playback: %v", err)
	}
	if w.Confidence >= n.Confidence {
		t.Fatalf("wide gap confidence %v not below narrow gap confidence %v", w.Confidence, n.Confidence)
	}
}

func TestPlaybackPredicted(t *testing.T) {
	t.Parallel()

	a := unit(1, 0, 0)
	b := unit(0.8, 0.6, 0)
	e := playback.New(seedStore(t,
		ver("v8", 8, a, 0.9),
		ver("v20", 20, b, 0.9),
	))

	t.Run("beyond newest", func(t *testing.T) {
		t.Parallel()
		got, err := e.Playback(context.Background(), "alice", 60)
		if err != nil {
			t.Fatalf("Playback: %v", err)
		}
		if got.Label != voice.LabelPredicted {
			t.Fatalf("Label = %s, want PREDICTED", got.Label)
		}
		if got.Confidence > playback.DefaultPredictionCeiling {
			t.Fatalf("Confidence %v exceeds prediction ceiling", got.Confidence)
		}
		if !slices.Contains(got.SourceVersions, "v20") {
			t.Fatalf("SourceVersions %v must include the boundary v20", got.SourceVersions)
		}
		if n := vecmath.Norm(got.Embedding); math.Abs(n-1) > 1e-5 {
			t.Fatalf("predicted norm = %v, want 1", n)
		}
	})

	t.Run("before oldest", func(t *testing.T) {
		t.Parallel()
		got, err := e.Playback(context.Background(), "alice", 3)
		if err != nil {
			t.Fatalf("Playback: %v", err)
		}
		if got.Label != voice.LabelPredicted {
			t.Fatalf("Label = %s, want PREDICTED", got.Label)
		}
		if !slices.Contains(got.SourceVersions, "v8") {
			t.Fatalf("SourceVersions %v must include the boundary v8", got.SourceVersions)
		}
	})

	t.Run("damping shrinks confidence with distance", func(t *testing.T) {
		t.Parallel()
		near, _ := e.Playback(context.Background(), "alice", 25)
		far, _ := e.Playback(context.Background(), "alice", 65)
		if far.Confidence >= near.Confidence {
			t.Fatalf("far prediction confidence %v not below near %v", far.Confidence, near.Confidence)
		}
	})
}

func TestPlaybackPredictedSingleVersion(t *testing.T) {
	t.Parallel()

	a := unit(1, 0, 0)
	e := playback.New(seedStore(t, ver("only", 30, a, 0.9)))

	got, err := e.Playback(context.Background(), "alice", 50)
	if err != nil {
		t.Fatalf("Playback: %v", err)
	}
	if got.Label != voice.LabelPredicted {
		t.Fatalf("Label = %s, want PREDICTED", got.Label)
	}
	if !slices.Equal(got.SourceVersions, []string{"only"}) {
		t.Fatalf("SourceVersions = %v, want [only]", got.SourceVersions)
	}
	// With a single version the directional delta is zero: the embedding
	// is the boundary's own.
	for i := range a {
		if math.Abs(float64(got.Embedding[i]-a[i])) > 1e-5 {
			t.Fatalf("single-version prediction deviated from boundary: %v", got.Embedding)
		}
	}
}

func TestPlaybackLearnedPredictor(t *testing.T) {
	t.Parallel()

	a := unit(1, 0, 0)
	b := unit(0, 1, 0)
	versions := []voice.Version{
		ver("v8", 8, a, 0.9),
		ver("v20", 20, b, 0.9),
	}

	t.Run("confident predictor is used", func(t *testing.T) {
		t.Parallel()
		pred := playback.PredictorFunc(func(ctx context.Context, boundary voice.Embedding, ageGap float64) (voice.Embedding, float64, error) {
			return voice.Embedding{0, 0, 1}, 0.9, nil
		})
		e := playback.New(seedStore(t, versions...), playback.WithDeltaPredictor(pred, 0.3))

		got, err := e.Playback(context.Background(), "alice", 40)
		if err != nil {
			t.Fatalf("Playback: %v", err)
		}
		if got.Embedding[2] == 0 {
			t.Fatal("learned delta was ignored")
		}
		if got.Label != voice.LabelPredicted {
			t.Fatalf("Label = %s, want PREDICTED", got.Label)
		}
	})

	t.Run("low-confidence predictor falls back to rule", func(t *testing.T) {
		t.Parallel()
		pred := playback.PredictorFunc(func(ctx context.Context, boundary voice.Embedding, ageGap float64) (voice.Embedding, float64, error) {
			return voice.Embedding{0, 0, 1}, 0.1, nil
		})
		e := playback.New(seedStore(t, versions...), playback.WithDeltaPredictor(pred, 0.3))

		got, err := e.Playback(context.Background(), "alice", 40)
		if err != nil {
			t.Fatalf("Playback: %v", err)
		}
		if got.Embedding[2] != 0 {
			t.Fatalf("low-confidence delta leaked into result: %v", got.Embedding)
		}
	})

	t.Run("failing predictor falls back to rule", func(t *testing.T) {
		t.Parallel()
		pred := playback.PredictorFunc(func(ctx context.Context, boundary voice.Embedding, ageGap float64) (voice.Embedding, float64, error) {
			return nil, 0, errors.New("model offline")
		})
		e := playback.New(seedStore(t, versions...), playback.WithDeltaPredictor(pred, 0.3))

		if _, err := e.Playback(context.Background(), "alice", 40); err != nil {
			t.Fatalf("Playback must not fail when the predictor does: %v", err)
		}
	})
}

func TestShapeText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		age  float64
		want string
	}{
		{"child gets exclamatory phrasing", "I like dogs. They are fun.", 6, "Hi! I like dogs! They are fun!"},
		{"elder gets reflective closing", "The winters were colder then.", 75, "The winters were colder then. ... I have lived a long life."},
		{"adult passes through", "Nothing to change here.", 35, "Nothing to change here."},
		{"empty stays empty", "", 6, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := playback.ShapeText(tt.text, tt.age); got != tt.want {
				t.Fatalf("ShapeText(%q, %v) = %q, want %q", tt.text, tt.age, got, tt.want)
			}
		})
	}
}
