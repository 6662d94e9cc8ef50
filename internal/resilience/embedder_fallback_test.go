package resilience

import (
	"context"
	"errors"
	"testing"

	embmock "github.com/corvid-labs/voxline/pkg/provider/embedder/mock"
	"github.com/corvid-labs/voxline/pkg/voice"
)

func TestEmbedderFallback_PrimarySuccess(t *testing.T) {
	primary := &embmock.Provider{EmbedResult: voice.Embedding{1, 0, 0}}
	secondary := &embmock.Provider{EmbedResult: voice.Embedding{0, 1, 0}}

	fb := NewEmbedderFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	emb, err := fb.Embed(context.Background(), []byte("audio"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb[0] != 1 {
		t.Fatalf("embedding = %v, want the primary's result", emb)
	}
	if len(secondary.EmbedCalls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.EmbedCalls))
	}
}

func TestEmbedderFallback_Failover(t *testing.T) {
	primary := &embmock.Provider{EmbedErr: errors.New("primary down")}
	secondary := &embmock.Provider{EmbedResult: voice.Embedding{0, 1, 0}}

	fb := NewEmbedderFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	emb, err := fb.Embed(context.Background(), []byte("audio"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb[1] != 1 {
		t.Fatalf("embedding = %v, want the secondary's result", emb)
	}
}

func TestEmbedderFallback_AllFail(t *testing.T) {
	primary := &embmock.Provider{EmbedErr: errors.New("primary down")}

	fb := NewEmbedderFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	_, err := fb.Embed(context.Background(), []byte("audio"))
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestEmbedderFallback_DimensionsFromPrimary(t *testing.T) {
	primary := &embmock.Provider{Dims: 256, Model: "spk-emb-v2"}
	fb := NewEmbedderFallback(primary, "primary", FallbackConfig{})

	if got := fb.Dimensions(); got != 256 {
		t.Errorf("Dimensions() = %d, want 256", got)
	}
	if got := fb.ModelID(); got != "spk-emb-v2" {
		t.Errorf("ModelID() = %q, want spk-emb-v2", got)
	}
}
