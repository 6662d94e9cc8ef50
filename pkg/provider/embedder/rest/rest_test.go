package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/corvid-labs/voxline/pkg/voice"
)

func mustNew(t *testing.T, serverURL string, dims int, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, dims, opts...)
	if err != nil {
		t.Fatalf("New(%q, %d): unexpected error: %v", serverURL, dims, err)
	}
	return p
}

func TestNew(t *testing.T) {
	t.Run("empty URL returns error", func(t *testing.T) {
		if _, err := New("", 192); err == nil {
			t.Fatal("expected error for empty URL, got nil")
		}
	})

	t.Run("non-positive dims returns error", func(t *testing.T) {
		if _, err := New("http://localhost:8090", 0); err == nil {
			t.Fatal("expected error for zero dims, got nil")
		}
	})

	t.Run("defaults", func(t *testing.T) {
		p := mustNew(t, "http://localhost:8090/", 192)
		if p.serverURL != "http://localhost:8090" {
			t.Errorf("serverURL = %q, want trailing slash stripped", p.serverURL)
		}
		if p.ModelID() != defaultModelID {
			t.Errorf("ModelID() = %q, want %q", p.ModelID(), defaultModelID)
		}
		if p.Dimensions() != 192 {
			t.Errorf("Dimensions() = %d, want 192", p.Dimensions())
		}
	})
}

func TestEmbed_NormalisesResponse(t *testing.T) {
	var gotAudio []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != embedEndpoint || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		gotAudio, _ = io.ReadAll(r.Body)
		// Deliberately un-normalised; the provider must fix it up.
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{3, 4}})
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, 2)
	emb, err := p.Embed(context.Background(), []byte("wav-bytes"))
	if err != nil {
		t.Fatalf("Embed: unexpected error: %v", err)
	}
	if string(gotAudio) != "wav-bytes" {
		t.Errorf("server received audio %q, want %q", gotAudio, "wav-bytes")
	}

	var norm float64
	for _, v := range emb {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-6 {
		t.Errorf("embedding norm = %v, want 1", math.Sqrt(norm))
	}
	if math.Abs(float64(emb[0])-0.6) > 1e-6 {
		t.Errorf("emb[0] = %v, want 0.6", emb[0])
	}
}

func TestEmbed_EmptyAudio(t *testing.T) {
	p := mustNew(t, "http://localhost:8090", 2)
	_, err := p.Embed(context.Background(), nil)
	if !errors.Is(err, voice.ErrEmbeddingFailure) {
		t.Fatalf("err = %v, want ErrEmbeddingFailure", err)
	}
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{1, 0, 0}})
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, 2)
	_, err := p.Embed(context.Background(), []byte("wav"))
	if !errors.Is(err, voice.ErrEmbeddingFailure) {
		t.Fatalf("err = %v, want ErrEmbeddingFailure", err)
	}
}

func TestEmbed_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no model", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, 2)
	_, err := p.Embed(context.Background(), []byte("wav"))
	if !errors.Is(err, voice.ErrEmbeddingFailure) {
		t.Fatalf("err = %v, want ErrEmbeddingFailure", err)
	}
}

func TestEmbed_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Error: "decode failed"})
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, 2)
	_, err := p.Embed(context.Background(), []byte("wav"))
	if !errors.Is(err, voice.ErrEmbeddingFailure) {
		t.Fatalf("err = %v, want ErrEmbeddingFailure", err)
	}
}
