package xtts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/corvid-labs/voxline/pkg/voice"
)

// mustNew is a test helper that calls New and fails the test on error.
func mustNew(t *testing.T, serverURL string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New(%q): unexpected error: %v", serverURL, err)
	}
	return p
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := mustNew(t, "http://localhost:8002")
		if p.serverURL != "http://localhost:8002" {
			t.Errorf("serverURL = %q, want %q", p.serverURL, "http://localhost:8002")
		}
		if p.language != defaultLanguage {
			t.Errorf("language = %q, want %q", p.language, defaultLanguage)
		}
		if p.httpClient.Timeout != defaultTimeout {
			t.Errorf("timeout = %v, want %v", p.httpClient.Timeout, defaultTimeout)
		}
	})

	t.Run("trims trailing slash", func(t *testing.T) {
		p := mustNew(t, "http://localhost:8002/")
		if p.serverURL != "http://localhost:8002" {
			t.Errorf("serverURL = %q, want trailing slash stripped", p.serverURL)
		}
	})

	t.Run("empty URL returns error", func(t *testing.T) {
		_, err := New("")
		if err == nil {
			t.Fatal("expected error for empty URL, got nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		p := mustNew(t, "http://localhost:8002",
			WithLanguage("de"),
			WithTimeout(5*time.Second),
		)
		if p.language != "de" {
			t.Errorf("language = %q, want %q", p.language, "de")
		}
		if p.httpClient.Timeout != 5*time.Second {
			t.Errorf("timeout = %v, want %v", p.httpClient.Timeout, 5*time.Second)
		}
	})
}

func TestSynthesize_InvalidInput(t *testing.T) {
	p := mustNew(t, "http://localhost:8002")

	_, err := p.Synthesize(context.Background(), nil, "hello")
	if !errors.Is(err, voice.ErrInvalidInput) {
		t.Errorf("empty embedding: err = %v, want ErrInvalidInput", err)
	}

	_, err = p.Synthesize(context.Background(), voice.Embedding{1, 0}, "   ")
	if !errors.Is(err, voice.ErrInvalidInput) {
		t.Errorf("blank text: err = %v, want ErrInvalidInput", err)
	}
}

func TestSynthesize_MockServer(t *testing.T) {
	wantAudio := []byte("RIFFfake-wav-bytes")

	var (
		reqMu    sync.Mutex
		received []synthRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != synthEndpoint {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req synthRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		reqMu.Lock()
		received = append(received, req)
		reqMu.Unlock()
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wantAudio)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithLanguage("de"))
	emb := voice.Embedding{0.6, 0.8}

	audio, err := p.Synthesize(context.Background(), emb, "guten tag")
	if err != nil {
		t.Fatalf("Synthesize: unexpected error: %v", err)
	}
	if string(audio) != string(wantAudio) {
		t.Errorf("audio = %q, want %q", audio, wantAudio)
	}

	if len(received) != 1 {
		t.Fatalf("server received %d requests, want 1", len(received))
	}
	req := received[0]
	if req.Text != "guten tag" {
		t.Errorf("text = %q, want %q", req.Text, "guten tag")
	}
	if req.Language != "de" {
		t.Errorf("language = %q, want %q", req.Language, "de")
	}
	if len(req.SpeakerEmbedding) != 2 || req.SpeakerEmbedding[0] != 0.6 {
		t.Errorf("speaker_embedding = %v, want %v", req.SpeakerEmbedding, emb)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(synthError{Error: "model not loaded"})
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	_, err := p.Synthesize(context.Background(), voice.Embedding{1}, "hello")
	if !errors.Is(err, voice.ErrSynthesisFailure) {
		t.Fatalf("err = %v, want ErrSynthesisFailure", err)
	}
	if !strings.Contains(err.Error(), "model not loaded") {
		t.Errorf("error %q does not carry the server message", err.Error())
	}
}

func TestSynthesize_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	_, err := p.Synthesize(context.Background(), voice.Embedding{1}, "hello")
	if !errors.Is(err, voice.ErrSynthesisFailure) {
		t.Fatalf("err = %v, want ErrSynthesisFailure", err)
	}
}

func TestSynthesize_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := mustNew(t, srv.URL)
	if _, err := p.Synthesize(ctx, voice.Embedding{1}, "hello"); err == nil {
		t.Fatal("expected error with cancelled context, got nil")
	}
}
