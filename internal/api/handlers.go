package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/corvid-labs/voxline/internal/observe"
	"github.com/corvid-labs/voxline/pkg/voice"
)

// deviceHeader carries the capture device fingerprint on audio submission.
// It is optional; an empty fingerprint lowers the device confidence signal
// but never rejects the sample.
const deviceHeader = "X-Device-Fingerprint"

type registerRequest struct {
	DateOfBirth string `json:"date_of_birth"`
}

type registerResponse struct {
	UserID      string    `json:"user_id"`
	DateOfBirth time.Time `json:"date_of_birth"`
}

type decisionResponse struct {
	Action     voice.Action `json:"action"`
	VersionID  string       `json:"version_id,omitempty"`
	Confidence float64      `json:"confidence"`
	Similarity float64      `json:"similarity"`
	Reason     string       `json:"reason"`
}

type playbackRequest struct {
	TargetAge float64 `json:"target_age"`
	Text      string  `json:"text,omitempty"`
}

type playbackResponse struct {
	Label          voice.Label `json:"label"`
	SourceVersions []string    `json:"source_versions"`
	Confidence     float64     `json:"confidence"`
	Text           string      `json:"text,omitempty"`
	Audio          []byte      `json:"audio,omitempty"`
	Cached         bool        `json:"cached,omitempty"`
}

type versionSummary struct {
	ID          string    `json:"id"`
	Age         float64   `json:"age"`
	Confidence  float64   `json:"confidence"`
	SampleCount int       `json:"sample_count"`
	Device      string    `json:"device,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type timelineResponse struct {
	UserID   string           `json:"user_id"`
	Versions []versionSummary `json:"versions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: decode body: %v", voice.ErrInvalidInput, err))
		return
	}
	dob, err := parseDate(req.DateOfBirth)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: date_of_birth: %v", voice.ErrInvalidInput, err))
		return
	}

	if err := s.svc.RegisterUser(r.Context(), userID, dob); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{UserID: userID, DateOfBirth: dob})
}

func (s *Server) submitAudio(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBytes))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(body) == 0 {
		writeError(w, r, fmt.Errorf("%w: empty audio body", voice.ErrInvalidInput))
		return
	}

	recordedAt := time.Time{}
	if raw := r.URL.Query().Get("recorded_at"); raw != "" {
		recordedAt, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: recorded_at: %v", voice.ErrInvalidInput, err))
			return
		}
	}
	device := voice.DeviceFingerprint(r.Header.Get(deviceHeader))

	d, err := s.svc.SubmitAudio(r.Context(), userID, body, device, recordedAt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if d.Action == voice.ActionReject {
		// Quality rejection is terminal for the request; surface it as an
		// error rather than a decision the client might act on.
		writeError(w, r, fmt.Errorf("%w: %s", voice.ErrLowQuality, d.Reason))
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{
		Action:     d.Action,
		VersionID:  d.VersionID,
		Confidence: d.Confidence,
		Similarity: d.Similarity,
		Reason:     d.Reason,
	})
}

func (s *Server) requestPlayback(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	var req playbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: decode body: %v", voice.ErrInvalidInput, err))
		return
	}

	resp, err := s.svc.RequestPlayback(r.Context(), userID, req.TargetAge, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playbackResponse{
		Label:          resp.Result.Label,
		SourceVersions: resp.Result.SourceVersions,
		Confidence:     resp.Result.Confidence,
		Text:           resp.Text,
		Audio:          resp.Audio,
		Cached:         resp.Cached,
	})
}

func (s *Server) getTimeline(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	versions, err := s.svc.GetTimeline(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := timelineResponse{UserID: userID, Versions: make([]versionSummary, 0, len(versions))}
	for _, v := range versions {
		out.Versions = append(out.Versions, versionSummary{
			ID:          v.ID,
			Age:         v.AgeAtCreation,
			Confidence:  v.Confidence,
			SampleCount: v.SampleCount,
			Device:      string(v.Device),
			CreatedAt:   v.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// parseDate accepts RFC 3339 timestamps or bare dates for date_of_birth.
func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already out; nothing to do but log.
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
