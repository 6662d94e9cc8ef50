// Package api exposes the voice versioning pipeline over HTTP.
//
// The surface is a small JSON API: register a user, submit audio, request
// playback at a target age, and read the version timeline. Health and
// metrics endpoints are mounted alongside so one listener serves both the
// API and the operational plumbing.
package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corvid-labs/voxline/internal/health"
	"github.com/corvid-labs/voxline/internal/observe"
	"github.com/corvid-labs/voxline/internal/service"
	"github.com/corvid-labs/voxline/pkg/voice"
)

// maxAudioBytes bounds the request body on audio submission. 25 MiB is
// roughly four minutes of 16-bit 48 kHz stereo, far above what the quality
// gate will ever accept.
const maxAudioBytes = 25 << 20

// Server routes HTTP requests to the voice service. It implements
// [http.Handler]; mount it directly on an [http.Server].
type Server struct {
	svc    *service.Service
	health *health.Handler
	router *mux.Router
}

var _ http.Handler = (*Server)(nil)

// NewServer builds the HTTP surface over svc. The health handler may be
// nil, in which case /healthz and /readyz always report ok. Observability
// middleware is applied to every route using m.
func NewServer(svc *service.Service, hh *health.Handler, m *observe.Metrics) *Server {
	if hh == nil {
		hh = health.New()
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}

	s := &Server{svc: svc, health: hh}

	r := mux.NewRouter()
	r.Use(observe.Middleware(m))

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/users/{id}", s.registerUser).Methods(http.MethodPost)
	v1.HandleFunc("/users/{id}/audio", s.submitAudio).Methods(http.MethodPost)
	v1.HandleFunc("/users/{id}/playback", s.requestPlayback).Methods(http.MethodPost)
	v1.HandleFunc("/users/{id}/timeline", s.getTimeline).Methods(http.MethodGet)

	r.HandleFunc("/healthz", hh.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", hh.Readyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.router = r
	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, voice.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, voice.ErrLowQuality):
		return http.StatusUnprocessableEntity
	case errors.Is(err, voice.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, voice.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, voice.ErrDependencyTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, voice.ErrEmbeddingFailure), errors.Is(err, voice.ErrSynthesisFailure):
		return http.StatusBadGateway
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
