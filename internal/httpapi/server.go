// Package httpapi serves health, metrics, character status and a local
// utterance injection endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexface/internal/avatar3d"
	"github.com/normanking/cortexface/internal/bridge"
	"github.com/normanking/cortexface/internal/logging"
	"github.com/normanking/cortexface/internal/metrics"
	"github.com/normanking/cortexface/internal/viseme"
)

// Face is the character as seen from HTTP handlers. Only Post and the
// read-only accessors are safe off the loop; mutating calls go through Post.
type Face interface {
	ID() string
	Profile() avatar3d.Profile
	Snapshot() avatar3d.Snapshot
	JawEuler() mgl32.Vec3
	Post(fn func(now time.Time)) bool
	Wink(now time.Time, side avatar3d.EyelidSide)
	SetMood(name string) bool
}

type UtteranceHandler interface {
	HandleUtterance(u bridge.Utterance) error
}

type LogHistory interface {
	History(limit int) []logging.LogEntry
}

type Options struct {
	Face       Face
	Utterances UtteranceHandler
	QueueDepth func() int
	Metrics    *metrics.Metrics
	Logs       LogHistory
	Logger     zerolog.Logger
}

type Server struct {
	face       Face
	utterances UtteranceHandler
	depth      func() int
	metrics    *metrics.Metrics
	logs       LogHistory
	log        zerolog.Logger
}

func New(opts Options) *Server {
	return &Server{
		face:       opts.Face,
		utterances: opts.Utterances,
		depth:      opts.QueueDepth,
		metrics:    opts.Metrics,
		logs:       opts.Logs,
		log:        opts.Logger.With().Str("component", "httpapi").Logger(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Get("/v1/character", s.handleCharacter)
	r.Post("/v1/utterances", s.handleUtterance)
	r.Post("/v1/wink/{side}", s.handleWink)
	r.Post("/v1/mood/{name}", s.handleMood)
	r.Get("/v1/logs", s.handleLogs)

	return r
}

// Serve runs the HTTP server on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("graceful shutdown failed")
		_ = srv.Close()
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"character": s.face.ID(),
	})
}

type characterResponse struct {
	ID         string            `json:"id"`
	Profile    string            `json:"profile"`
	QueueDepth int               `json:"queue_depth"`
	JawEuler   [3]float32        `json:"jaw_euler"`
	Snapshot   avatar3d.Snapshot `json:"snapshot"`
}

func (s *Server) handleCharacter(w http.ResponseWriter, _ *http.Request) {
	resp := characterResponse{
		ID:       s.face.ID(),
		Profile:  s.face.Profile().Name,
		JawEuler: s.face.JawEuler(),
		Snapshot: s.face.Snapshot(),
	}
	if s.depth != nil {
		resp.QueueDepth = s.depth()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUtterance(w http.ResponseWriter, r *http.Request) {
	var u bridge.Utterance
	if err := decodeJSON(r, &u); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	err := s.utterances.HandleUtterance(u)
	switch {
	case err == nil:
		respondJSON(w, http.StatusAccepted, map[string]any{"status": "queued"})
	case errors.Is(err, bridge.ErrEchoSuppressed):
		respondError(w, http.StatusConflict, "echo_suppressed", err.Error())
	case errors.Is(err, bridge.ErrAudioDecode):
		respondError(w, http.StatusBadRequest, "invalid_audio", err.Error())
	case errors.Is(err, viseme.ErrMalformedPayload):
		respondError(w, http.StatusBadRequest, "invalid_visemes", err.Error())
	default:
		respondError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	}
}

func (s *Server) handleWink(w http.ResponseWriter, r *http.Request) {
	side, err := avatar3d.ParseEyelidSide(chi.URLParam(r, "side"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_side", err.Error())
		return
	}
	if !s.face.Post(func(now time.Time) { s.face.Wink(now, side) }) {
		respondError(w, http.StatusServiceUnavailable, "closed", "character closed")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"status": "winking", "side": side.String()})
}

func (s *Server) handleMood(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	if !s.face.Post(func(time.Time) { s.face.SetMood(name) }) {
		respondError(w, http.StatusServiceUnavailable, "closed", "character closed")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"status": "pending", "mood": name})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		respondJSON(w, http.StatusOK, []logging.LogEntry{})
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	respondJSON(w, http.StatusOK, s.logs.History(limit))
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
