package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"lessonlab/internal/app"
	"lessonlab/internal/ratelimit"
	"lessonlab/internal/usertoken"
	"lessonlab/internal/util"
	"lessonlab/pkg/ai"
	"lessonlab/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	TokenVerifier *usertoken.Verifier

	// GenerateLimiter, when set, caps generations per user. Other routes
	// are cheap reads and stay unlimited.
	GenerateLimiter *ratelimit.FixedWindowLimiter
}

// Server exposes the lesson-plan HTTP API.
type Server struct {
	app             *app.App
	tokenVerifier   *usertoken.Verifier
	generateLimiter *ratelimit.FixedWindowLimiter
	mux             *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:             cfg.App,
		tokenVerifier:   cfg.TokenVerifier,
		generateLimiter: cfg.GenerateLimiter,
		mux:             http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("POST /api/lessons/generate", s.withUser(s.handleGenerate))
	s.mux.Handle("GET /api/lessons", s.withUser(s.handleList))
	s.mux.Handle("GET /api/lessons/{id}", s.withUser(s.handleGet))
	s.mux.Handle("PUT /api/lessons/{id}/rating", s.withUser(s.handleRating))
	s.mux.Handle("POST /api/lessons/{id}/revise", s.withUser(s.handleRevise))
	s.mux.Handle("GET /api/lessons/{id}/revisions", s.withUser(s.handleRevisions))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenVerifier == nil {
			writeError(w, http.StatusInternalServerError, "token verifier not configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, err := s.tokenVerifier.VerifySubject(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, userID)
	})
}

type generateRequest struct {
	Topic    string `json:"topic"`
	Grade    string `json:"grade"`
	Duration int    `json:"duration"`
	Title    string `json:"title"`
	// Defaults to true when absent.
	ShowAgentThoughts *bool `json:"showAgentThoughts"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, userID string) {
	if s.generateLimiter != nil && !s.generateLimiter.Allow(userID) {
		writeError(w, http.StatusTooManyRequests, "generation rate limit exceeded")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	lesson, err := s.app.CreateLesson(r.Context(), userID, app.CreateLessonRequest{
		Topic:             req.Topic,
		Grade:             req.Grade,
		Duration:          req.Duration,
		Title:             req.Title,
		OmitAgentThoughts: req.ShowAgentThoughts != nil && !*req.ShowAgentThoughts,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lesson)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, userID string) {
	lessons, err := s.app.ListLessons(userID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lessons)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, userID string) {
	lesson, err := s.app.GetLesson(r.PathValue("id"), userID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lesson)
}

type ratingRequest struct {
	Rating *bool `json:"rating"`
}

func (s *Server) handleRating(w http.ResponseWriter, r *http.Request, userID string) {
	var req ratingRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Rating == nil {
		writeError(w, http.StatusBadRequest, "rating is required")
		return
	}
	if err := s.app.RateLesson(r.PathValue("id"), userID, *req.Rating); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type reviseRequest struct {
	Feedback string `json:"feedback"`
}

type reviseResponse struct {
	Lesson   domain.LessonPlan       `json:"lesson"`
	Revision domain.RevisionMetadata `json:"revision"`
}

func (s *Server) handleRevise(w http.ResponseWriter, r *http.Request, userID string) {
	var req reviseRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	lesson, revision, err := s.app.ReviseLesson(r.Context(), r.PathValue("id"), userID, req.Feedback)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviseResponse{Lesson: lesson, Revision: revision})
}

func (s *Server) handleRevisions(w http.ResponseWriter, r *http.Request, userID string) {
	revisions, err := s.app.ListRevisions(r.PathValue("id"), userID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, revisions)
}

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrLessonNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrTopicRequired),
		errors.Is(err, app.ErrGradeRequired),
		errors.Is(err, app.ErrDurationInvalid),
		errors.Is(err, app.ErrFeedbackRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		var completionErr *ai.CompletionError
		if errors.As(err, &completionErr) {
			util.LoggerFromContext(r.Context()).Error("model call failed", "error", err)
			writeError(w, http.StatusBadGateway, "lesson generation service unavailable")
			return
		}
		util.LoggerFromContext(r.Context()).Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
