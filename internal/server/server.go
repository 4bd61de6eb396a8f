// Package server exposes the REST API and the server-sent event stream that
// dashboard clients consume.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wheresmyjobat/wheresmyjobat/internal/common"
	"github.com/wheresmyjobat/wheresmyjobat/internal/model"
	"github.com/wheresmyjobat/wheresmyjobat/internal/monitor"
	"github.com/wheresmyjobat/wheresmyjobat/internal/service"
	"github.com/wheresmyjobat/wheresmyjobat/internal/store"
)

// Config holds server configuration.
type Config struct {
	Addr string
}

// actionableConfidence mirrors the monitor's default threshold for the
// ad-hoc analysis endpoint.
const actionableConfidence = 30

// Server wires the HTTP surface to the store, the monitor, and the mailbox.
type Server struct {
	cfg        Config
	store      *store.Store
	storage    service.Storage
	mailbox    service.MailboxService
	classifier service.Classifier
	monitor    *monitor.Monitor
	hub        *Hub

	httpServer *http.Server
}

// New assembles the server. storage may be nil when persistence is disabled.
func New(cfg Config, st *store.Store, storage service.Storage, mbox service.MailboxService, classifier service.Classifier, mon *monitor.Monitor, hub *Hub) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:5000"
	}
	return &Server{
		cfg:        cfg,
		store:      st,
		storage:    storage,
		mailbox:    mbox,
		classifier: classifier,
		monitor:    mon,
		hub:        hub,
	}
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:        s.cfg.Addr,
		Handler:     s.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
		// No WriteTimeout: the event stream holds its connection open.
	}

	slog.Info("HTTP server listening", "addr", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router builds the route table.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/auth/callback", s.handleAuthCallback)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/events", s.hub.ServeHTTP)

		r.Get("/applications", s.handleListApplications)
		r.Post("/applications", s.handleCreateApplication)
		r.Put("/applications/{id}", s.handleUpdateApplication)
		r.Delete("/applications/{id}", s.handleDeleteApplication)

		r.Get("/gmail/auth-url", s.handleAuthURL)

		r.Route("/monitor", func(r chi.Router) {
			r.Get("/status", s.handleMonitorStatus)
			r.Post("/start", s.handleMonitorStart)
			r.Post("/stop", s.handleMonitorStop)
			r.Post("/scan", s.handleMonitorScan)
		})

		r.Post("/analyze-email", s.handleAnalyzeEmail)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListApplications returns the full list grouped by stage. Before
// authentication the groups are present but empty.
func (s *Server) handleListApplications(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Grouped())
}

type applicationRequest struct {
	Company  string `json:"company"`
	Position string `json:"position"`
	Stage    string `json:"stage"`
}

func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	var req applicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Company = strings.TrimSpace(req.Company)
	req.Position = strings.TrimSpace(req.Position)
	if req.Company == "" || req.Position == "" {
		writeError(w, http.StatusBadRequest, "company and position are required")
		return
	}

	stage := model.StageApplied
	if req.Stage != "" {
		parsed, err := model.ParseStage(req.Stage)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		stage = parsed
	}

	app := s.store.Add(req.Company, req.Position, stage)
	s.hub.PublishSnapshot(s.store.Grouped())
	writeJSON(w, http.StatusCreated, app)
}

func (s *Server) handleUpdateApplication(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid application id")
		return
	}

	var req applicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	stage, err := model.ParseStage(req.Stage)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	app, err := s.store.UpdateStage(id, stage)
	if errors.Is(err, common.ErrNotFound) {
		writeError(w, http.StatusNotFound, "application not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update application")
		return
	}

	s.hub.PublishSnapshot(s.store.Grouped())
	writeJSON(w, http.StatusOK, app)
}

func (s *Server) handleDeleteApplication(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid application id")
		return
	}

	if err := s.store.Delete(id); errors.Is(err, common.ErrNotFound) {
		writeError(w, http.StatusNotFound, "application not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete application")
		return
	}

	s.hub.PublishSnapshot(s.store.Grouped())
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleAuthURL(w http.ResponseWriter, _ *http.Request) {
	url, err := s.mailbox.AuthURL()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"auth_url": url})
}

// handleAuthCallback completes the OAuth flow: exchange the code, load the
// user's saved applications, and start monitoring.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	identity, err := s.mailbox.Authenticate(r.Context(), code)
	if err != nil {
		slog.Error("Authentication failed", "error", err)
		writeError(w, http.StatusBadGateway, "authentication failed")
		return
	}

	if s.storage != nil && identity != "" {
		if err := s.loadUser(r.Context(), identity); err != nil {
			slog.Warn("Failed to load saved applications", "identity", identity, "error", err)
		}
	}

	s.monitor.Start(r.Context())
	s.hub.PublishSnapshot(s.store.Grouped())

	http.Redirect(w, r, "/", http.StatusFound)
}

// loadUser hydrates the in-memory store from the user's persisted rows.
func (s *Server) loadUser(ctx context.Context, identity string) error {
	userID, err := s.storage.EnsureUser(ctx, identity)
	if err != nil {
		return err
	}
	apps, err := s.storage.ListApplications(ctx, userID)
	if err != nil {
		return err
	}
	s.store.Reset(apps)
	s.store.SetUser(userID)
	slog.Info("Loaded saved applications", "identity", identity, "count", len(apps))
	return nil
}

func (s *Server) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Status(r.Context()))
}

func (s *Server) handleMonitorStart(w http.ResponseWriter, r *http.Request) {
	if !s.mailbox.IsAuthenticated() {
		writeError(w, http.StatusBadRequest, "mailbox not connected")
		return
	}
	s.monitor.Start(r.Context())
	writeJSON(w, http.StatusOK, s.monitor.Status(r.Context()))
}

func (s *Server) handleMonitorStop(w http.ResponseWriter, r *http.Request) {
	s.monitor.Stop()
	writeJSON(w, http.StatusOK, s.monitor.Status(r.Context()))
}

func (s *Server) handleMonitorScan(w http.ResponseWriter, r *http.Request) {
	if !s.mailbox.IsAuthenticated() {
		writeError(w, http.StatusBadRequest, "mailbox not connected")
		return
	}

	result, err := s.monitor.ManualScan(r.Context())
	if err != nil {
		slog.Warn("Manual scan failed", "error", err)
		writeError(w, http.StatusBadGateway, "scan failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type analyzeRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Sender  string `json:"sender"`
}

type analyzeResponse struct {
	Company    string      `json:"company"`
	Position   string      `json:"position"`
	Stage      model.Stage `json:"stage"`
	Confidence int         `json:"confidence"`
	Actionable bool        `json:"actionable"`
	Created    bool        `json:"created"`
	Updated    bool        `json:"updated"`
}

// handleAnalyzeEmail classifies one pasted email and, when the result is
// actionable, merges it into the tracker exactly like a monitored message.
func (s *Server) handleAnalyzeEmail(w http.ResponseWriter, r *http.Request) {
	if !s.classifier.Available() {
		writeError(w, http.StatusServiceUnavailable, "classifier not configured")
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Subject == "" && req.Body == "" {
		writeError(w, http.StatusBadRequest, "subject or body is required")
		return
	}

	cls, err := s.classifier.Classify(r.Context(), req.Subject, req.Body, req.Sender)
	if err != nil {
		slog.Warn("Ad-hoc classification failed", "error", err)
		writeError(w, http.StatusBadGateway, "classification failed")
		return
	}

	resp := analyzeResponse{
		Company:    cls.Company,
		Position:   cls.Title,
		Stage:      cls.Tag.Canonical(),
		Confidence: cls.Confidence,
		Actionable: cls.Qualifies(actionableConfidence),
	}

	if resp.Actionable {
		app, created, updated := s.store.Merge(cls.Company, cls.Title, resp.Stage)
		resp.Created = created
		resp.Updated = updated
		if created {
			s.hub.PublishNewApplication(model.NewApplicationEvent{
				Timestamp: app.DateAdded,
				Company:   app.Company,
				Position:  app.Position,
				Stage:     app.Stage,
			})
			slog.Info("New application detected",
				"company", app.Company,
				"position", app.Position,
				"stage", app.Stage,
				"source", "analyze")
		}
		if created || updated {
			s.hub.PublishSnapshot(s.store.Grouped())
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
