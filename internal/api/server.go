// Package api exposes the HTTP interface for the scrape agent service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/blackbox-ai/scrape-agent/internal/config"
	"github.com/blackbox-ai/scrape-agent/internal/scraper"
	"github.com/blackbox-ai/scrape-agent/internal/telemetry"
)

// Server wires HTTP handlers to the scrape service.
type Server struct {
	router  chi.Router
	service *scraper.Service
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(service *scraper.Service, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: service,
		cfg:     cfg,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(telemetry.Middleware)
	r.Use(timeoutMiddleware(time.Duration(cfg.Server.RequestTimeout) * time.Second))
	if len(cfg.CORS.AllowedOrigins) > 0 {
		r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	}
	if cfg.Auth.Enabled {
		r.Use(basicAuthMiddleware(cfg.Auth.Username, cfg.Auth.Password))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/scrape", s.scrape)
		r.Route("/agents", func(r chi.Router) {
			r.Post("/", s.createAgent)
			r.Get("/", s.listAgents)
			r.Route("/{agent_id}", func(r chi.Router) {
				r.Get("/", s.getAgent)
				r.Put("/", s.updateAgent)
				r.Delete("/", s.deleteAgent)
				r.Post("/ask", s.askAgent)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type scrapeRequest struct {
	URLs     []string `json:"urls"`
	Mode     string   `json:"mode"`
	Crawl    bool     `json:"crawl"`
	Query    string   `json:"query"`
	MaxDepth int      `json:"max_depth"`
	MaxPages int      `json:"max_pages"`
}

type scrapeResponse struct {
	Pages  []scraper.PageContent `json:"pages"`
	Errors []scraper.PageError   `json:"errors,omitempty"`
	Answer *scraper.Answer       `json:"answer,omitempty"`
}

func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	mode, err := scraper.ParseMode(req.Mode)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.URLs) == 0 {
		s.writeError(w, http.StatusBadRequest, "at least one URL required")
		return
	}
	if mode == scraper.ModeAI && req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "query is required for ai mode")
		return
	}

	opts := scraper.CrawlOptions{MaxDepth: req.MaxDepth, MaxPages: req.MaxPages}
	var result scraper.ScrapeResult
	if req.Crawl {
		result = s.service.CrawlPages(r.Context(), req.URLs, mode, opts)
	} else {
		result = s.service.ScrapePages(r.Context(), req.URLs, mode)
	}

	resp := scrapeResponse{Pages: result.Pages, Errors: result.Errors}
	if mode == scraper.ModeAI {
		answer, err := s.service.AnswerWithAI(r.Context(), req.Query, result.Pages)
		if err != nil {
			if errors.Is(err, scraper.ErrLLMNotConfigured) {
				s.writeError(w, http.StatusServiceUnavailable, "ai mode is not available: no llm backend configured")
				return
			}
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Answer = &answer
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type agentRequest struct {
	Name     string   `json:"agent_name"`
	URLs     []string `json:"urls"`
	Mode     string   `json:"mode"`
	Crawl    bool     `json:"crawl"`
	MaxDepth int      `json:"max_depth"`
	MaxPages int      `json:"max_pages"`
}

func (s *Server) createAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "agent_name is required")
		return
	}
	if len(req.URLs) == 0 {
		s.writeError(w, http.StatusBadRequest, "at least one URL required")
		return
	}
	mode, err := scraper.ParseMode(req.Mode)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := scraper.CrawlOptions{MaxDepth: req.MaxDepth, MaxPages: req.MaxPages}
	agent, err := s.service.CreateAgent(r.Context(), req.Name, req.URLs, req.Crawl, mode, opts)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, agent)
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.service.ListAgents(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if summaries == nil {
		summaries = []scraper.AgentSummary{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"agents": summaries})
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.service.GetAgent(r.Context(), chi.URLParam(r, "agent_id"))
	if err != nil {
		s.writeAgentError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, agent)
}

func (s *Server) updateAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	mode, err := scraper.ParseMode(req.Mode)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := scraper.CrawlOptions{MaxDepth: req.MaxDepth, MaxPages: req.MaxPages}
	agent, err := s.service.UpdateAgent(r.Context(), chi.URLParam(r, "agent_id"), req.URLs, req.Crawl, mode, opts)
	if err != nil {
		s.writeAgentError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, agent)
}

func (s *Server) deleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent_id")
	if err := s.service.DeleteAgent(r.Context(), agentID); err != nil {
		s.writeAgentError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"agent_id": agentID, "status": "deleted"})
}

type askRequest struct {
	Query string `json:"query"`
}

func (s *Server) askAgent(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	answer, err := s.service.AskAgent(r.Context(), chi.URLParam(r, "agent_id"), req.Query)
	if err != nil {
		s.writeAgentError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, answer)
}

func (s *Server) writeAgentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scraper.ErrAgentNotFound):
		s.writeError(w, http.StatusNotFound, "agent not found")
	case errors.Is(err, scraper.ErrAgentExists):
		s.writeError(w, http.StatusConflict, "agent already exists")
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
