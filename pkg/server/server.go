// Package server exposes the report and run status over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/elonfeng/narradar/internal/pipeline"
	"github.com/elonfeng/narradar/pkg/idea"
)

// Server provides the HTTP API.
type Server struct {
	pipe   *pipeline.Pipeline
	port   int
	logger *zap.Logger
}

// New creates a new HTTP server.
func New(pipe *pipeline.Pipeline, port int, logger *zap.Logger) *Server {
	if port == 0 {
		port = 8080
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{pipe: pipe, port: port, logger: logger}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/report", s.handleReport)
	mux.HandleFunc("/api/v1/narratives", s.handleNarratives)
	mux.HandleFunc("/api/v1/ideas", s.handleIdeas)
	mux.HandleFunc("/api/v1/run", s.handleRun)

	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("server listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, s.pipe.Status())
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	report := s.pipe.Status().Report
	if report == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no report available yet"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleNarratives(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	report := s.pipe.Status().Report
	if report == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no report available yet"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  report.Narratives,
		"count": len(report.Narratives),
	})
}

func (s *Server) handleIdeas(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	report := s.pipe.Status().Report
	if report == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no report available yet"})
		return
	}

	ideas := report.Ideas
	if effort := r.URL.Query().Get("effort"); effort != "" {
		level := idea.EffortLevel(effort)
		if !idea.ValidEffort(level) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("unknown effort level %q", effort),
			})
			return
		}
		ideas = report.IdeasByEffort(level)
	}
	if narrativeID := r.URL.Query().Get("narrative"); narrativeID != "" {
		var filtered []idea.Idea
		for _, i := range ideas {
			if i.NarrativeID == narrativeID {
				filtered = append(filtered, i)
			}
		}
		ideas = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  ideas,
		"count": len(ideas),
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Days int `json:"days"`
	}
	if r.Body != nil {
		// An empty body means defaults.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	// Detach from the request context so the run survives the response.
	if err := s.pipe.Start(context.WithoutCancel(r.Context()), req.Days); err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
