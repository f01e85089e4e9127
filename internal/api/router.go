package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/iedash/internal/api/ws"
	"github.com/kalambet/iedash/internal/dashboard"
	"github.com/kalambet/iedash/internal/events"
	"github.com/kalambet/iedash/internal/storage"
)

const (
	maxRequestBodySize = 1 << 20  // 1MB
	maxUploadSize      = 32 << 20 // 32MB
)

// Deps holds what the HTTP API needs.
type Deps struct {
	Dashboard *dashboard.Service
	Bus       *events.Bus
	Hub       *ws.Hub
	Token     string       // optional; guards mutating routes when set
	Assets    http.Handler // optional; serves the web UI for non-API paths
}

// NewRouter returns the dashboard's HTTP handler.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Get("/health", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			httpError(w, http.StatusNotFound, "not_found_error", "no route for %s %s", r.Method, r.URL.Path)
		})

		r.Get("/stats", handleStats(deps))
		r.Get("/activity", handleActivity(deps))
		r.Get("/documents", handleListDocuments(deps))
		r.Get("/agents", handleListAgents(deps))
		r.Get("/providers", handleListProviders(deps))
		r.Get("/analytics", handleAnalytics(deps))
		r.Get("/chat/messages", handleChatMessages(deps))
		r.Get("/monitor", handleMonitor(deps))
		r.Get("/events", handleEvents(deps))
		if deps.Hub != nil {
			r.Get("/ws", deps.Hub.ServeWS)
		}

		r.Group(func(r chi.Router) {
			if deps.Token != "" {
				r.Use(requireToken(deps.Token))
			}
			r.Post("/documents", handleUploadDocuments(deps))
			r.Post("/agents/{id}/toggle", handleToggleAgent(deps))
			r.Put("/providers/{name}/key", handleUpdateAPIKey(deps))
			r.Post("/providers/{name}/test", handleTestConnection(deps))
			r.Post("/chat", handleChat(deps))
		})
	})

	if deps.Assets != nil {
		r.Get("/*", deps.Assets.ServeHTTP)
	}

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Dashboard.Stats()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read stats: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleActivity(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Dashboard.Activity())
	}
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		docs, err := deps.Dashboard.Documents(q.Get("category"), q.Get("status"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

func handleUploadDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		defer r.Body.Close()

		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart body: %v", err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		files := r.MultipartForm.File["files"]
		if len(files) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one file is required in field \"files\"")
			return
		}

		docs := make([]storage.Document, 0, len(files))
		for _, fh := range files {
			f, err := fh.Open()
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to open %s: %v", fh.Filename, err)
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to read %s: %v", fh.Filename, err)
				return
			}

			doc, err := deps.Dashboard.UploadDocument(fh.Filename, data)
			if errors.Is(err, dashboard.ErrInvalidInput) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to upload %s: %v", fh.Filename, err)
				return
			}
			docs = append(docs, doc)
		}

		writeJSON(w, http.StatusCreated, map[string]any{"documents": docs})
	}
}

func handleListAgents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agents, err := deps.Dashboard.Agents()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list agents: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, agents)
	}
}

func handleToggleAgent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		a, err := deps.Dashboard.ToggleAgent(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "agent %q not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to toggle agent: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func handleListProviders(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers, err := deps.Dashboard.Providers()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list providers: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, providers)
	}
}

type apiKeyRequest struct {
	APIKey *string `json:"api_key"`
}

func handleUpdateAPIKey(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req apiKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.APIKey == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "api_key is required")
			return
		}

		name := chi.URLParam(r, "name")
		view, err := deps.Dashboard.UpdateAPIKey(name, *req.APIKey)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "provider %q not found", name)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update key: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func handleTestConnection(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		started, err := deps.Dashboard.TestConnection(name)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "provider %q not found", name)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to start connection test: %v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]bool{"started": started})
	}
}

func handleAnalytics(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Dashboard.Analytics())
	}
}

func handleChatMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := deps.Dashboard.Messages()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list messages: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

type chatRequest struct {
	Message string `json:"message"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		sub := deps.Dashboard.SubmitQuery(req.Message)
		slog.Debug("chat submitted", "status", sub.Status, "run_id", sub.RunID)
		writeJSON(w, http.StatusOK, sub)
	}
}

func handleMonitor(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := deps.Dashboard.Monitor()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read monitor: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func handleEvents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseIntParam(r, "limit", 50)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if deps.Bus == nil {
			writeJSON(w, http.StatusOK, []any{})
			return
		}

		type eventJSON struct {
			ID        string `json:"id"`
			Type      string `json:"type"`
			Timestamp string `json:"timestamp"`
			Payload   any    `json:"payload"`
		}
		history := deps.Bus.History(limit)
		out := make([]eventJSON, len(history))
		for i, e := range history {
			out[i] = eventJSON{
				ID:        e.ID,
				Type:      string(e.Type),
				Timestamp: e.Timestamp.Format(time.RFC3339Nano),
				Payload:   e.Payload,
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func parseIntParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
