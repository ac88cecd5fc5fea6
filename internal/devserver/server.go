// Package devserver is a development implementation of the workflow
// definition service backed by the local libSQL store.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/rendis/flowcanvas/internal/logging"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/internal/validation"
	"github.com/rendis/flowcanvas/pkg/schema"
)

const maxRequestBody = 10 * 1024 * 1024 // 10MB

// DefinitionStore is the part of store.Store the server needs.
type DefinitionStore interface {
	SaveDefinition(ctx context.Context, def *schema.WorkflowDefinition) (*schema.WorkflowDefinition, error)
	GetDefinition(ctx context.Context, id string) (*schema.WorkflowDefinition, error)
	ListRevisions(ctx context.Context, workflowType string) ([]schema.WorkflowDefinition, error)
	ListDefinitions(ctx context.Context, start, length int) (*schema.DefinitionPage, error)
	ListHistory(ctx context.Context, workflowType string, since int64) ([]*store.HistoryEntry, error)
}

// Deps configures a Server. Validator may be nil to accept any document
// that decodes.
type Deps struct {
	Store     DefinitionStore
	Validator *validation.Validator
	Logger    *slog.Logger
}

// Server routes the definition API under /api/v1.
type Server struct {
	store     DefinitionStore
	validator *validation.Validator
	logger    *slog.Logger
	router    *mux.Router
}

// New builds a Server with its routes registered.
func New(deps Deps) *Server {
	s := &Server{
		store:     deps.Store,
		validator: deps.Validator,
		logger:    deps.Logger,
		router:    mux.NewRouter(),
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.logRequests, allowCORS)
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/workflows", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/workflows", s.handleSave).Methods(http.MethodPost)
	api.HandleFunc("/workflows", preflight).Methods(http.MethodOptions)
	api.HandleFunc("/workflows/revisions/{type}", s.handleRevisions).Methods(http.MethodGet)
	api.HandleFunc("/workflows/history/{type}", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}", s.handleGet).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dev server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// --- Handlers ---

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	start := queryInt(r, "start", 0)
	length := queryInt(r, "length", 10)
	page, err := s.store.ListDefinitions(r.Context(), start, length)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleRevisions(w http.ResponseWriter, r *http.Request) {
	workflowType := mux.Vars(r)["type"]
	defs, err := s.store.ListRevisions(r.Context(), workflowType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schema.Envelope[[]schema.WorkflowDefinition]{Success: true, Data: defs})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	workflowType := mux.Vars(r)["type"]
	since := int64(queryInt(r, "since", 0))
	entries, err := s.store.ListHistory(r.Context(), workflowType, since)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*store.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, schema.Envelope[[]*store.HistoryEntry]{Success: true, Data: entries})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	def, err := s.store.GetDefinition(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schema.Envelope[*schema.WorkflowDefinition]{Success: true, Data: def})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		s.writeError(w, r, schema.NewError(schema.ErrCodeDecode, "read request body").WithCause(err))
		return
	}

	ctx := r.Context()
	if s.validator != nil {
		if result := s.validator.ValidateJSON(ctx, raw); !result.Valid() {
			s.writeError(w, r, result.ToError())
			return
		}
	}

	var def schema.WorkflowDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		s.writeError(w, r, schema.NewError(schema.ErrCodeDecode, "request body is not a workflow definition").WithCause(err))
		return
	}
	ctx = logging.WithWorkflowType(ctx, def.WorkflowType)

	saved, err := s.store.SaveDefinition(ctx, &def)
	if err != nil {
		s.writeError(w, r.WithContext(ctx), err)
		return
	}
	s.logger.InfoContext(logging.WithDefinitionID(ctx, saved.ID), "definition stored", "revision", saved.Revision)
	writeJSON(w, http.StatusCreated, schema.Envelope[*schema.WorkflowDefinition]{Success: true, Data: saved})
}

// --- Helpers ---

type errorBody struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Message: err.Error()}
	status := http.StatusInternalServerError

	var se *schema.Error
	if errors.As(err, &se) {
		body.Message, body.Code, body.Details = se.Message, se.Code, se.Details
		switch se.Code {
		case schema.ErrCodeValidation, schema.ErrCodeDecode:
			status = http.StatusBadRequest
		case schema.ErrCodeNotFound:
			status = http.StatusNotFound
		case schema.ErrCodeConflict:
			status = http.StatusConflict
		}
	}
	if status >= 500 {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// statusRecorder captures the status code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.DebugContext(r.Context(), "http request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		next.ServeHTTP(w, r)
	})
}

func preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
