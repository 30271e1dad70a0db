package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jpalmerr/dispatchboard/remote"
)

const shutdownTimeout = 5 * time.Second

// Server is the mock dispatch board API.
type Server struct {
	source     *remote.MemorySource
	port       int
	logger     *slog.Logger
	httpServer *http.Server
	addr       string
}

// NewServer creates a mock API [Server] backed by source.
//
// The server is not started until [Server.Start] is called.
func NewServer(source *remote.MemorySource, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		source: source,
		port:   port,
		logger: logger,
	}
}

// Handler returns the API routes without binding a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(allowCORS)
	r.Use(s.logRequests)

	r.Get("/", s.handleIndex)
	r.Route("/api", func(r chi.Router) {
		r.Use(simulateDelayAndError)
		r.Get("/{collection}", s.handleList)
		r.Get("/{collection}/{id}", s.handleGet)
		r.Patch("/{collection}/{id}", s.handlePatch)
	})
	return r
}

// Start begins serving in a background goroutine.
//
// Start returns after the listener is bound; the server shuts down gracefully
// when ctx is cancelled. Port 0 binds an ephemeral port, see [Server.Addr].
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}
	s.addr = ln.Addr().String()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("mock api server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("mock api shutdown error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address once started.
func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	collections := s.source.Collections()
	slices.Sort(collections)

	endpoints := make([]string, 0, 3*len(collections))
	for _, c := range collections {
		endpoints = append(endpoints,
			"GET /api/"+c,
			"GET /api/"+c+"/:id",
			"PATCH /api/"+c+"/:id",
		)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Mock API Server for Dispatch Board",
		"endpoints": endpoints,
		"queryParams": map[string]string{
			"delay": "Add delay in milliseconds (e.g., ?delay=1500)",
			"error": "Simulate error (e.g., ?error=true)",
		},
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var items []json.RawMessage
	if err := s.source.List(r.Context(), chi.URLParam(r, "collection"), remote.CallOptions{}, &items); err != nil {
		s.writeError(w, err)
		return
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id, ok := parseID(w, r, collection)
	if !ok {
		return
	}

	var item json.RawMessage
	if err := s.source.Get(r.Context(), collection, id, remote.CallOptions{}, &item); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id, ok := parseID(w, r, collection)
	if !ok {
		return
	}

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON body", Message: err.Error()})
		return
	}

	var item json.RawMessage
	if err := s.source.Patch(r.Context(), collection, id, fields, remote.CallOptions{}, &item); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// parseID reads the {id} parameter. Non-numeric ids are reported as missing
// entities, matching the behavior of a lookup that finds nothing.
func parseID(w http.ResponseWriter, r *http.Request, collection string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: remote.NotFoundMessage(collection)})
		return 0, false
	}
	return id, true
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var failure *remote.Failure
	if errors.As(err, &failure) && failure.StatusCode != 0 {
		writeJSON(w, failure.StatusCode, errorBody{Error: failure.Message})
		return
	}
	s.logger.Error("mock api request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error", Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
