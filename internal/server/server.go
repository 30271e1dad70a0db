package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/dispatchboard"
	"github.com/jpalmerr/dispatchboard/internal/broadcast"
	"github.com/jpalmerr/dispatchboard/remote"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// Must be <= shutdownTimeout so streams cannot outlive a shutdown.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "Dispatch Board"

	requestIDHeader = remote.RequestIDHeader
)

// Board is the subset of [dispatchboard.BoardStore] the server drives.
type Board interface {
	LoadAll(ctx context.Context, opts dispatchboard.LoadOptions)
	AssignVehicle(ctx context.Context, journeyID, vehicleID int)
	UnassignVehicle(ctx context.Context, journeyID int)
	UpdateJourneyStatus(ctx context.Context, journeyID int, status dispatchboard.JourneyStatus) error
	Journey(id int) (dispatchboard.Journey, bool)
}

// Server handles HTTP requests for the dispatch board API.
//
// Routes:
//   - GET /: minimal HTML page naming the board
//   - GET /api/board: latest board snapshot as JSON
//   - GET /api/sse: Server-Sent Events stream of board snapshots
//   - POST /api/load: reload every collection
//   - POST /api/journeys/{id}/assign, /unassign, /start, /finish, /status
//   - GET /metrics: Prometheus exposition, when a metrics handler is set
type Server struct {
	board      Board
	hub        *broadcast.Hub[dispatchboard.Snapshot]
	port       int
	title      string
	metrics    http.Handler
	logger     *slog.Logger
	httpServer *http.Server
	addr       string
}

// NewServer creates a new HTTP [Server].
//
// Snapshots are read from hub, which the caller keeps current (usually via
// [broadcast.Hub.Follow] on the board's snapshot view). metrics may be nil.
// The server is not started until [Server.Start] is called.
func NewServer(board Board, hub *broadcast.Hub[dispatchboard.Snapshot], port int, title string, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if title == "" {
		title = defaultTitle
	}
	return &Server{
		board:   board,
		hub:     hub,
		port:    port,
		title:   title,
		metrics: metrics,
		logger:  logger,
	}
}

// Handler returns the routes without binding a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/board", s.handleBoard)
	mux.HandleFunc("GET /api/sse", s.handleSSE)
	mux.HandleFunc("POST /api/load", s.handleLoad)
	mux.HandleFunc("POST /api/journeys/{id}/assign", s.handleAssign)
	mux.HandleFunc("POST /api/journeys/{id}/unassign", s.handleUnassign)
	mux.HandleFunc("POST /api/journeys/{id}/start", s.handleTransition(dispatchboard.StatusInProgress))
	mux.HandleFunc("POST /api/journeys/{id}/finish", s.handleTransition(dispatchboard.StatusFinished))
	mux.HandleFunc("POST /api/journeys/{id}/status", s.handleStatus)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return withRequestID(mux)
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}
	s.addr = ln.Addr().String()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		// request contexts end with ctx, which stops open SSE streams
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address once started.
func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	title := html.EscapeString(s.title)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := fmt.Fprintf(w, `<!doctype html>
<html><head><title>%s</title></head>
<body><h1>%s</h1><p>Snapshot: <a href="/api/board">/api/board</a>. Live stream: <a href="/api/sse">/api/sse</a>.</p></body></html>
`, title, title)
	if err != nil {
		s.logger.Error("failed to write index response", "error", err)
	}
}

// handleBoard returns the latest published snapshot.
func (s *Server) handleBoard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	s.writeJSON(w, http.StatusOK, s.latest())
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	opts, err := loadOptions(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.board.LoadAll(detach(r), opts)
	s.writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

type assignRequest struct {
	VehicleID *int `json:"vehicleId"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	id, ok := s.journeyID(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VehicleID == nil {
		s.writeError(w, http.StatusBadRequest, "Body must be {\"vehicleId\": <int>}")
		return
	}
	s.board.AssignVehicle(detach(r), id, *req.VehicleID)
	s.writeJourney(w, id)
}

func (s *Server) handleUnassign(w http.ResponseWriter, r *http.Request) {
	id, ok := s.journeyID(w, r)
	if !ok {
		return
	}
	s.board.UnassignVehicle(detach(r), id)
	s.writeJourney(w, id)
}

func (s *Server) handleTransition(status dispatchboard.JourneyStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.journeyID(w, r)
		if !ok {
			return
		}
		if err := s.board.UpdateJourneyStatus(detach(r), id, status); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeJourney(w, id)
	}
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.journeyID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Body must be {\"status\": <string>}")
		return
	}
	status, err := dispatchboard.ParseJourneyStatus(req.Status)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.board.UpdateJourneyStatus(detach(r), id, status); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJourney(w, id)
}

// handleSSE streams board snapshots via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(u broadcast.Update[dispatchboard.Snapshot]) error {
		data, err := json.Marshal(u.Value)
		if err != nil {
			s.logger.Error("failed to encode snapshot", "error", err)
			return nil
		}
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", u.Seq, data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// subscribe before reading the latest so no publish falls in between
	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	var sent uint64
	if u, ok := s.hub.Latest(); ok {
		if err := writeAndFlush(u); err != nil {
			return
		}
		sent = u.Seq
	}

	for {
		select {
		case u, ok := <-ch:
			if !ok {
				return
			}
			if u.Seq <= sent {
				continue
			}
			if err := writeAndFlush(u); err != nil {
				return
			}
			sent = u.Seq

		case <-r.Context().Done():
			// fires on both client disconnect and server shutdown
			return
		}
	}
}

func (s *Server) latest() dispatchboard.Snapshot {
	u, _ := s.hub.Latest()
	return u.Value
}

func (s *Server) journeyID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Journey id must be an integer")
		return 0, false
	}
	return id, true
}

// writeJourney answers a mutation with the journey's local state. The
// remote write is still in flight; failures surface in the snapshot error.
func (s *Server) writeJourney(w http.ResponseWriter, id int) {
	j, ok := s.board.Journey(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Journey not found")
		return
	}
	s.writeJSON(w, http.StatusAccepted, j)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"message": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// loadOptions reads ?delay=<ms>&simulateError=true.
func loadOptions(r *http.Request) (dispatchboard.LoadOptions, error) {
	var opts dispatchboard.LoadOptions
	q := r.URL.Query()
	if v := q.Get("delay"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			return opts, fmt.Errorf("delay must be a non-negative integer of milliseconds")
		}
		opts.Delay = time.Duration(ms) * time.Millisecond
	}
	if v := q.Get("simulateError"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("simulateError must be a boolean")
		}
		opts.SimulateError = b
	}
	return opts, nil
}

// detach keeps request values but drops cancellation, so the remote
// write outlives the response.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
