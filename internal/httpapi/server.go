// Package httpapi is the control surface for pagemate: JSON endpoints
// for settings and sidebar sessions, plus a websocket carrying the
// toggle control message and live settings pushes.
package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hbruyere/pagemate/internal/chat"
	"github.com/hbruyere/pagemate/internal/config"
	"github.com/hbruyere/pagemate/internal/extract"
	. "github.com/hbruyere/pagemate/internal/logging"
	"github.com/hbruyere/pagemate/internal/settings"
	"github.com/hbruyere/pagemate/internal/sidebar"
)

// Server exposes the pagemate API over HTTP.
type Server struct {
	server     *http.Server
	store      *settings.Store
	extractor  *extract.Extractor
	dispatcher *chat.Dispatcher
	extractCfg config.ExtractConfig

	mu       sync.RWMutex
	sessions map[string]*sidebar.Sidebar

	wg sync.WaitGroup
}

// NewServer creates the API server.
func NewServer(listen string, store *settings.Store, cfg config.ExtractConfig) *Server {
	s := &Server{
		store:      store,
		extractor:  extract.New(cfg),
		dispatcher: chat.NewDispatcher(),
		extractCfg: cfg,
		sessions:   make(map[string]*sidebar.Sidebar),
	}

	s.server = &http.Server{
		Addr:        listen,
		Handler:     s.routes(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
		// No WriteTimeout: chat sends have no deadline and the
		// websocket stays open indefinitely.
	}
	return s
}

// Handler returns the route tree; tests drive it through httptest.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/settings", s.logRequest(s.handleGetSettings))
	mux.HandleFunc("PATCH /api/settings", s.logRequest(s.handlePatchSettings))
	mux.HandleFunc("POST /api/settings/reset", s.logRequest(s.handleResetSettings))

	mux.HandleFunc("POST /api/sessions", s.logRequest(s.handleAttach))
	mux.HandleFunc("GET /api/sessions/{id}", s.logRequest(s.handleSessionState))
	mux.HandleFunc("POST /api/sessions/{id}/send", s.logRequest(s.handleSend))
	mux.HandleFunc("POST /api/sessions/{id}/selection", s.logRequest(s.handleSelection))
	mux.HandleFunc("POST /api/sessions/{id}/tooltip", s.logRequest(s.handleTooltipAction))
	mux.HandleFunc("POST /api/sessions/{id}/attachments", s.logRequest(s.handleAddAttachments))
	mux.HandleFunc("DELETE /api/sessions/{id}/attachments/{attID}", s.logRequest(s.handleRemoveAttachment))

	mux.HandleFunc("GET /ws", s.handleWS)

	return mux
}

func (s *Server) logRequest(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h(w, r)
		L_trace("httpapi: request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	}
}

// attachSession creates and mounts a sidebar for a page.
func (s *Server) attachSession(page sidebar.Page) (string, *sidebar.Sidebar, error) {
	sb, err := sidebar.New(s.store, s.extractor, s.dispatcher, s.extractCfg.Delay())
	if err != nil {
		return "", nil, err
	}
	sb.Mount(page)

	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = sb
	s.mu.Unlock()

	L_info("httpapi: session attached", "sessionID", id, "url", page.URL)
	return id, sb, nil
}

func (s *Server) session(id string) *sidebar.Sidebar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		L_info("httpapi: server starting", "addr", s.server.Addr)

		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			L_error("httpapi: server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(ctx)

	s.mu.Lock()
	for _, sb := range s.sessions {
		sb.Unmount()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}
