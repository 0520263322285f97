// Package web serves the project model over HTTP: modules, source
// ownership, the target graph, sync and add-file actions, and SSE streams
// of sync progress.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ritzau/bazel-sync/pkg/filesync"
	"github.com/ritzau/bazel-sync/pkg/logging"
	"github.com/ritzau/bazel-sync/pkg/model"
	"github.com/ritzau/bazel-sync/pkg/projectsync"
	"github.com/ritzau/bazel-sync/pkg/pubsub"
	"github.com/ritzau/bazel-sync/pkg/workspacemodel"
)

// Syncer runs full syncs
type Syncer interface {
	Sync(ctx context.Context) (*projectsync.Result, error)
	Current() *projectsync.SyncContext
	Status() *projectsync.SyncStatus
}

// FileAdder runs the add-file action
type FileAdder interface {
	AddFile(ctx context.Context, path string) (*filesync.Result, error)
	IsVisible(path string) bool
	IsEnabled() bool
}

// Server represents the web server
type Server struct {
	router    *mux.Router
	store     *workspacemodel.Store
	syncer    Syncer
	adder     FileAdder
	publisher pubsub.Publisher

	// background syncs started by POST /api/sync outlive their request
	syncCtx context.Context
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	Syncing      bool                         `json:"syncing"`
	Version      uint64                       `json:"version"`
	Modules      int                          `json:"modules"`
	Pass         string                       `json:"pass,omitempty"`
	Transactions []workspacemodel.Transaction `json:"transactions"`
}

// OwnershipResponse is the body of GET /api/ownership
type OwnershipResponse struct {
	File    string        `json:"file"`
	Owners  []model.Label `json:"owners"`
	Modules []string      `json:"modules"`
	// CanAdd tells whether the add-file action applies to the file now
	CanAdd bool `json:"canAdd"`
}

// AddFileRequest is the body of POST /api/files/add
type AddFileRequest struct {
	Path string `json:"path"`
}

// NewServer creates a new web server
func NewServer(store *workspacemodel.Store, syncer Syncer, adder FileAdder, publisher pubsub.Publisher) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		store:     store,
		syncer:    syncer,
		adder:     adder,
		publisher: publisher,
		syncCtx:   context.Background(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler with request logging
func (s *Server) Handler() http.Handler {
	return logging.RequestIDMiddleware(s.router)
}

func (s *Server) setupRoutes() {
	// SSE subscription endpoint
	s.router.HandleFunc("/api/subscribe/{topic}", s.handleSubscribe).Methods("GET")

	s.router.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/api/modules", s.handleModules).Methods("GET")
	s.router.HandleFunc("/api/modules/{name}", s.handleModule).Methods("GET")
	s.router.HandleFunc("/api/graph", s.handleGraph).Methods("GET")
	s.router.HandleFunc("/api/ownership", s.handleOwnership).Methods("GET")
	s.router.HandleFunc("/api/sync", s.handleSync).Methods("POST")
	s.router.HandleFunc("/api/files/add", s.handleAddFile).Methods("POST")
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]
	if !pubsub.IsTopic(topic) {
		http.Error(w, "unknown topic: "+topic, http.StatusNotFound)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*") // CORS support

	// Create subscription
	sub, err := s.publisher.Subscribe(r.Context(), topic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	// Send initial comment to establish connection (Safari compatibility)
	fmt.Fprintf(w, ": connected\n\n")
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	// Stream events
	for event := range sub.Events() {
		if err := pubsub.WriteSSE(w, event); err != nil {
			logging.DebugContext(r.Context(), "SSE client went away", "topic", topic, "error", err)
			return
		}
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.store.CurrentSnapshot()
	resp := StatusResponse{
		Syncing:      s.syncer.Status().InProgress(),
		Version:      snap.Version(),
		Modules:      len(snap.Modules()),
		Transactions: s.store.History(),
	}
	if sc := s.syncer.Current(); sc != nil {
		resp.Pass = sc.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.CurrentSnapshot().Modules())
}

func (s *Server) handleModule(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	m, ok := s.store.CurrentSnapshot().Module(name)
	if !ok {
		http.Error(w, "module not found: "+name, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	sc := s.syncer.Current()
	if sc == nil {
		writeJSON(w, http.StatusOK, model.NewGraph())
		return
	}
	writeJSON(w, http.StatusOK, model.GraphFromProject(sc.Project))
}

func (s *Server) handleOwnership(w http.ResponseWriter, r *http.Request) {
	file := r.URL.Query().Get("file")
	if file == "" {
		http.Error(w, "file query parameter required", http.StatusBadRequest)
		return
	}

	snap := s.store.CurrentSnapshot()
	resp := OwnershipResponse{
		File:    file,
		Owners:  snap.Owners(file),
		Modules: []string{},
		CanAdd:  s.adder.IsVisible(file) && s.adder.IsEnabled(),
	}
	if resp.Owners == nil {
		resp.Owners = []model.Label{}
	}
	for _, m := range snap.ModulesForFile(file) {
		resp.Modules = append(resp.Modules, m.Name)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSync starts a full sync in the background and returns 202. With
// ?wait=true it responds with the sync result instead.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.syncer.Status().InProgress() {
		http.Error(w, projectsync.ErrSyncInProgress.Error(), http.StatusConflict)
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		result, err := s.syncer.Sync(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	requestID := logging.GetRequestID(r.Context())
	go func() {
		ctx := logging.WithRequestID(s.syncCtx, requestID)
		if _, err := s.syncer.Sync(ctx); err != nil && !errors.Is(err, projectsync.ErrSyncInProgress) {
			logging.ErrorContext(ctx, "sync failed", "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleAddFile(w http.ResponseWriter, r *http.Request) {
	var req AddFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		http.Error(w, "body must be {\"path\": \"...\"}", http.StatusBadRequest)
		return
	}

	result, err := s.adder.AddFile(r.Context(), req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, projectsync.ErrSyncInProgress):
		status = http.StatusConflict
	case errors.Is(err, filesync.ErrNotSourceFile):
		status = http.StatusUnprocessableEntity
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("failed to encode response", "error", err)
	}
}

// Start serves on port until ctx is done, then shuts down gracefully. Syncs
// started over HTTP are cancelled with ctx.
func (s *Server) Start(ctx context.Context, port int) error {
	s.syncCtx = ctx
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("starting web server", "url", fmt.Sprintf("http://localhost:%d", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// SSE streams end when the publisher closes
		_ = s.publisher.Close()
		return srv.Shutdown(shutdownCtx)
	}
}
