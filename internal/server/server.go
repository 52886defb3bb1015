// Package server wires the party state store into the HTTP surface: the
// public listener and the admin mirror.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tianlai/party-server/internal/config"
	"github.com/tianlai/party-server/internal/logging"
	"github.com/tianlai/party-server/internal/metrics"
	"github.com/tianlai/party-server/internal/middleware"
	"github.com/tianlai/party-server/internal/party"
)

const (
	ServiceName = "party-server"
	Version     = "1.0.0"
)

const shutdownTimeout = 10 * time.Second

// Server owns the HTTP listeners and the injected state store.
type Server struct {
	store       *party.Store
	log         *logging.Logger
	backendMode config.BackendMode

	mainAddr  string
	adminAddr string
	origins   []string

	main  *http.Server
	admin *http.Server
}

// New creates a server for the given store and configuration. mode is the
// persistence mode actually resolved at startup, which differs from
// cfg.Mode() when a failed ping degraded the process to file-only.
func New(store *party.Store, cfg *config.Config, mode config.BackendMode, log *logging.Logger) *Server {
	s := &Server{
		store:       store,
		log:         log,
		backendMode: mode,
		mainAddr:    fmt.Sprintf(":%d", cfg.Port),
		origins:     cfg.Origins(),
	}
	if !cfg.AdminDisabled {
		s.adminAddr = fmt.Sprintf(":%d", cfg.AdminPort)
	}
	return s
}

// Router builds the full route set. The admin mirror serves the identical
// routes on its own port, matching the original deployment layout.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging(s.log))
	r.Use(middleware.Metrics())

	r.HandleFunc("/", s.handleRoot).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/info", s.handleInfo).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/data", s.handleGetData).Methods("GET")
	api.HandleFunc("/data", s.handleMergeData).Methods("POST")
	api.HandleFunc("/visit", s.handleVisit).Methods("POST")
	api.HandleFunc("/foodies", s.handleAddFoodie).Methods("POST")
	api.HandleFunc("/drinkers", s.handleUpsertDrinker).Methods("POST")
	api.HandleFunc("/game-preferences", s.handleUpsertGamePreference).Methods("POST")
	api.HandleFunc("/like-krystal", s.handleLikeKrystal).Methods("POST")
	api.HandleFunc("/vibe-votes", s.handleUpsertVibeVote).Methods("POST")
	api.HandleFunc("/member-likes", s.handleSetMemberLikes).Methods("POST")
	api.HandleFunc("/member-comments", s.handleSetMemberComments).Methods("POST")
	api.HandleFunc("/custom-members", s.handleReplaceCustomMembers).Methods("POST")

	api.HandleFunc("/game-lobbies", s.handleListLobbies).Methods("GET")
	api.HandleFunc("/game-lobbies", s.handleCreateLobby).Methods("POST")
	api.HandleFunc("/game-lobbies/{id}/join", s.handleJoinLobby).Methods("POST")
	api.HandleFunc("/game-lobbies/{id}", s.handleDeleteLobby).Methods("DELETE")

	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	api.HandleFunc("/admin/full-data", s.handleAdminFullData).Methods("GET")
	api.HandleFunc("/admin/export", s.handleAdminExport).Methods("GET")
	api.HandleFunc("/admin/clear", s.handleAdminClear).Methods("POST")

	scene := api.PathPrefix("/party-scene").Subrouter()
	scene.HandleFunc("/characters", s.handleListCharacters).Methods("GET")
	scene.HandleFunc("/characters", s.handleCreateCharacter).Methods("POST")
	scene.HandleFunc("/characters/{id}", s.handleGetCharacter).Methods("GET")
	scene.HandleFunc("/characters/{id}", s.handleUpdateCharacter).Methods("PATCH")
	scene.HandleFunc("/characters/{id}/like", s.handleLikeCharacter).Methods("POST")
	scene.HandleFunc("/characters/{id}/messages", s.handleAddCharacterMessage).Methods("POST")
	scene.HandleFunc("/characters/{id}", s.handleDeleteCharacter).Methods("DELETE")

	return r
}

// Run serves until ctx is cancelled, then drains the listeners and
// performs one best-effort final save.
func (s *Server) Run(ctx context.Context) error {
	cors := middleware.NewCORS(s.origins)
	handler := cors.Handler(s.Router())

	s.main = &http.Server{Addr: s.mainAddr, Handler: handler}

	errCh := make(chan error, 2)

	go func() {
		s.log.Infof("API listening on %s", s.mainAddr)
		if err := s.main.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if s.adminAddr != "" {
		s.admin = &http.Server{Addr: s.adminAddr, Handler: cors.Handler(s.Router())}
		go func() {
			s.log.Infof("admin mirror listening on %s", s.adminAddr)
			if err := s.admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	s.log.Infof("shutting down, saving state")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.store.Flush(shutdownCtx); err != nil {
		s.log.Warnf("final save failed: %v", err)
	}

	_ = s.main.Shutdown(shutdownCtx)
	if s.admin != nil {
		_ = s.admin.Shutdown(shutdownCtx)
	}
	return nil
}
