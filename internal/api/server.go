package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"converse/config"
	"converse/internal/auth"
	"converse/internal/chat"
	"converse/internal/realtime"
	"converse/internal/user"
)

type Server struct {
	router *mux.Router
	log    *zap.Logger

	auth  *auth.Service
	users *user.Service
	chats *chat.Service
	hub   *realtime.Hub
}

func NewServer(cfg *config.Config, log *zap.Logger, authSvc *auth.Service, userSvc *user.Service, chatSvc *chat.Service, hub *realtime.Hub) *Server {
	hub.SetWriteTimeout(cfg.WriteTimeout)
	hub.SetQueueLen(cfg.OutboundQueueLen)

	s := &Server{
		router: mux.NewRouter(),
		log:    log,
		auth:   authSvc,
		users:  userSvc,
		chats:  chatSvc,
		hub:    hub,
	}
	s.setupRoutes(cfg)
	return s
}

func (s *Server) setupRoutes(cfg *config.Config) {
	s.router.Use(LoggingMiddleware(s.log))
	s.router.Use(RateLimitMiddleware(cfg.RateLimitPerSec))

	s.router.HandleFunc("/health", s.healthCheck).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// The websocket handshake carries its own token; the REST auth
	// middleware does not apply to it.
	s.router.Handle("/ws", s.hub)

	s.router.HandleFunc("/api/auth/register", s.register).Methods(http.MethodPost)
	s.router.HandleFunc("/api/auth/login", s.login).Methods(http.MethodPost)
	s.router.HandleFunc("/api/auth/refresh", s.refresh).Methods(http.MethodPost)
	s.router.HandleFunc("/api/auth/logout", s.logout).Methods(http.MethodPost)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(AuthMiddleware(s.auth))
	api.HandleFunc("/users/me", s.me).Methods(http.MethodGet)
	api.HandleFunc("/users", s.searchUsers).Methods(http.MethodGet)
	api.HandleFunc("/conversations", s.createConversation).Methods(http.MethodPost)
	api.HandleFunc("/conversations", s.listConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}", s.deleteConversation).Methods(http.MethodDelete)
	api.HandleFunc("/conversations/{id}/participants", s.addParticipant).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/messages", s.getMessages).Methods(http.MethodGet)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
