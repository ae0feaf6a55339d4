package server

import (
	"net/http"

	"bluegreen-deployment/internal/config"
	"bluegreen-deployment/internal/handlers"
	"bluegreen-deployment/internal/logger"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Server struct {
	config  *config.Config
	handler *handlers.Handler
	router  *mux.Router
	logger  *logrus.Entry
}

func NewServer(cfg *config.Config, handler *handlers.Handler) *Server {
	// Initialize the global logger
	logger.Initialize()

	s := &Server{
		config:  cfg,
		handler: handler,
		router:  mux.NewRouter(),
		logger:  logger.WithModule("server"),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health endpoint (unprotected)
	s.router.HandleFunc("/health", s.handler.Health).Methods("GET")

	// Protected routes with secret key validation
	protectedRouter := s.router.PathPrefix("").Subrouter()
	protectedRouter.Use(s.authMiddleware)

	// Deploy endpoint
	protectedRouter.HandleFunc("/deploy", s.handler.Deploy).Methods("POST")

	// Status endpoints; /status/last must be registered before the
	// attempt_id route or mux would treat "last" as an ID
	protectedRouter.HandleFunc("/status/last", s.handler.LastStatus).Methods("GET")
	protectedRouter.HandleFunc("/status/{attempt_id}", s.handler.Status).Methods("GET")
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get secret key from header
		secretKey := r.Header.Get("X-Secret-Key")

		// Validate secret key
		if secretKey != s.config.ValidSecret {
			s.logger.WithFields(logrus.Fields{
				"path":   r.URL.Path,
				"method": r.Method,
				"ip":     r.RemoteAddr,
			}).Warn("Invalid secret key provided")
			http.Error(w, "Invalid secret key", http.StatusUnauthorized)
			return
		}

		// Continue to next handler
		next.ServeHTTP(w, r)
	})
}

// Router exposes the configured router, mainly for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) Start() error {
	s.logger.WithField("port", s.config.Port).Info("Server starting")
	return http.ListenAndServe(":"+s.config.Port, s.router)
}
