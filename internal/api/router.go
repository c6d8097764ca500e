package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// NewRouter wires the REST and WebSocket boundary around the core services.
func NewRouter(h *Handler, frontendURL string, logger *zap.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(RequestLogger(logger))

	apiRouter := r.PathPrefix("/api").Subrouter()

	apiRouter.HandleFunc("/session/generate/qr", h.GenerateQRSession).Methods(http.MethodPost)
	apiRouter.HandleFunc("/session/generate/direct", h.GenerateDirectSession).Methods(http.MethodPost)
	apiRouter.HandleFunc("/session/{sessionId}/status", h.GetSessionStatus).Methods(http.MethodGet)
	apiRouter.HandleFunc("/session/{sessionId}/scan", h.MarkScanned).Methods(http.MethodPost)

	apiRouter.HandleFunc("/biometric/verify", h.VerifyBiometric).Methods(http.MethodPost)
	apiRouter.HandleFunc("/vote/cast", h.CastVote).Methods(http.MethodPost)

	apiRouter.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)

	admin := apiRouter.PathPrefix("/vote").Subrouter()
	admin.Use(AdminAuth(h.auth))
	admin.HandleFunc("/results", h.GetResults).Methods(http.MethodGet)
	admin.HandleFunc("/count", h.GetVoteCount).Methods(http.MethodGet)

	r.HandleFunc("/ws", h.WatchSession).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{frontendURL},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})

	return c.Handler(r)
}
