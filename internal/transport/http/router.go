package http

import (
	"net/http"
	"strings"
	"time"

	"e2ee-channels/internal/observability/middleware"
	"e2ee-channels/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	JWTSecret   string
	JWTIssuer   string
	CORSOrigins string
}

func NewRouter(svc *service.Service, cfg RouterConfig) http.Handler {
	h := &handler{svc: svc}
	auth := NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(httprate.LimitByIP(100, 1*time.Minute))

	origins := strings.Split(cfg.CORSOrigins, ",")
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   originsIfSet(origins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(middleware.WithRequestAndTrace)
	r.Use(middleware.WithMetrics)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Public keys are public data: no authorization on fetches.
	r.Get("/users/{userID}/public-key", h.getPublicKey)
	r.Get("/users/public-keys", h.getPublicKeys)
	r.Get("/users/with-keys", h.usersWithKeys)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Post("/users/keys", h.registerPublicKey)
		r.Get("/users/me/encryption/status", h.userEncryptionStatus)
		r.Post("/users/me/keys/revoke", h.revokePublicKeys)

		r.Post("/channels", h.createChannel)
		r.Route("/channels/{channelID}", func(r chi.Router) {
			r.Post("/participants/{userID}", h.addParticipant)
			r.Delete("/participants/{userID}", h.removeParticipant)
			r.Get("/participants/keys", h.participantPublicKeys)

			r.Post("/encryption/enable", h.enableEncryption)
			r.Get("/encryption/status", h.encryptionStatus)

			r.Post("/session-keys", h.storeSessionKey)
			r.Get("/session-keys", h.channelSessionKeys)
			r.Get("/session-keys/me", h.mySessionKey)
			r.Post("/session-keys/rotate", h.rotateSessionKey)
			r.Post("/participants/{userID}/session-key", h.addParticipantSessionKey)
		})
	})

	return r
}

func originsIfSet(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
