package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"pharmacy-intake-bot/internal/domain/ports/repository"
	red "pharmacy-intake-bot/internal/infra/redis"
	"pharmacy-intake-bot/internal/usecase"
)

// turnLimiter is the slice of the rate limiter the server needs.
type turnLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Server is the HTTP front-end of the intake dialogue. It owns session
// creation, per-session turn serialization and rate limiting; the
// conversation engine only ever sees one message at a time.
type Server struct {
	sessions repository.SessionRepository
	orders   repository.OrderRepository // nil when order persistence is disabled
	conv     usecase.ConversationUseCase
	locker   red.Locker
	limiter  turnLimiter

	ratePerMinute int
	apiKey        string
	log           *zerolog.Logger
}

func NewServer(
	sessions repository.SessionRepository,
	orders repository.OrderRepository,
	conv usecase.ConversationUseCase,
	locker red.Locker,
	limiter turnLimiter,
	ratePerMinute int,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	if ratePerMinute <= 0 {
		ratePerMinute = 30
	}
	return &Server{
		sessions:      sessions,
		orders:        orders,
		conv:          conv,
		locker:        locker,
		limiter:       limiter,
		ratePerMinute: ratePerMinute,
		apiKey:        apiKey,
		log:           logger,
	}
}

// Router builds the chi mux with all public and back-office routes.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Post("/start", s.handleStart)
	r.Post("/conversation", s.handleConversation)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/api/v1/orders", s.handleListOrders)
	})

	return r
}

// authMiddleware is simple Bearer token authentication for the
// back-office routes, same scheme as the admin API it replaces.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("back-office API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "bearer") {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		if tokenParts[1] != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
