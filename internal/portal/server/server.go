package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/helixcare/portal-core/internal/infra"
	"github.com/helixcare/portal-core/internal/infra/auth"
	"github.com/helixcare/portal-core/internal/portal/handler"
)

type PortalServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Интерфейс для проверки токенов (RS256)
	authValidator auth.TokenValidator

	authHandler  *handler.AuthHandler  // /auth/token
	auditHandler *handler.AuditHandler // /v1/audit
}

// NewPortalServer инициализирует HTTP-слой со всеми зависимостями
func NewPortalServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	auditH *handler.AuditHandler,
) *PortalServer {
	s := &PortalServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("portal-api"),
		cfg:           cfg,
		authValidator: validator,
		authHandler:   authH,
		auditHandler:  auditH,
	}

	s.routes()
	return s
}

func (s *PortalServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЕ РОУТЫ (весь аудит только под токеном) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))
		r.Mount("/v1/audit", s.auditHandler.Routes())
	})
}

func (s *PortalServer) Handler() http.Handler {
	return s.router
}
