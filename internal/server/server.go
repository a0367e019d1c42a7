package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"github.com/xela07ax/spaceai-agentmesh/internal/infra/auth"
	"github.com/xela07ax/spaceai-agentmesh/internal/interaction"
	"github.com/xela07ax/spaceai-agentmesh/internal/orchestrator"
	"go.uber.org/zap"
)

// Описываем, что нам нужно от сервисов ядра

type Orchestrator interface {
	Orchestrate(ctx context.Context, payload map[string]interface{}) domain.OrchestrationResult
	Plan(ctx context.Context, payload map[string]interface{}) (*domain.OrchestrationPlan, error)
	CapabilitiesDigest(ctx context.Context) (string, error)
	CountDigest(ctx context.Context) (string, error)
}

type Catalog interface {
	Descriptors(ctx context.Context) ([]domain.AgentDescriptor, error)
}

type Inspector interface {
	Assess(ctx context.Context, agentID, query, requesting string) domain.CapabilityAssessment
	TeamMatrix(ctx context.Context) domain.TeamCapabilityMatrix
	SuggestAllocation(ctx context.Context, task string) domain.TaskAllocationPlan
}

type Collaborator interface {
	Request(ctx context.Context, from, to string, req domain.CollaborationRequest) domain.CollaborationResponse
}

type Journal interface {
	SessionHistory(ctx context.Context, sessionID string) (*domain.ChatSession, error)
	RecentSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error)
	SearchInteractions(ctx context.Context, q interaction.SearchQuery) []*domain.Interaction
	Stats(ctx context.Context, from, to time.Time) domain.InteractionStats
}

type KillSwitch interface {
	Block(ctx context.Context, agentID string) error
	Unblock(ctx context.Context, agentID string) error
	Blocked() []string
}

type GrantAdmin interface {
	Grants() []domain.Grant
	Put(ctx context.Context, g domain.Grant) error
}

type AuditReader interface {
	Entries() []domain.AuditEntry
}

// Deps: сервисы, которые обслуживает API. KillSwitch, Grants и Audit опциональны:
// без них соответствующие маршруты не регистрируются.
type Deps struct {
	Orchestrator Orchestrator
	Catalog      Catalog
	Inspector    Inspector
	Collab       Collaborator
	Journal      Journal
	KillSwitch   KillSwitch
	Grants       GrantAdmin
	Audit        AuditReader
}

// Server: HTTP API оркестратора.
type Server struct {
	router   *chi.Mux
	logger   *zap.Logger
	deps     Deps
	metrics  *orchestrator.Metrics
	gatherer prometheus.Gatherer

	// Интерфейс для проверки токенов (RS256). nil, локальный режим без аутентификации
	authValidator auth.TokenValidator
}

// New собирает роутер. gatherer nil, /metrics отдается отдельным сервером.
func New(deps Deps, validator auth.TokenValidator, metrics *orchestrator.Metrics, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if metrics == nil {
		metrics = orchestrator.NewMetrics(nil)
	}
	s := &Server{
		router:        chi.NewRouter(),
		logger:        logger.Named("server"),
		deps:          deps,
		metrics:       metrics,
		gatherer:      gatherer,
		authValidator: validator,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TracingMiddleware)
	r.Use(accessLog(s.logger, s.metrics.HTTPDuration))
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		if s.gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		}
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Оркестрация
		r.With(requireScope(scopeOrchestrate)).Post("/v1/orchestrate", s.orchestrate)
		r.With(requireScope(scopeOrchestrate)).Post("/v1/plan", s.plan)

		// Каталог и возможности агентов
		r.Route("/v1/agents", func(r chi.Router) {
			r.Get("/", s.listAgents)
			r.Get("/count", s.countAgents)
			r.Get("/digest", s.digest)
			if s.deps.KillSwitch != nil {
				r.Get("/blocked", s.listBlocked)
			}
			r.Route("/{id}", func(r chi.Router) {
				r.Post("/assess", s.assess)
				r.Post("/collaborate", s.collaborate)
				if s.deps.KillSwitch != nil {
					r.With(requireScope(scopeAdmin)).Post("/block", s.block)     // Мгновенная блокировка (Kill-switch)
					r.With(requireScope(scopeAdmin)).Post("/unblock", s.unblock) // Разблокировка
				}
			})
		})
		r.Get("/v1/team/matrix", s.teamMatrix)
		r.Get("/v1/team/allocation", s.allocation)

		// Журнал взаимодействий
		r.Get("/v1/sessions", s.recentSessions)
		r.Get("/v1/sessions/{id}", s.session)
		r.Get("/v1/interactions/search", s.search)
		r.Get("/v1/stats", s.stats)

		// Мост данных: allow-list и аудит доступа
		r.Group(func(r chi.Router) {
			r.Use(requireScope(scopeAdmin))
			if s.deps.Grants != nil {
				r.Get("/v1/bridge/grants", s.listGrants)
				r.Put("/v1/bridge/grants", s.putGrant)
			}
			if s.deps.Audit != nil {
				r.Get("/v1/audit", s.auditLog)
			}
		})
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
