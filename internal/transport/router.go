package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/opero/lifeline/internal/audit"
	"github.com/opero/lifeline/internal/config"
	"github.com/opero/lifeline/internal/definition"
	"github.com/opero/lifeline/internal/observability"
	"github.com/opero/lifeline/internal/workflow"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Logger       *zap.Logger
	Authenticate func(http.Handler) http.Handler
	Registry     *definition.Registry
	Engine       *workflow.Engine
	Idempotency  workflow.IdempotencyStore
	Annotator    *audit.Annotator
	Metrics      *observability.Metrics
	Gatherer     prometheus.Gatherer
	Readiness    observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to all routes including health.
	r.Use(Recovery(deps.Logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes.
	r.Get("/v1/health", observability.HandleHealth())
	r.Get("/v1/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled && deps.Gatherer != nil {
		r.Method(http.MethodGet, deps.Config.Observability.Metrics.Path,
			observability.Handler(deps.Gatherer))
	}

	// Authenticated routes.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContext(deps.Config.Identity.ClaimPaths))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(deps.Logger))
		if deps.Metrics != nil {
			r.Use(deps.Metrics.HTTPMiddleware)
		}

		r.Get("/v1/entities", handleEntityList(deps.Registry))
		r.Get("/v1/entities/{entity}", handleEntityGet(deps.Registry))

		r.Post("/v1/{entity}", handleDocumentCreate(deps.Engine))
		r.Get("/v1/{entity}", handleDocumentList(deps.Engine))
		r.Get("/v1/{entity}/{documentId}", handleDocumentGet(deps.Engine))
		r.Delete("/v1/{entity}/{documentId}", handleDocumentDelete(deps.Engine))

		r.Get("/v1/{entity}/{documentId}/transitions", handleTransitionList(deps.Engine))
		r.Post("/v1/{entity}/{documentId}/transitions/{transition}",
			handleTransitionExecute(TransitionHandlerDeps{
				Engine:      deps.Engine,
				Idempotency: deps.Idempotency,
				IdemTTL:     deps.Config.Idempotency.DefaultTTL,
				Annotator:   deps.Annotator,
				Metrics:     deps.Metrics,
			}))
		r.Get("/v1/{entity}/{documentId}/history", handleHistoryGet(deps.Engine, deps.Annotator))
	})

	return r
}
