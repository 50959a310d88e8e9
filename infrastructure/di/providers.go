// Package di wires the application together. The providers are shared by the
// generated wire injector and the handwritten fallback container.
package di

import (
	"time"

	commandbus "canvasd/application/commands/bus"
	commandhandlers "canvasd/application/commands/handlers"
	"canvasd/application/ports"
	querybus "canvasd/application/queries/bus"
	queryhandlers "canvasd/application/queries/handlers"
	"canvasd/application/services"
	domaincfg "canvasd/domain/config"
	"canvasd/domain/core/validators"
	"canvasd/infrastructure/capsuleapi"
	"canvasd/infrastructure/config"
	"canvasd/infrastructure/persistence/memory"
	"canvasd/interfaces/http/rest"
	"canvasd/interfaces/http/rest/handlers"
	"canvasd/pkg/auth"
	pkgerrors "canvasd/pkg/errors"
	"canvasd/pkg/extensions"
	"canvasd/pkg/observability"

	"go.uber.org/zap"
)

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Environment == config.EnvProduction {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ProvideDomainConfig returns the domain rule set
func ProvideDomainConfig() *domaincfg.DomainConfig {
	return domaincfg.DefaultDomainConfig()
}

// ProvideCanvasStore creates the in-memory canvas store
func ProvideCanvasStore(logger *zap.Logger) ports.CanvasStore {
	return memory.NewCanvasStore(logger)
}

// ProvideCache creates the in-memory TTL cache
func ProvideCache() ports.Cache {
	return memory.NewCache()
}

// ProvideCapsuleClient creates the capsule platform HTTP client
func ProvideCapsuleClient(cfg *config.Config, cache ports.Cache, logger *zap.Logger) *capsuleapi.Client {
	return capsuleapi.NewClient(capsuleapi.Config{
		BaseURL:      cfg.CapsuleAPI.BaseURL,
		Token:        cfg.CapsuleAPI.Token,
		Timeout:      cfg.CapsuleAPI.Timeout,
		SpecCacheTTL: cfg.CapsuleAPI.SpecCacheTTL,
	}, cache, logger)
}

// ProvideCapsuleService exposes the client as the capsule port
func ProvideCapsuleService(client *capsuleapi.Client) ports.CapsuleService {
	return client
}

// ProvideGenerationService exposes the client as the generation port
func ProvideGenerationService(client *capsuleapi.Client) ports.GenerationService {
	return client
}

// ProvideAssetService exposes the client as the raw-asset port
func ProvideAssetService(client *capsuleapi.Client) ports.AssetService {
	return client
}

// ProvideContextResolver creates the upstream context resolver
func ProvideContextResolver(logger *zap.Logger) *services.ContextResolver {
	return services.NewContextResolver(logger)
}

// ProvideCapsuleFinder creates the connected-capsule finder
func ProvideCapsuleFinder(logger *zap.Logger) *services.CapsuleFinder {
	return services.NewCapsuleFinder(logger)
}

// ProvideActivityLog creates the capped run-activity log
func ProvideActivityLog(dcfg *domaincfg.DomainConfig) *services.ActivityLog {
	return services.NewActivityLog(dcfg.MaxLogEntries)
}

// ProvideNoticeCenter creates the transient notice center
func ProvideNoticeCenter(dcfg *domaincfg.DomainConfig) *services.NoticeCenter {
	return services.NewNoticeCenter(dcfg.NoticeTTL)
}

// ProvideExtensionRegistry creates the run-payload extension registry
func ProvideExtensionRegistry() *extensions.Registry {
	return extensions.NewRegistry()
}

// ProvideMetrics creates the Prometheus collector
func ProvideMetrics() *observability.Collector {
	return observability.NewCollector("canvasd")
}

// ProvideNodeValidator creates the node input validator
func ProvideNodeValidator(dcfg *domaincfg.DomainConfig) *validators.NodeValidator {
	return validators.NewNodeValidator(dcfg)
}

// ProvideRunController creates the preview-run orchestrator
func ProvideRunController(
	store ports.CanvasStore,
	capsules ports.CapsuleService,
	assets ports.AssetService,
	resolver *services.ContextResolver,
	registry *extensions.Registry,
	activity *services.ActivityLog,
	notices *services.NoticeCenter,
	metrics *observability.Collector,
	dcfg *domaincfg.DomainConfig,
	logger *zap.Logger,
) *services.RunController {
	return services.NewRunController(store, capsules, assets, resolver, registry, activity, notices, metrics, dcfg, logger)
}

// ProvideGenerationPoller creates the generation-run poller
func ProvideGenerationPoller(
	store ports.CanvasStore,
	generations ports.GenerationService,
	activity *services.ActivityLog,
	notices *services.NoticeCenter,
	metrics *observability.Collector,
	dcfg *domaincfg.DomainConfig,
	logger *zap.Logger,
) *services.GenerationPoller {
	return services.NewGenerationPoller(store, generations, activity, notices, metrics, dcfg, logger)
}

// ProvideCommandBus creates the command bus with every handler registered
func ProvideCommandBus(
	store ports.CanvasStore,
	validator *validators.NodeValidator,
	dcfg *domaincfg.DomainConfig,
	logger *zap.Logger,
) (*commandbus.CommandBus, error) {
	commandBus := commandbus.NewCommandBus()
	handler := commandhandlers.NewCanvasCommandHandler(store, validator, dcfg, logger)
	if err := handler.Register(commandBus); err != nil {
		return nil, err
	}
	return commandBus, nil
}

// ProvideQueryBus creates the query bus with every handler registered
func ProvideQueryBus(
	store ports.CanvasStore,
	resolver *services.ContextResolver,
	finder *services.CapsuleFinder,
	logger *zap.Logger,
) (*querybus.QueryBus, error) {
	queryBus := querybus.NewQueryBus()
	handler := queryhandlers.NewCanvasQueryHandler(store, resolver, finder, logger)
	if err := handler.Register(queryBus); err != nil {
		return nil, err
	}
	return queryBus, nil
}

// ProvideErrorHandler creates the HTTP error responder
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *pkgerrors.ErrorHandler {
	return pkgerrors.NewErrorHandler(logger, cfg.IsDevelopment())
}

// ProvideJWTValidator creates the token validator; nil when auth is disabled
func ProvideJWTValidator(cfg *config.Config) (*auth.JWTValidator, error) {
	if !cfg.Auth.Enabled {
		return nil, nil
	}
	return auth.NewJWTValidator(auth.JWTConfig{
		SecretKey: cfg.Auth.JWTSecret,
		Issuer:    cfg.Auth.JWTIssuer,
	})
}

// ProvideRunLimiter throttles run starts per caller
func ProvideRunLimiter() auth.RateLimiter {
	return auth.NewTokenBucketLimiter(10, 6*time.Second) // ~10/min
}

// ProvideCanvasHandler creates the canvas REST handler
func ProvideCanvasHandler(
	commandBus *commandbus.CommandBus,
	queryBus *querybus.QueryBus,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *handlers.CanvasHandler {
	return handlers.NewCanvasHandler(commandBus, queryBus, errorHandler, logger)
}

// ProvideRunHandler creates the run REST handler
func ProvideRunHandler(
	runs *services.RunController,
	generation *services.GenerationPoller,
	limiter auth.RateLimiter,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *handlers.RunHandler {
	return handlers.NewRunHandler(runs, generation, limiter, errorHandler, logger)
}

// ProvideActivityHandler creates the activity REST handler
func ProvideActivityHandler(
	activity *services.ActivityLog,
	notices *services.NoticeCenter,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *handlers.ActivityHandler {
	return handlers.NewActivityHandler(activity, notices, errorHandler, logger)
}

// ProvideRouter creates the configured HTTP router
func ProvideRouter(
	cfg *config.Config,
	canvasHandler *handlers.CanvasHandler,
	runHandler *handlers.RunHandler,
	activityHandler *handlers.ActivityHandler,
	metrics *observability.Collector,
	jwtValidator *auth.JWTValidator,
	logger *zap.Logger,
) *rest.Router {
	return rest.NewRouter(cfg, canvasHandler, runHandler, activityHandler, metrics, jwtValidator, logger)
}
