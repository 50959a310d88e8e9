//go:build !wireinject
// +build !wireinject

package di

import (
	"context"

	"canvasd/infrastructure/config"
)

// InitializeContainer builds the dependency graph by hand, mirroring the
// wire injector declared in wire.go.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}

	dcfg := ProvideDomainConfig()
	store := ProvideCanvasStore(logger)
	cache := ProvideCache()

	client := ProvideCapsuleClient(cfg, cache, logger)
	capsules := ProvideCapsuleService(client)
	generations := ProvideGenerationService(client)
	assets := ProvideAssetService(client)

	resolver := ProvideContextResolver(logger)
	finder := ProvideCapsuleFinder(logger)
	activity := ProvideActivityLog(dcfg)
	notices := ProvideNoticeCenter(dcfg)
	registry := ProvideExtensionRegistry()
	metrics := ProvideMetrics()
	validator := ProvideNodeValidator(dcfg)

	runController := ProvideRunController(store, capsules, assets, resolver, registry, activity, notices, metrics, dcfg, logger)
	generationPoller := ProvideGenerationPoller(store, generations, activity, notices, metrics, dcfg, logger)

	commandBus, err := ProvideCommandBus(store, validator, dcfg, logger)
	if err != nil {
		return nil, err
	}
	queryBus, err := ProvideQueryBus(store, resolver, finder, logger)
	if err != nil {
		return nil, err
	}

	errorHandler := ProvideErrorHandler(cfg, logger)
	jwtValidator, err := ProvideJWTValidator(cfg)
	if err != nil {
		return nil, err
	}
	runLimiter := ProvideRunLimiter()

	canvasHandler := ProvideCanvasHandler(commandBus, queryBus, errorHandler, logger)
	runHandler := ProvideRunHandler(runController, generationPoller, runLimiter, errorHandler, logger)
	activityHandler := ProvideActivityHandler(activity, notices, errorHandler, logger)
	router := ProvideRouter(cfg, canvasHandler, runHandler, activityHandler, metrics, jwtValidator, logger)

	return &Container{
		Config:           cfg,
		Logger:           logger,
		DomainConfig:     dcfg,
		CanvasStore:      store,
		Cache:            cache,
		CapsuleClient:    client,
		Capsules:         capsules,
		Generations:      generations,
		Assets:           assets,
		Resolver:         resolver,
		Finder:           finder,
		Activity:         activity,
		Notices:          notices,
		Extensions:       registry,
		Metrics:          metrics,
		RunController:    runController,
		GenerationPoller: generationPoller,
		CommandBus:       commandBus,
		QueryBus:         queryBus,
		ErrorHandler:     errorHandler,
		JWTValidator:     jwtValidator,
		RunLimiter:       runLimiter,
		CanvasHandler:    canvasHandler,
		RunHandler:       runHandler,
		ActivityHandler:  activityHandler,
		Router:           router,
	}, nil
}
