//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"canvasd/infrastructure/config"

	"github.com/google/wire"
)

// SuperSet is the complete provider set for the application
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideDomainConfig,
	ProvideCanvasStore,
	ProvideCache,
	ProvideCapsuleClient,
	ProvideCapsuleService,
	ProvideGenerationService,
	ProvideAssetService,
	ProvideContextResolver,
	ProvideCapsuleFinder,
	ProvideActivityLog,
	ProvideNoticeCenter,
	ProvideExtensionRegistry,
	ProvideMetrics,
	ProvideNodeValidator,
	ProvideRunController,
	ProvideGenerationPoller,
	ProvideCommandBus,
	ProvideQueryBus,
	ProvideErrorHandler,
	ProvideJWTValidator,
	ProvideRunLimiter,
	ProvideCanvasHandler,
	ProvideRunHandler,
	ProvideActivityHandler,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates the full dependency graph
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil
}
