package di

import (
	commandbus "canvasd/application/commands/bus"
	"canvasd/application/ports"
	querybus "canvasd/application/queries/bus"
	"canvasd/application/services"
	domaincfg "canvasd/domain/config"
	"canvasd/infrastructure/capsuleapi"
	"canvasd/infrastructure/config"
	"canvasd/interfaces/http/rest"
	"canvasd/interfaces/http/rest/handlers"
	"canvasd/pkg/auth"
	pkgerrors "canvasd/pkg/errors"
	"canvasd/pkg/extensions"
	"canvasd/pkg/observability"

	"go.uber.org/zap"
)

// Container holds every constructed dependency
type Container struct {
	Config       *config.Config
	Logger       *zap.Logger
	DomainConfig *domaincfg.DomainConfig

	CanvasStore ports.CanvasStore
	Cache       ports.Cache

	CapsuleClient *capsuleapi.Client
	Capsules      ports.CapsuleService
	Generations   ports.GenerationService
	Assets        ports.AssetService

	Resolver   *services.ContextResolver
	Finder     *services.CapsuleFinder
	Activity   *services.ActivityLog
	Notices    *services.NoticeCenter
	Extensions *extensions.Registry
	Metrics    *observability.Collector

	RunController    *services.RunController
	GenerationPoller *services.GenerationPoller

	CommandBus *commandbus.CommandBus
	QueryBus   *querybus.QueryBus

	ErrorHandler *pkgerrors.ErrorHandler
	JWTValidator *auth.JWTValidator
	RunLimiter   auth.RateLimiter

	CanvasHandler   *handlers.CanvasHandler
	RunHandler      *handlers.RunHandler
	ActivityHandler *handlers.ActivityHandler
	Router          *rest.Router
}

// Shutdown releases background resources held by long-lived services.
func (c *Container) Shutdown() {
	if c.RunController != nil {
		c.RunController.Close()
	}
	if c.GenerationPoller != nil {
		c.GenerationPoller.Stop()
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
}
