package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/flowmatic/conductor/cmd/conductor/actions"
	"github.com/flowmatic/conductor/cmd/conductor/engine"
	"github.com/flowmatic/conductor/cmd/conductor/graph"
	"github.com/flowmatic/conductor/cmd/conductor/handlers"
	"github.com/flowmatic/conductor/cmd/conductor/registry"
	"github.com/flowmatic/conductor/cmd/conductor/routes"
	"github.com/flowmatic/conductor/cmd/conductor/service"
	"github.com/flowmatic/conductor/cmd/conductor/validation"
	"github.com/flowmatic/conductor/common/bootstrap"
	conmw "github.com/flowmatic/conductor/common/middleware"
	"github.com/flowmatic/conductor/common/models"
	"github.com/flowmatic/conductor/common/ratelimit"
	"github.com/flowmatic/conductor/common/repository"
	"github.com/flowmatic/conductor/common/retry"
	"github.com/flowmatic/conductor/common/server"
)

func main() {
	ctx := context.Background()

	components, err := bootstrap.Setup(ctx, "conductor")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap conductor: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	e := setupEcho()
	if err := wire(ctx, e, components); err != nil {
		components.Logger.Error("failed to wire services", "error", err)
		os.Exit(1)
	}

	startServer(e, components)
}

// wire builds the service graph: repositories over the bootstrap
// components, the engine over the registry, services over both.
func wire(ctx context.Context, e *echo.Echo, components *bootstrap.Components) error {
	cfg := components.Config
	log := components.Logger

	telemetryRepo := repository.NewExecutionRepository(components.DB)
	catalogRepo := repository.NewWorkflowRepository(components.DB)
	actionRepo := repository.NewActionRepository(components.DB)

	reg := registry.New()
	actions.RegisterBuiltins(reg)

	validator := &graph.Validator{StrictReachability: cfg.Catalog.StrictReachability}

	engineOpts := []engine.Option{
		engine.WithLogger(log),
		engine.WithRetryPolicy(retry.FromConfig(cfg.Orchestration.Retry)),
		engine.WithOrchestration(cfg.Orchestration),
		engine.WithParameterValidator(validation.NewSchemaValidator(reg)),
	}
	if components.Redis != nil {
		engineOpts = append(engineOpts,
			engine.WithEventPublisher(service.NewRedisEventPublisher(components.Redis, log)))
	}
	eng := engine.New(reg, telemetryRepo, engineOpts...)

	workflowSvc := service.NewWorkflowService(catalogRepo, validator, log)
	executionSvc := service.NewExecutionService(
		telemetryRepo, catalogRepo, eng, validator,
		components.Queue, components.Redis, components.Cache,
		cfg.Catalog.AllowDraftExecution, log)
	actionSvc := service.NewActionService(reg, actionRepo, cfg.Catalog.ValidateActionSchemasOnStartup, log)

	if cfg.Catalog.AutoRegisterActionsOnStartup {
		if err := actionSvc.LoadFromCatalog(ctx); err != nil {
			return err
		}
	}
	if err := executionSvc.Start(ctx); err != nil {
		return err
	}

	var submitMW []echo.MiddlewareFunc
	if components.Redis != nil {
		limiter := ratelimit.NewRateLimiter(components.Redis.GetUnderlying(), log)
		lookup := func(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error) {
			ver, err := catalogRepo.GetCurrentVersion(ctx, workflowID)
			if err != nil {
				return nil, err
			}
			return ver.Definition, nil
		}
		submitMW = append(submitMW, conmw.SubmitRateLimit(limiter, lookup))
	}

	routes.Register(e,
		handlers.NewWorkflowHandler(workflowSvc),
		handlers.NewExecutionHandler(executionSvc),
		handlers.NewActionHandler(actionSvc),
		handlers.NewHealthHandler(components),
		submitMW...)
	return nil
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	return e
}

func startServer(e *echo.Echo, components *bootstrap.Components) {
	srv := server.New("conductor", components.Config.Service.Port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
