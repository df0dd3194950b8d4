package bootstrap

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/flowmatic/conductor/common/cache"
	"github.com/flowmatic/conductor/common/config"
	"github.com/flowmatic/conductor/common/db"
	"github.com/flowmatic/conductor/common/logger"
	"github.com/flowmatic/conductor/common/queue"
	rediswrap "github.com/flowmatic/conductor/common/redis"
	"github.com/flowmatic/conductor/common/telemetry"
)

// Setup initializes all service components.
// This is the main entry point for the conductor service.
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(
			components.Config.Service.LogLevel,
			components.Config.Service.LogFormat,
		)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", components.Config.Service.Environment,
	)

	// 3. Database
	if !options.skipDB {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, components.Config, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		components.addCleanup(func() error {
			components.DB.Close()
			return nil
		})
	}

	// 4. Redis
	if !options.skipRedis && components.Config.Redis.Enabled {
		raw := goredis.NewClient(&goredis.Options{
			Addr: components.Config.Redis.Addr,
			DB:   components.Config.Redis.DB,
		})
		if err := raw.Ping(ctx).Err(); err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		components.Redis = rediswrap.NewClient(raw, components.Logger)

		components.addCleanup(func() error {
			return components.Redis.Close()
		})
	}

	// 5. Dispatch queue
	if !options.skipQueue {
		components.Queue = queue.NewMemoryQueue(components.Logger)

		components.addCleanup(func() error {
			return components.Queue.Close()
		})
	}

	// 6. Cache
	if !options.skipCache {
		components.Cache = cache.NewMemoryCache(components.Logger)

		components.addCleanup(func() error {
			return components.Cache.Close()
		})
	}

	// 7. Telemetry
	if !options.skipTelemetry && components.Config.Telemetry.EnablePprof {
		components.Telemetry = telemetry.New(
			components.Config.Telemetry.PprofPort,
			components.Logger,
		)

		if err := components.Telemetry.Start(ctx); err != nil {
			components.Logger.Warn("failed to start telemetry", "error", err)
		}
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"redis", components.Redis != nil,
		"queue", components.Queue != nil,
		"cache", components.Cache != nil,
	)

	return components, nil
}

// MustSetup is like Setup but panics on error
func MustSetup(ctx context.Context, serviceName string, opts ...Option) *Components {
	components, err := Setup(ctx, serviceName, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to setup service %s: %v", serviceName, err))
	}
	return components
}
