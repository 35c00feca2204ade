package container

import (
	"context"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/config"
	"github.com/pageza/mealsense/backend/internal/logger"
	"github.com/pageza/mealsense/backend/internal/metrics"
	"github.com/pageza/mealsense/backend/internal/service"
)

// Module provides the configuration, logger and container to an fx application.
// MEALSENSE_CONFIG_FILE selects an explicit config file.
var Module = fx.Options(
	ConfigModule,
	LoggerModule,
	fx.Provide(
		provideContainer,
		func(c *Container) *metrics.Collector { return c.Metrics },
		func(c *Container) *service.RecommendationService { return c.Recommendations },
		func(c *Container) *service.NutritionAnalyzer { return c.Nutrition },
		func(c *Container) service.QueryEngine { return c.RAG },
	),
)

// ConfigModule provides configuration
var ConfigModule = fx.Provide(
	func() (*config.Config, error) {
		return config.Load(os.Getenv("MEALSENSE_CONFIG_FILE"))
	},
)

// LoggerModule provides logging
var LoggerModule = fx.Provide(
	func(cfg *config.Config) (*zap.Logger, error) {
		return logger.New(logger.Config{
			Level:       cfg.Log.Level,
			Format:      cfg.Log.Format,
			Development: cfg.IsDevelopment(),
		})
	},
)

func provideContainer(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*Container, error) {
	c, err := New(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			log.Info("Closing container")
			_ = log.Sync()
			return c.Close()
		},
	})
	return c, nil
}
