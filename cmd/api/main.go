package main

import (
	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/internal/container"
	"github.com/pageza/mealsense/backend/internal/server"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	app := fx.New(
		container.Module,
		server.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
	app.Run()
}
