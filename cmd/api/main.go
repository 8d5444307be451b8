package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/jun/gophdrive/explorer/internal/app"
	"github.com/jun/gophdrive/explorer/internal/config"
	"github.com/jun/gophdrive/explorer/internal/logging"
)

func main() {
	cfg, err := config.Load(os.Getenv("EXPLORER_CONFIG"))
	if err != nil {
		logging.L().Fatal("failed to load config", zap.Error(err))
	}
	application, err := app.NewApp(context.Background(), cfg)
	if err != nil {
		logging.L().Fatal("failed to start", zap.Error(err))
	}
	defer logging.Sync()
	lambda.Start(application.HandleRequest)
}
