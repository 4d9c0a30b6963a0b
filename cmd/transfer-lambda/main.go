// Package main is the AWS Lambda entry point for zoom-transfer.
//
// The function sits behind an HTTP API (payload format 2.0). Configuration
// comes from the environment; secrets missing from it are read from SSM
// Parameter Store under SSM_PREFIX at cold start.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"

	"github.com/curtbushko/zoom-transfer/internal/app"
	"github.com/curtbushko/zoom-transfer/internal/config"
	"github.com/curtbushko/zoom-transfer/internal/logging"
	"github.com/curtbushko/zoom-transfer/internal/secrets"
)

func main() {
	cfg, err := config.LoadUnvalidated(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fatal("Failed to load configuration: %v", err)
	}
	if err := logging.InitializeLogging(cfg.Logging); err != nil {
		fatal("Failed to initialize logging: %v", err)
	}

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		fatal("Failed to load AWS config: %v", err)
	}

	handler, err := buildHandler(ctx, cfg, awsCfg, ssm.NewFromConfig(awsCfg))
	if err != nil {
		fatal("Failed to initialize transfer handler: %v", err)
	}
	logging.Info("Transfer handler initialized")

	adapter := httpadapter.NewV2(handler)
	lambda.Start(adapter.ProxyWithContext)
}

// buildHandler resolves secrets, validates cfg and wires the application
func buildHandler(ctx context.Context, cfg *config.Config, awsCfg aws.Config, params secrets.ParameterAPI) (http.Handler, error) {
	rotation, err := app.ResolveSecrets(ctx, cfg, params)
	if err != nil {
		return nil, err
	}

	application, err := app.New(ctx, cfg, app.Options{
		AWSConfig:          &awsCfg,
		OnBoxTokenRotation: rotation,
	})
	if err != nil {
		return nil, err
	}
	return application.Handler, nil
}

func fatal(format string, args ...interface{}) {
	logging.Error(format, args...)
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
