package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/listhub/payment-service/internal/adapters/secrets"
	"github.com/listhub/payment-service/internal/config"
	"github.com/listhub/payment-service/internal/domain/ports"
)

// initSecretManager selects the secrets backend from SECRETS_BACKEND:
// "aws" for AWS Secrets Manager, anything else for environment variables.
func initSecretManager(ctx context.Context, logger *zap.Logger) secrets.Manager {
	backend := os.Getenv("SECRETS_BACKEND")

	if backend == "aws" {
		awsCfg := secrets.DefaultAWSSecretsManagerConfig(os.Getenv("AWS_REGION"))
		awsCfg.Profile = os.Getenv("AWS_PROFILE")
		awsCfg.Endpoint = os.Getenv("AWS_SECRETS_ENDPOINT")

		mgr, err := secrets.NewAWSSecretsManager(ctx, awsCfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize AWS Secrets Manager", zap.Error(err))
		}
		return mgr
	}

	logger.Info("Using environment secrets backend")
	return secrets.NewEnvSecretManager(logger)
}

// resolveGatewayConfig builds the immutable gateway config, pulling API keys
// and signature from the secrets backend when a secret id is configured.
func resolveGatewayConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) ports.GatewayConfig {
	gwCfg := ports.GatewayConfig{
		APIKeySandbox: cfg.Gateway.APIKeySandbox,
		APIKeyLive:    cfg.Gateway.APIKeyLive,
		Signature:     cfg.Gateway.Signature,
		Sandbox:       cfg.Gateway.Sandbox,
		Currency:      cfg.Gateway.Currency,
		Language:      cfg.Gateway.Language,
	}

	if cfg.Gateway.SecretID == "" {
		return gwCfg
	}

	mgr := initSecretManager(ctx, logger)
	creds, err := secrets.ResolveGatewayCredentials(ctx, mgr, cfg.Gateway.SecretID)
	if err != nil {
		logger.Fatal("Failed to resolve gateway credentials",
			zap.String("secret_id", cfg.Gateway.SecretID),
			zap.Error(err),
		)
	}

	if creds.APIKeySandbox != "" {
		gwCfg.APIKeySandbox = creds.APIKeySandbox
	}
	if creds.APIKeyLive != "" {
		gwCfg.APIKeyLive = creds.APIKeyLive
	}
	if creds.Signature != "" {
		gwCfg.Signature = creds.Signature
	}

	return gwCfg
}
