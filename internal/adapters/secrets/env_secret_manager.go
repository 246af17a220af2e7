package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// envSecretManager implements Manager over environment variables.
// WARNING: development only; use AWS Secrets Manager in production.
// The secret path "payments/netopia" maps to PAYMENTS_NETOPIA.
type envSecretManager struct {
	logger *zap.Logger
}

// NewEnvSecretManager creates a Manager backed by environment variables
func NewEnvSecretManager(logger *zap.Logger) Manager {
	return &envSecretManager{logger: logger}
}

func (m *envSecretManager) GetSecret(ctx context.Context, path string) (*Secret, error) {
	key := envKey(path)

	m.logger.Debug("Reading secret from environment",
		zap.String("path", path),
		zap.String("env_key", key),
	)

	value := os.Getenv(key)
	if value == "" {
		return nil, fmt.Errorf("secret not found: %s (env %s)", path, key)
	}

	return &Secret{
		Value:   value,
		Version: "v1",
	}, nil
}

func envKey(path string) string {
	key := strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(path)
	return strings.ToUpper(key)
}
