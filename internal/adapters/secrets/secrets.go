package secrets

import "context"

// Secret represents a secret value with metadata
type Secret struct {
	Value    string
	Version  string
	Metadata map[string]string
}

// Manager retrieves secrets from a backend (AWS Secrets Manager in
// production, environment variables in development).
type Manager interface {
	GetSecret(ctx context.Context, path string) (*Secret, error)
}
