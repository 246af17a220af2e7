package secrets

import (
	"context"
	"encoding/json"
	"fmt"
)

// GatewayCredentials is the JSON shape of the Netopia secret entry.
type GatewayCredentials struct {
	APIKeySandbox string `json:"api_key_sandbox"`
	APIKeyLive    string `json:"api_key_live"`
	Signature     string `json:"signature"`
}

// ResolveGatewayCredentials fetches and decodes the gateway credential
// secret. The secret value must be a JSON document matching
// GatewayCredentials.
func ResolveGatewayCredentials(ctx context.Context, mgr Manager, secretID string) (*GatewayCredentials, error) {
	secret, err := mgr.GetSecret(ctx, secretID)
	if err != nil {
		return nil, err
	}

	var creds GatewayCredentials
	if err := json.Unmarshal([]byte(secret.Value), &creds); err != nil {
		return nil, fmt.Errorf("failed to decode gateway credentials %s: %w", secretID, err)
	}

	return &creds, nil
}
