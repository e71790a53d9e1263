package config

import "context"

// SecretProvider resolves secret pointers (SSM paths in deployed
// environments, variable names locally) to plaintext values.
type SecretProvider interface {
	// GetParametersBatch returns key -> plaintext for every key it could
	// resolve.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
