package events

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

const secretPrefix = "secretsmanager:"

// SecretsAPI is the subset of the Secrets Manager client used to resolve
// topic access keys.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

func newSecretsClient(cfg aws.Config) SecretsAPI {
	return secretsmanager.NewFromConfig(cfg)
}

// IsSecretRef reports whether v names a Secrets Manager secret.
func IsSecretRef(v string) bool {
	return strings.HasPrefix(v, secretPrefix)
}

// SecretResolver resolves "secretsmanager:<secret-id>" references, caching
// each secret for the life of the process.
type SecretResolver struct {
	client SecretsAPI

	mu    sync.Mutex
	cache map[string]string
}

// NewSecretResolver creates a SecretResolver.
func NewSecretResolver(client SecretsAPI) *SecretResolver {
	return &SecretResolver{client: client, cache: map[string]string{}}
}

// Resolve returns the secret string for ref. Values without the secret
// prefix are returned unchanged.
func (s *SecretResolver) Resolve(ctx context.Context, ref string) (string, error) {
	if !IsSecretRef(ref) {
		return ref, nil
	}
	id := strings.TrimPrefix(ref, secretPrefix)

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.cache[id]; ok {
		return v, nil
	}
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		return "", fmt.Errorf("reading secret %q: %w", id, err)
	}
	v := aws.ToString(out.SecretString)
	s.cache[id] = v
	return v, nil
}
