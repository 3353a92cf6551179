package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// CatalogSecretPrefix namespaces the catalog service's secrets, e.g. "catalog/MONGODB_URI".
const CatalogSecretPrefix = "catalog/"

type secretGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsClient resolves catalog settings from Secrets Manager. Found values are cached
// for the life of the process.
type SecretsClient struct {
	client secretGetter
	cache  map[string]string
	mu     sync.RWMutex
}

func NewSecretsClient(cfg sdkaws.Config) *SecretsClient {
	return &SecretsClient{
		client: secretsmanager.NewFromConfig(cfg),
		cache:  make(map[string]string),
	}
}

// CatalogSecretName maps an environment key such as MONGODB_URI onto its secret id.
func CatalogSecretName(envKey string) string {
	return CatalogSecretPrefix + strings.TrimSpace(envKey)
}

// LookupCatalogSecret returns the secret that overrides envKey. found is false when the
// secret does not exist or holds a blank string; only transport and permission failures
// are errors.
func (s *SecretsClient) LookupCatalogSecret(ctx context.Context, envKey string) (value string, found bool, err error) {
	name := CatalogSecretName(envKey)

	s.mu.RLock()
	v, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return v, true, nil
	}

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: sdkaws.String(name)})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read catalog secret %s: %w", name, err)
	}

	v = strings.TrimSpace(sdkaws.ToString(out.SecretString))
	if v == "" {
		return "", false, nil
	}

	s.mu.Lock()
	s.cache[name] = v
	s.mu.Unlock()
	return v, true, nil
}
