package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	aws_pkg "github.com/RemoteKing-Interns/allremotes-sub000/pkg/aws"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendMongo  = "mongo"
	BackendDynamo = "dynamodb"
)

// DefaultMaxUploadBytes is the multipart body ceiling (6 MiB).
const DefaultMaxUploadBytes int64 = 6 * 1024 * 1024

// Config holds all environment variables for the catalog service. It is resolved once
// at startup and passed explicitly to the store factory and the import service.
type Config struct {
	Port    string `validate:"required,numeric"`
	AppEnv  string
	Backend string `validate:"oneof=file mongo dynamodb"`

	ProductsJSONPath string `validate:"required"`
	UploadDir        string `validate:"required"`
	MaxUploadBytes   int64  `validate:"gt=0"`
	TemplatePath     string

	MongoURI     string `validate:"required_if=Backend mongo"`
	MongoDB      string `validate:"required_if=Backend mongo"`
	DynamoTable  string `validate:"required_if=Backend dynamodb"`
	RedisURL     string
	AWSRegion    string
	AWSEndpoint  string
	S3Bucket     string
	S3Prefix     string
	EventsTopic  string
	CloudWatch   bool
	LogGroup     string
	MetricsSpace string

	AdminJWTSecret string
	AllowedOrigins []string
	RequestTimeout time.Duration `validate:"gt=0"`
	UploadLockWait time.Duration `validate:"gt=0"`
}

// Load reads an optional .env file, then the process environment, applies Secrets
// Manager overrides when AWS_USE_SECRETS=true, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := FromEnv(os.Getenv)
	if err != nil {
		return nil, err
	}

	if os.Getenv("AWS_USE_SECRETS") == "true" {
		ctx := context.Background()
		awsCfg, err := aws_pkg.LoadAWSConfig(ctx, cfg.AWSRegion, cfg.AWSEndpoint)
		if err != nil {
			return nil, fmt.Errorf("load AWS config for secrets: %w", err)
		}
		if err := cfg.ApplySecrets(ctx, aws_pkg.NewSecretsClient(awsCfg)); err != nil {
			return nil, err
		}
		// a URI that only exists in Secrets Manager still selects mongo
		if cfg.Backend, err = ResolveBackend(os.Getenv("STORE_BACKEND"), cfg.MongoURI, os.Getenv("MONGODB_DISABLED") == "1"); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from getenv without validating it.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Port:             get("PORT", "3001"),
		AppEnv:           get("APP_ENV", "development"),
		ProductsJSONPath: get("PRODUCTS_JSON_PATH", "products.json"),
		UploadDir:        get("UPLOAD_DIR", "uploads"),
		TemplatePath:     get("CSV_TEMPLATE_PATH", "public/products-template.csv"),
		MongoURI:         get("MONGODB_URI", ""),
		MongoDB:          get("MONGODB_DB", "allremotes"),
		DynamoTable:      get("DDB_TABLE_PRODUCTS", "CatalogProducts"),
		RedisURL:         get("REDIS_URL", ""),
		AWSRegion:        get("AWS_REGION", "us-east-1"),
		AWSEndpoint:      get("AWS_ENDPOINT", ""),
		S3Bucket:         get("AWS_S3_BUCKET", ""),
		S3Prefix:         get("AWS_S3_PREFIX", "catalog-uploads/"),
		EventsTopic:      get("CATALOG_EVENTS_TOPIC_ARN", ""),
		CloudWatch:       get("CLOUDWATCH_ENABLED", "") == "true",
		LogGroup:         get("CLOUDWATCH_LOG_GROUP", "/catalog/services"),
		MetricsSpace:     get("CLOUDWATCH_NAMESPACE", "Catalog"),
		AdminJWTSecret:   get("ADMIN_JWT_SECRET", ""),
		AllowedOrigins:   splitList(get("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001")),
	}

	var err error
	if cfg.MaxUploadBytes, err = parseInt(get("MAX_UPLOAD_BYTES", ""), DefaultMaxUploadBytes); err != nil {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES: %w", err)
	}
	if cfg.RequestTimeout, err = parseDuration(get("REQUEST_TIMEOUT", ""), 60*time.Second); err != nil {
		return nil, fmt.Errorf("REQUEST_TIMEOUT: %w", err)
	}
	if cfg.UploadLockWait, err = parseDuration(get("UPLOAD_LOCK_WAIT", ""), 30*time.Second); err != nil {
		return nil, fmt.Errorf("UPLOAD_LOCK_WAIT: %w", err)
	}

	backend, err := ResolveBackend(get("STORE_BACKEND", ""), cfg.MongoURI, get("MONGODB_DISABLED", "") == "1")
	if err != nil {
		return nil, err
	}
	cfg.Backend = backend
	return cfg, nil
}

// ResolveBackend picks the catalog backend. "collection" is accepted as an alias for
// mongo. Without an explicit choice mongo is used when a URI is configured and not disabled.
func ResolveBackend(explicit, mongoURI string, mongoDisabled bool) (string, error) {
	switch strings.ToLower(explicit) {
	case "":
		if mongoURI != "" && !mongoDisabled {
			return BackendMongo, nil
		}
		return BackendFile, nil
	case BackendFile:
		return BackendFile, nil
	case BackendMongo, "collection", "mongodb":
		if mongoDisabled {
			return BackendFile, nil
		}
		return BackendMongo, nil
	case BackendDynamo, "dynamo":
		return BackendDynamo, nil
	default:
		return "", fmt.Errorf("unknown STORE_BACKEND %q", explicit)
	}
}

var validate = validator.New()

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// SecretLookup resolves the Secrets Manager override of an environment key.
type SecretLookup interface {
	LookupCatalogSecret(ctx context.Context, envKey string) (string, bool, error)
}

// ApplySecrets overrides MONGODB_URI and ADMIN_JWT_SECRET with their catalog secrets.
// Missing secrets keep the environment value.
func (c *Config) ApplySecrets(ctx context.Context, secrets SecretLookup) error {
	targets := []struct {
		key string
		dst *string
	}{
		{"MONGODB_URI", &c.MongoURI},
		{"ADMIN_JWT_SECRET", &c.AdminJWTSecret},
	}
	for _, t := range targets {
		v, found, err := secrets.LookupCatalogSecret(ctx, t.key)
		if err != nil {
			return fmt.Errorf("apply secret %s: %w", t.key, err)
		}
		if found {
			*t.dst = v
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt(s string, def int64) (int64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// parseDuration accepts Go durations ("30s") or a bare number of seconds.
func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}
