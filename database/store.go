package database

import (
	"context"
	"fmt"

	"github.com/RemoteKing-Interns/allremotes-sub000/config"
	"github.com/RemoteKing-Interns/allremotes-sub000/repository"
	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

// Catalog is the store selected at startup together with whatever must be closed on
// shutdown.
type Catalog struct {
	Store repository.CatalogStore
	mongo *Mongo
}

// Close releases the backend connection, if any.
func (c *Catalog) Close() error {
	return c.mongo.Close()
}

// OpenCatalog selects the catalog backend named by cfg.Backend. A document backend
// that fails its connectivity probe is replaced by the flat-file store for the life
// of the process. The flat-file snapshot is read once so a corrupted file stops startup.
func OpenCatalog(ctx context.Context, cfg *config.Config, awsCfg *sdkaws.Config) (*Catalog, error) {
	snapshot := repository.NewFileStore(cfg.ProductsJSONPath)

	switch cfg.Backend {
	case config.BackendMongo:
		m, err := ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			zap.L().Warn("MongoDB unavailable, falling back to products file", zap.Error(err))
			break
		}
		store := repository.NewMongoStore(m.DB)
		if err := store.EnsureIndexes(ctx); err != nil {
			zap.L().Warn("Failed to ensure product indexes", zap.Error(err))
		}
		seedFromSnapshot(ctx, store, snapshot)
		return &Catalog{Store: store, mongo: m}, nil

	case config.BackendDynamo:
		if awsCfg == nil {
			zap.L().Warn("AWS configuration unavailable, falling back to products file")
			break
		}
		store := repository.NewDynamoStore(dynamodb.NewFromConfig(*awsCfg), cfg.DynamoTable)
		if err := store.Ping(ctx); err != nil {
			zap.L().Warn("DynamoDB unavailable, falling back to products file", zap.Error(err))
			break
		}
		return &Catalog{Store: store}, nil
	}

	if _, err := snapshot.ListAll(ctx); err != nil {
		return nil, fmt.Errorf("open products file: %w", err)
	}
	return &Catalog{Store: snapshot}, nil
}

// seedFromSnapshot copies the flat-file catalog into an empty collection. Failures are
// logged and never stop startup.
func seedFromSnapshot(ctx context.Context, store *repository.MongoStore, snapshot *repository.FileStore) {
	products, err := snapshot.ListAll(ctx)
	if err != nil {
		zap.L().Warn("Skipping catalog seed: products file unreadable", zap.Error(err))
		return
	}
	n, err := store.SeedFromSnapshot(ctx, products)
	if err != nil {
		zap.L().Warn("Catalog seed finished with errors", zap.Int("inserted", n), zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Info("Seeded catalog collection from products file", zap.Int("inserted", n))
	}
}
