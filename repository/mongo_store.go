package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RemoteKing-Interns/allremotes-sub000/config"
	"github.com/RemoteKing-Interns/allremotes-sub000/importer"
	"github.com/RemoteKing-Interns/allremotes-sub000/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ProductsCollection is the collection holding catalog records.
const ProductsCollection = "products"

// MongoStore persists each upsert directly against a collection with unique indexes
// on id and skuKey.
type MongoStore struct {
	coll  *mongo.Collection
	now   func() time.Time
	newID func() string
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(ProductsCollection), now: time.Now, newID: uuid.NewString}
}

func (s *MongoStore) Backend() string { return config.BackendMongo }

// EnsureIndexes declares {id:1} unique and {skuKey:1} unique+sparse.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "skuKey", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("create product indexes: %w", err)
	}
	return nil
}

var noObjectID = options.Find().SetProjection(bson.M{"_id": 0})

func (s *MongoStore) ListAll(ctx context.Context) ([]models.CatalogProduct, error) {
	cursor, err := s.coll.Find(ctx, bson.M{}, noObjectID)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	products := []models.CatalogProduct{}
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}

func (s *MongoStore) FindByKey(ctx context.Context, key string) (*models.CatalogProduct, error) {
	var p models.CatalogProduct
	err := s.coll.FindOne(ctx, bson.M{"skuKey": key}, options.FindOne().SetProjection(bson.M{"_id": 0})).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find product %q: %w", key, err)
	}
	return &p, nil
}

// Begin returns a batch whose upserts are durable one by one.
func (s *MongoStore) Begin(ctx context.Context) (CatalogBatch, error) {
	return mongoBatch{s}, nil
}

type mongoBatch struct{ s *MongoStore }

func (b mongoBatch) Upsert(ctx context.Context, key string, fields models.ProductFields) (bool, error) {
	update := BuildUpsertUpdate(key, fields, b.s.newID(), models.Timestamp(b.s.now()))
	res, err := b.s.coll.UpdateOne(ctx, bson.M{"skuKey": key}, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("upsert product %q: %w", key, err)
	}
	return res.UpsertedCount == 1, nil
}

func (b mongoBatch) Commit(ctx context.Context) error { return nil }

// BuildUpsertUpdate sets the import-managed fields and initializes id, brand and
// createdAt only when the document is inserted, so a curated brand survives.
func BuildUpsertUpdate(key string, f models.ProductFields, id, now string) bson.M {
	brand := f.Brand
	if brand == "" {
		brand = f.SKU
	}
	return bson.M{
		"$set": bson.M{
			"sku":         f.SKU,
			"skuKey":      key,
			"name":        f.Name,
			"category":    f.Category,
			"price":       f.Price,
			"inStock":     f.InStock,
			"image":       f.Image,
			"description": f.Description,
			"updatedAt":   now,
		},
		"$setOnInsert": bson.M{
			"id":        id,
			"brand":     brand,
			"createdAt": now,
		},
	}
}

// SaveAll upserts every product by id in one unordered bulk write.
func (s *MongoStore) SaveAll(ctx context.Context, products []models.CatalogProduct) (int, error) {
	now := models.Timestamp(s.now())
	writes := make([]mongo.WriteModel, 0, len(products))
	for _, p := range products {
		id, update := BuildReplaceUpdate(p, s.newID, now)
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"id": id}).
			SetUpdate(update).
			SetUpsert(true))
	}
	if len(writes) == 0 {
		return 0, nil
	}

	if _, err := s.coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return 0, fmt.Errorf("bulk save products: %w", err)
	}
	return len(writes), nil
}

// BuildReplaceUpdate turns a submitted product into a $set by id. A missing id is
// generated, sku falls back to the legacy key source, and skuKey is unset when no
// key can be derived so the sparse index ignores the document.
func BuildReplaceUpdate(p models.CatalogProduct, newID func() string, now string) (string, bson.M) {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		id = newID()
	}
	sku := strings.TrimSpace(p.SKU)
	if sku == "" {
		sku = strings.TrimSpace(SKUForKey(p))
	}
	createdAt := p.CreatedAt
	if createdAt == "" {
		createdAt = now
	}

	set := bson.M{}
	for k, v := range p.Extra {
		if k != "_id" && !models.IsManagedKey(k) {
			set[k] = v
		}
	}
	set["id"] = id
	set["sku"] = sku
	set["brand"] = p.Brand
	set["name"] = p.Name
	set["category"] = p.Category
	set["price"] = p.Price
	set["inStock"] = p.InStock
	set["image"] = p.Image
	set["description"] = p.Description
	set["createdAt"] = createdAt
	set["updatedAt"] = now

	update := bson.M{"$set": set}
	if key := importer.NormalizeSKUKey(sku); key != "" {
		set["skuKey"] = key
	} else {
		update["$unset"] = bson.M{"skuKey": ""}
	}
	return id, update
}

// SeedFromSnapshot copies products into an empty collection, dropping repeated ids
// and then repeated keys. It returns the number of inserted documents.
func (s *MongoStore) SeedFromSnapshot(ctx context.Context, products []models.CatalogProduct) (int, error) {
	count, err := s.coll.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	docs := SeedDocuments(products, s.newID, models.Timestamp(s.now()))
	if len(docs) == 0 {
		return 0, nil
	}

	res, err := s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if res != nil && err != nil {
		return len(res.InsertedIDs), fmt.Errorf("seed products: %w", err)
	}
	if err != nil {
		return 0, fmt.Errorf("seed products: %w", err)
	}
	return len(res.InsertedIDs), nil
}

// SeedDocuments prepares snapshot records for insertion.
func SeedDocuments(products []models.CatalogProduct, newID func() string, now string) []interface{} {
	seenIDs := make(map[string]struct{}, len(products))
	seenKeys := make(map[string]struct{}, len(products))
	docs := make([]interface{}, 0, len(products))

	for _, p := range products {
		if strings.TrimSpace(p.ID) == "" {
			p.ID = newID()
		}
		if p.SKU == "" {
			p.SKU = SKUForKey(p)
		}
		p.SKUKey = importer.NormalizeSKUKey(p.SKU)
		if p.CreatedAt == "" {
			p.CreatedAt = now
		}
		if p.UpdatedAt == "" {
			p.UpdatedAt = now
		}

		id := strings.TrimSpace(p.ID)
		if _, dup := seenIDs[id]; dup {
			continue
		}
		seenIDs[id] = struct{}{}
		if p.SKUKey != "" {
			if _, dup := seenKeys[p.SKUKey]; dup {
				continue
			}
			seenKeys[p.SKUKey] = struct{}{}
		}
		docs = append(docs, p)
	}
	return docs
}
