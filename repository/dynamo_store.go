package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RemoteKing-Interns/allremotes-sub000/config"
	"github.com/RemoteKing-Interns/allremotes-sub000/importer"
	"github.com/RemoteKing-Interns/allremotes-sub000/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// dynamoAPI is the part of *dynamodb.Client the store uses.
type dynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoStore keeps one item per product in a table whose partition key is skuKey.
type DynamoStore struct {
	client     dynamoAPI
	table      string
	now        func() time.Time
	newID      func() string
	retryDelay time.Duration
}

func NewDynamoStore(client *dynamodb.Client, table string) *DynamoStore {
	return newDynamoStore(client, table)
}

func newDynamoStore(client dynamoAPI, table string) *DynamoStore {
	return &DynamoStore{
		client:     client,
		table:      table,
		now:        time.Now,
		newID:      uuid.NewString,
		retryDelay: 300 * time.Millisecond,
	}
}

func (d *DynamoStore) Backend() string { return config.BackendDynamo }

// Ping checks that the table exists and is reachable.
func (d *DynamoStore) Ping(ctx context.Context) error {
	out, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &d.table})
	if err != nil {
		return fmt.Errorf("describe table %s: %w", d.table, err)
	}
	if out.Table != nil && out.Table.TableStatus == types.TableStatusDeleting {
		return fmt.Errorf("table %s is being deleted", d.table)
	}
	return nil
}

func (d *DynamoStore) ListAll(ctx context.Context) ([]models.CatalogProduct, error) {
	products := []models.CatalogProduct{}
	paginator := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{TableName: &d.table})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan page failed: %w", err)
		}
		for _, it := range page.Items {
			p, err := fromItem(it)
			if err != nil {
				return nil, err
			}
			products = append(products, p)
		}
	}
	return products, nil
}

func (d *DynamoStore) FindByKey(ctx context.Context, key string) (*models.CatalogProduct, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &d.table,
		Key:       skuKeyAttr(key),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	p, err := fromItem(out.Item)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *DynamoStore) Begin(ctx context.Context) (CatalogBatch, error) {
	return dynamoBatch{d}, nil
}

type dynamoBatch struct{ d *DynamoStore }

func (b dynamoBatch) Upsert(ctx context.Context, key string, fields models.ProductFields) (bool, error) {
	in, err := buildUpdateInput(b.d.table, key, fields, b.d.newID(), models.Timestamp(b.d.now()))
	if err != nil {
		return false, err
	}
	out, err := b.d.client.UpdateItem(ctx, in)
	if err != nil {
		return false, fmt.Errorf("update item failed: %w", err)
	}
	return len(out.Attributes) == 0, nil
}

func (b dynamoBatch) Commit(ctx context.Context) error { return nil }

const upsertExpression = "SET #sku = :sku, #name = :name, #category = :category, #price = :price, " +
	"#inStock = :inStock, #image = :image, #description = :description, #updatedAt = :now, " +
	"#id = if_not_exists(#id, :id), #brand = if_not_exists(#brand, :brand), " +
	"#createdAt = if_not_exists(#createdAt, :now)"

// buildUpdateInput writes the import-managed attributes and sets id, brand and
// createdAt only on items that lack them. ALL_OLD lets the caller tell an insert
// from an update.
func buildUpdateInput(table, key string, f models.ProductFields, id, now string) (*dynamodb.UpdateItemInput, error) {
	brand := f.Brand
	if brand == "" {
		brand = f.SKU
	}

	names := map[string]string{}
	for _, n := range []string{"sku", "name", "category", "price", "inStock", "image", "description", "updatedAt", "id", "brand", "createdAt"} {
		names["#"+n] = n
	}

	values := map[string]types.AttributeValue{}
	for ph, v := range map[string]interface{}{
		":sku":         f.SKU,
		":name":        f.Name,
		":category":    f.Category,
		":price":       f.Price,
		":inStock":     f.InStock,
		":image":       f.Image,
		":description": f.Description,
		":now":         now,
		":id":          id,
		":brand":       brand,
	} {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal update value: %w", err)
		}
		values[ph] = av
	}

	return &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       skuKeyAttr(key),
		UpdateExpression:          aws.String(upsertExpression),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllOld,
	}, nil
}

// SaveAll writes products with BatchWriteItem in chunks of 25. Items are addressed by
// skuKey, so a product without a derivable key is rejected and a key repeated in the
// list keeps its last occurrence.
func (d *DynamoStore) SaveAll(ctx context.Context, products []models.CatalogProduct) (int, error) {
	now := models.Timestamp(d.now())
	items := make([]map[string]types.AttributeValue, 0, len(products))
	position := make(map[string]int, len(products))

	for _, p := range products {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			p.ID = d.newID()
		}
		if strings.TrimSpace(p.SKU) == "" {
			p.SKU = SKUForKey(p)
		}
		p.SKU = strings.TrimSpace(p.SKU)
		p.SKUKey = importer.NormalizeSKUKey(p.SKU)
		if p.SKUKey == "" {
			return 0, fmt.Errorf("product %s has no product code", p.ID)
		}
		if p.CreatedAt == "" {
			p.CreatedAt = now
		}
		p.UpdatedAt = now

		item, err := toItem(p)
		if err != nil {
			return 0, err
		}
		if i, dup := position[p.SKUKey]; dup {
			items[i] = item
			continue
		}
		position[p.SKUKey] = len(items)
		items = append(items, item)
	}

	const chunkSize = 25
	for i := 0; i < len(items); i += chunkSize {
		end := i + chunkSize
		if end > len(items) {
			end = len(items)
		}
		writeReqs := make([]types.WriteRequest, 0, end-i)
		for _, item := range items[i:end] {
			writeReqs = append(writeReqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}
		if err := d.batchWrite(ctx, writeReqs); err != nil {
			return 0, err
		}
	}
	return len(items), nil
}

// batchWrite retries unprocessed items with a linear backoff.
func (d *DynamoStore) batchWrite(ctx context.Context, writeReqs []types.WriteRequest) error {
	req := &dynamodb.BatchWriteItemInput{RequestItems: map[string][]types.WriteRequest{d.table: writeReqs}}
	attempts := 0
	for {
		out, err := d.client.BatchWriteItem(ctx, req)
		if err != nil {
			return fmt.Errorf("batch write failed: %w", err)
		}
		unp := out.UnprocessedItems[d.table]
		if len(unp) == 0 {
			return nil
		}
		req.RequestItems[d.table] = unp

		attempts++
		if attempts >= 3 {
			return errors.New("batch write had unprocessed items after retries")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempts) * d.retryDelay):
		}
	}
}

func skuKeyAttr(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"skuKey": &types.AttributeValueMemberS{Value: key}}
}

// toItem converts p, extras included, into a DynamoDB item.
func toItem(p models.CatalogProduct) (map[string]types.AttributeValue, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode product %s: %w", p.ID, err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode product %s: %w", p.ID, err)
	}
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal product %s: %w", p.ID, err)
	}
	return item, nil
}

func fromItem(item map[string]types.AttributeValue) (models.CatalogProduct, error) {
	var p models.CatalogProduct
	var doc map[string]interface{}
	if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
		return p, fmt.Errorf("unmarshal item: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return p, fmt.Errorf("encode item: %w", err)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode item: %w", err)
	}
	return p, nil
}
