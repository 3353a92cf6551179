package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RemoteKing-Interns/allremotes-sub000/config"
	"github.com/RemoteKing-Interns/allremotes-sub000/models"
	"github.com/google/uuid"
)

// FileStore keeps the whole catalog as one JSON array on disk. Every commit rewrites
// the file, so an upload costs O(catalog size) in I/O.
type FileStore struct {
	path  string
	now   func() time.Time
	newID func() string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now, newID: uuid.NewString}
}

func (s *FileStore) Backend() string { return config.BackendFile }

// Path returns the snapshot location.
func (s *FileStore) Path() string { return s.path }

// Ensure creates an empty snapshot when none exists.
func (s *FileStore) Ensure() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat products file: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create products dir: %w", err)
		}
	}
	return s.write([]models.CatalogProduct{})
}

// load reads the snapshot. A corrupted file is an error, never an empty catalog.
func (s *FileStore) load() ([]models.CatalogProduct, error) {
	if err := s.Ensure(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read products file: %w", err)
	}

	var products []models.CatalogProduct
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(s.path), err)
	}
	if products == nil {
		products = []models.CatalogProduct{}
	}
	return products, nil
}

// write replaces the snapshot via a sibling temp file and rename.
func (s *FileStore) write(products []models.CatalogProduct) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(products); err != nil {
		return fmt.Errorf("encode products: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open temp products file: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp products file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp products file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp products file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace products file: %w", err)
	}
	return nil
}

func (s *FileStore) ListAll(ctx context.Context) ([]models.CatalogProduct, error) {
	return s.load()
}

func (s *FileStore) FindByKey(ctx context.Context, key string) (*models.CatalogProduct, error) {
	products, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range products {
		if ProductKey(products[i]) == key {
			return &products[i], nil
		}
	}
	return nil, nil
}

func (s *FileStore) Begin(ctx context.Context) (CatalogBatch, error) {
	products, err := s.load()
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(products))
	for i, p := range products {
		key := ProductKey(p)
		if key == "" {
			continue
		}
		if _, seen := index[key]; !seen {
			index[key] = i
		}
	}
	return &fileBatch{store: s, products: products, index: index}, nil
}

func (s *FileStore) SaveAll(ctx context.Context, products []models.CatalogProduct) (int, error) {
	return 0, ErrBulkSaveUnsupported
}

// fileBatch applies upserts in memory and writes once on Commit.
type fileBatch struct {
	store    *FileStore
	products []models.CatalogProduct
	index    map[string]int
}

func (b *fileBatch) Upsert(ctx context.Context, key string, fields models.ProductFields) (bool, error) {
	now := models.Timestamp(b.store.now())

	if i, ok := b.index[key]; ok {
		b.products[i].Apply(fields, key, now)
		return false, nil
	}

	b.products = append(b.products, models.NewCatalogProduct(b.store.newID(), fields, key, now))
	b.index[key] = len(b.products) - 1
	return true, nil
}

// Commit collapses historical duplicate keys, keeping the first record per key,
// and writes the snapshot.
func (b *fileBatch) Commit(ctx context.Context) error {
	return b.store.write(DedupeByKey(b.products))
}

// DedupeByKey keeps the first record for every key. Records without a key are kept.
func DedupeByKey(products []models.CatalogProduct) []models.CatalogProduct {
	out := make([]models.CatalogProduct, 0, len(products))
	seen := make(map[string]struct{}, len(products))
	for _, p := range products {
		key := ProductKey(p)
		if key != "" {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, p)
	}
	return out
}
