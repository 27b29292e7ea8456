package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/orderdesk/internal/entity"
)

// FileStore keeps the collection as a JSON array on local disk.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store writing to path. The file is created on the
// first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Name identifies the backend in logs.
func (s *FileStore) Name() string { return "file" }

// Load reads the collection. A missing file is an empty collection.
func (s *FileStore) Load(ctx context.Context) ([]entity.Order, error) {
	_, span := storeTracer.Start(ctx, "FileStore.Load", trace.WithAttributes(attribute.String("store.path", s.path)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []entity.Order{}, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return nil, fmt.Errorf("read orders file: %w", err)
	}

	orders, err := decodeOrders(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("store.orders", len(orders)))
	return orders, nil
}

// Save writes the collection to a temp file and renames it over the target.
func (s *FileStore) Save(ctx context.Context, orders []entity.Order) error {
	_, span := storeTracer.Start(ctx, "FileStore.Save", trace.WithAttributes(
		attribute.String("store.path", s.path),
		attribute.Int("store.orders", len(orders)),
	))
	defer span.End()

	data, err := encodeOrders(orders, true)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeAtomic(data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return err
	}
	return nil
}

func (s *FileStore) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace orders file: %w", err)
	}
	return nil
}

func encodeOrders(orders []entity.Order, indent bool) ([]byte, error) {
	if orders == nil {
		orders = []entity.Order{}
	}
	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(orders, "", "  ")
	} else {
		data, err = json.Marshal(orders)
	}
	if err != nil {
		return nil, fmt.Errorf("encode orders: %w", err)
	}
	return data, nil
}

func decodeOrders(data []byte) ([]entity.Order, error) {
	if len(data) == 0 {
		return []entity.Order{}, nil
	}
	var orders []entity.Order
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	if orders == nil {
		orders = []entity.Order{}
	}
	return orders, nil
}
