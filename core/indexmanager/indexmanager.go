package indexmanager

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sushant-115/idxtree/core/indexing/idxtree"
)

var (
	ErrIndexExists      = errors.New("index already exists")
	ErrIndexNotFound    = errors.New("index not found")
	ErrInvalidIndexName = errors.New("index name must not be empty")
)

// IndexConfig describes a new index.
type IndexConfig struct {
	PageSize uint32 `yaml:"page_size" json:"page_size"`
	KeySize  uint32 `yaml:"key_size" json:"key_size"`
	// MaxEntries pins the page capacity; 0 derives it from the sizes.
	MaxEntries int `yaml:"max_entries" json:"max_entries"`
}

// IndexInfo describes a live index.
type IndexInfo struct {
	Name      string        `json:"name"`
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Stats     idxtree.Stats `json:"stats"`
}

// Record is one (key, locator) pair returned by a scan.
type Record struct {
	Key     []byte
	Locator idxtree.RecordLocator
}

// RecordIndex is the set of index operations served to clients. All methods
// are safe for concurrent use.
type RecordIndex interface {
	CreateIndex(ctx context.Context, name string, cfg IndexConfig) (IndexInfo, error)
	DropIndex(ctx context.Context, name string) error
	AddRecord(ctx context.Context, name string, key []byte, loc idxtree.RecordLocator) error
	FindRecord(ctx context.Context, name string, key []byte) (idxtree.RecordLocator, bool, error)
	ScanIndex(ctx context.Context, name string, limit int) ([]Record, error)
	DumpIndex(ctx context.Context, name string, w io.Writer) error
	CheckIndex(ctx context.Context, name string) error
	IndexStats(ctx context.Context, name string) (IndexInfo, error)
	ListIndexes(ctx context.Context) ([]IndexInfo, error)
	// Name returns the type of index this manager serves.
	Name() string
}
