package indexservice

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/sushant-115/idxtree/core/indexing/idxtree"
	"github.com/sushant-115/idxtree/core/indexmanager"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Client talks to a remote index server. It implements
// indexmanager.RecordIndex so callers can swap a local manager for a
// remote one.
type Client struct {
	conn *grpc.ClientConn
}

var _ indexmanager.RecordIndex = (*Client)(nil)

// Dial connects to an index server without transport security.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to index server %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) Name() string { return "remote:" + c.conn.Target() }

func (c *Client) invoke(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(method), req, out); err != nil {
		return nil, fromStatus(err)
	}
	return out, nil
}

// CreateIndex creates a named index. Zero PageSize selects the default page
// size and zero MaxEntries derives the capacity from the sizes.
func (c *Client) CreateIndex(ctx context.Context, name string, cfg indexmanager.IndexConfig) (indexmanager.IndexInfo, error) {
	fields := map[string]any{"index": name, "key_size": cfg.KeySize}
	if cfg.PageSize != 0 {
		fields["page_size"] = cfg.PageSize
	}
	if cfg.MaxEntries != 0 {
		fields["max_entries"] = cfg.MaxEntries
	}
	out, err := c.invoke(ctx, MethodCreateIndex, fields)
	if err != nil {
		return indexmanager.IndexInfo{}, err
	}
	return structToInfo(out), nil
}

func (c *Client) DropIndex(ctx context.Context, name string) error {
	_, err := c.invoke(ctx, MethodDropIndex, map[string]any{"index": name})
	return err
}

func (c *Client) AddRecord(ctx context.Context, name string, key []byte, loc idxtree.RecordLocator) error {
	_, err := c.invoke(ctx, MethodAddRecord, map[string]any{
		"index":    name,
		"key":      hex.EncodeToString(key),
		"page_num": loc.PageNum,
		"slot_num": loc.SlotNum,
	})
	return err
}

func (c *Client) FindRecord(ctx context.Context, name string, key []byte) (idxtree.RecordLocator, bool, error) {
	out, err := c.invoke(ctx, MethodFindRecord, map[string]any{"index": name, "key": hex.EncodeToString(key)})
	if err != nil {
		return idxtree.RecordLocator{}, false, err
	}
	if !out.GetFields()["found"].GetBoolValue() {
		return idxtree.RecordLocator{}, false, nil
	}
	return structToLocator(out), true, nil
}

// ScanIndex returns up to limit records in key order; 0 returns all.
func (c *Client) ScanIndex(ctx context.Context, name string, limit int) ([]indexmanager.Record, error) {
	out, err := c.invoke(ctx, MethodScanIndex, map[string]any{"index": name, "limit": limit})
	if err != nil {
		return nil, err
	}
	values := out.GetFields()["records"].GetListValue().GetValues()
	records := make([]indexmanager.Record, 0, len(values))
	for _, v := range values {
		s := v.GetStructValue()
		key, err := hex.DecodeString(s.GetFields()["key"].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("server returned a malformed key: %w", err)
		}
		records = append(records, indexmanager.Record{Key: key, Locator: structToLocator(s)})
	}
	return records, nil
}

func (c *Client) DumpIndex(ctx context.Context, name string, w io.Writer) error {
	out, err := c.invoke(ctx, MethodDumpIndex, map[string]any{"index": name})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out.GetFields()["dump"].GetStringValue())
	return err
}

func (c *Client) CheckIndex(ctx context.Context, name string) error {
	_, err := c.invoke(ctx, MethodCheckIndex, map[string]any{"index": name})
	return err
}

func (c *Client) IndexStats(ctx context.Context, name string) (indexmanager.IndexInfo, error) {
	out, err := c.invoke(ctx, MethodIndexStats, map[string]any{"index": name})
	if err != nil {
		return indexmanager.IndexInfo{}, err
	}
	return structToInfo(out), nil
}

func (c *Client) ListIndexes(ctx context.Context) ([]indexmanager.IndexInfo, error) {
	out, err := c.invoke(ctx, MethodListIndexes, map[string]any{})
	if err != nil {
		return nil, err
	}
	values := out.GetFields()["indexes"].GetListValue().GetValues()
	infos := make([]indexmanager.IndexInfo, 0, len(values))
	for _, v := range values {
		infos = append(infos, structToInfo(v.GetStructValue()))
	}
	return infos, nil
}

func structToLocator(s *structpb.Struct) idxtree.RecordLocator {
	f := s.GetFields()
	return idxtree.RecordLocator{
		PageNum: uint32(f["page_num"].GetNumberValue()),
		SlotNum: uint32(f["slot_num"].GetNumberValue()),
	}
}

func structToInfo(s *structpb.Struct) indexmanager.IndexInfo {
	f := s.GetFields()
	num := func(name string) float64 { return f[name].GetNumberValue() }
	createdAt, _ := time.Parse(timeLayout, f["created_at"].GetStringValue())
	return indexmanager.IndexInfo{
		Name:      f["index"].GetStringValue(),
		ID:        f["id"].GetStringValue(),
		CreatedAt: createdAt,
		Stats: idxtree.Stats{
			Height:       int(num("height")),
			Records:      int(num("records")),
			Pages:        int(num("pages")),
			LeafPages:    int(num("leaf_pages")),
			PageCounter:  uint64(num("page_counter")),
			Splits:       uint64(num("splits")),
			RootSplits:   uint64(num("root_splits")),
			LeafCapacity: int(num("leaf_capacity")),
			NodeCapacity: int(num("node_capacity")),
			KeySize:      uint32(num("key_size")),
			PageSize:     uint32(num("page_size")),
		},
	}
}
