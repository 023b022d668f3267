package indexservice

import (
	"context"
	"encoding/hex"
	"math"
	"strings"

	"github.com/sushant-115/idxtree/core/indexing/idxtree"
	"github.com/sushant-115/idxtree/core/indexmanager"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
)

// Server implements IndexServiceServer on top of a RecordIndex.
type Server struct {
	index  indexmanager.RecordIndex
	logger *zap.Logger
}

// NewServer creates the service implementation.
func NewServer(index indexmanager.RecordIndex, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{index: index, logger: logger.Named("index_service")}
}

var _ IndexServiceServer = (*Server)(nil)

func (s *Server) CreateIndex(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := stringField(req, "index")
	if err != nil {
		return nil, toStatus(err)
	}
	var cfg indexmanager.IndexConfig
	if cfg.PageSize, err = uint32Field(req, "page_size", idxtree.DefaultPageSize); err != nil {
		return nil, toStatus(err)
	}
	if cfg.KeySize, err = uint32Field(req, "key_size", 0); err != nil {
		return nil, toStatus(err)
	}
	maxEntries, err := uint32Field(req, "max_entries", 0)
	if err != nil {
		return nil, toStatus(err)
	}
	cfg.MaxEntries = int(maxEntries)

	info, err := s.index.CreateIndex(ctx, name, cfg)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(infoFields(info))
}

func (s *Server) DropIndex(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := stringField(req, "index")
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.index.DropIndex(ctx, name); err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"dropped": name})
}

func (s *Server) AddRecord(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, key, err := indexAndKey(req)
	if err != nil {
		return nil, toStatus(err)
	}
	var loc idxtree.RecordLocator
	if loc.PageNum, err = uint32Field(req, "page_num", 0); err != nil {
		return nil, toStatus(err)
	}
	if loc.SlotNum, err = uint32Field(req, "slot_num", 0); err != nil {
		return nil, toStatus(err)
	}
	if err := s.index.AddRecord(ctx, name, key, loc); err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"added": true})
}

func (s *Server) FindRecord(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, key, err := indexAndKey(req)
	if err != nil {
		return nil, toStatus(err)
	}
	loc, found, err := s.index.FindRecord(ctx, name, key)
	if err != nil {
		return nil, toStatus(err)
	}
	if !found {
		return newStruct(map[string]any{"found": false})
	}
	return newStruct(map[string]any{"found": true, "page_num": loc.PageNum, "slot_num": loc.SlotNum})
}

func (s *Server) ScanIndex(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := stringField(req, "index")
	if err != nil {
		return nil, toStatus(err)
	}
	limit, err := uint32Field(req, "limit", 0)
	if err != nil {
		return nil, toStatus(err)
	}
	records, err := s.index.ScanIndex(ctx, name, int(limit))
	if err != nil {
		return nil, toStatus(err)
	}
	list := make([]any, 0, len(records))
	for _, r := range records {
		list = append(list, map[string]any{
			"key":      hex.EncodeToString(r.Key),
			"page_num": r.Locator.PageNum,
			"slot_num": r.Locator.SlotNum,
		})
	}
	return newStruct(map[string]any{"records": list})
}

func (s *Server) DumpIndex(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := stringField(req, "index")
	if err != nil {
		return nil, toStatus(err)
	}
	var sb strings.Builder
	if err := s.index.DumpIndex(ctx, name, &sb); err != nil {
		return nil, toStatus(err)
	}
	s.logger.Debug("Rendered index dump", zap.String("index", name), zap.Int("bytes", sb.Len()))
	return newStruct(map[string]any{"dump": sb.String()})
}

func (s *Server) CheckIndex(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := stringField(req, "index")
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.index.CheckIndex(ctx, name); err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"ok": true})
}

func (s *Server) IndexStats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := stringField(req, "index")
	if err != nil {
		return nil, toStatus(err)
	}
	info, err := s.index.IndexStats(ctx, name)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(infoFields(info))
}

func (s *Server) ListIndexes(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	infos, err := s.index.ListIndexes(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	list := make([]any, 0, len(infos))
	for _, info := range infos {
		list = append(list, infoFields(info))
	}
	return newStruct(map[string]any{"indexes": list})
}

// --- Field helpers ---

func infoFields(info indexmanager.IndexInfo) map[string]any {
	st := info.Stats
	return map[string]any{
		"index":         info.Name,
		"id":            info.ID,
		"created_at":    info.CreatedAt.Format(timeLayout),
		"height":        st.Height,
		"records":       st.Records,
		"pages":         st.Pages,
		"leaf_pages":    st.LeafPages,
		"page_counter":  st.PageCounter,
		"splits":        st.Splits,
		"root_splits":   st.RootSplits,
		"leaf_capacity": st.LeafCapacity,
		"node_capacity": st.NodeCapacity,
		"key_size":      st.KeySize,
		"page_size":     st.PageSize,
	}
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}

func stringField(req *structpb.Struct, name string) (string, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return "", badRequest("missing field %q", name)
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", badRequest("field %q must be a string", name)
	}
	return sv.StringValue, nil
}

// uint32Field reads an optional integral number field.
func uint32Field(req *structpb.Struct, name string, def uint32) (uint32, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return def, nil
	}
	nv, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, badRequest("field %q must be a number", name)
	}
	n := nv.NumberValue
	if n < 0 || n > math.MaxUint32 || n != math.Trunc(n) {
		return 0, badRequest("field %q must be an unsigned 32-bit integer, got %v", name, n)
	}
	return uint32(n), nil
}

// indexAndKey reads the index name and the hex-encoded key.
func indexAndKey(req *structpb.Struct) (string, []byte, error) {
	name, err := stringField(req, "index")
	if err != nil {
		return "", nil, err
	}
	hexKey, err := stringField(req, "key")
	if err != nil {
		return "", nil, err
	}
	key, err := hex.DecodeString(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return "", nil, badRequest("key is not valid hex: %v", err)
	}
	return name, key, nil
}
