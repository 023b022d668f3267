package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sushant-115/idxtree/config"
	"github.com/sushant-115/idxtree/core/indexing/idxtree"
	"github.com/sushant-115/idxtree/core/indexmanager"
	"github.com/sushant-115/idxtree/pkg/telemetry"
	"go.uber.org/zap"
)

func setupNode(t *testing.T) *node {
	t.Helper()
	tel, shutdown, err := telemetry.New(telemetry.Config{Enabled: true, ServiceName: "idxtree-server-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	cfg := config.Default()
	cfg.Indexes = []config.IndexSpec{
		{Name: "orders", IndexConfig: indexmanager.IndexConfig{PageSize: 4096, KeySize: 4, MaxEntries: 4}},
	}
	n, err := newNode(cfg, zap.NewNop(), tel)
	require.NoError(t, err)
	return n
}

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHTTPEndpoints(t *testing.T) {
	n := setupNode(t)
	ctx := context.Background()
	for _, k := range []byte{1, 2, 4, 3, 5} {
		require.NoError(t, n.manager.AddRecord(ctx, "orders", []byte{0, 0, 0, k}, idxtree.RecordLocator{PageNum: 2, SlotNum: uint32(k)}))
	}

	srv := httptest.NewServer(n.httpServer.Handler)
	defer srv.Close()

	code, body := get(t, srv, "/health")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "OK", body)

	code, body = get(t, srv, "/indexes")
	require.Equal(t, http.StatusOK, code)
	var infos []indexmanager.IndexInfo
	require.NoError(t, json.Unmarshal([]byte(body), &infos))
	require.Len(t, infos, 1)
	require.Equal(t, "orders", infos[0].Name)
	require.Equal(t, 5, infos[0].Stats.Records)
	require.Equal(t, 2, infos[0].Stats.Height)

	code, body = get(t, srv, "/indexes/orders/dump")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "Index tree:")
	require.Contains(t, body, "-Key: 0x00000003")

	code, _ = get(t, srv, "/indexes/missing/dump")
	require.Equal(t, http.StatusNotFound, code)
	code, _ = get(t, srv, "/indexes/orders")
	require.Equal(t, http.StatusNotFound, code)

	code, body = get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "idxtree_index_records")
}

func TestNewNodeRejectsBadStartupIndex(t *testing.T) {
	cfg := config.Default()
	cfg.Indexes = []config.IndexSpec{{Name: "bad", IndexConfig: indexmanager.IndexConfig{PageSize: 8, KeySize: 4}}}
	_, err := newNode(cfg, zap.NewNop(), telemetry.Noop())
	require.ErrorIs(t, err, idxtree.ErrInvalidConfiguration)
}

func TestRunStopsOnCancel(t *testing.T) {
	n := setupNode(t)
	n.cfg.GRPCAddr = "127.0.0.1:0"
	n.httpServer.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, n.run(ctx))
	infos, err := n.manager.ListIndexes(context.Background())
	require.NoError(t, err)
	require.Empty(t, infos)
}

// failingDump serves a fixed DumpIndex error; other methods are unused.
type failingDump struct {
	indexmanager.RecordIndex
	err error
}

func (f failingDump) DumpIndex(ctx context.Context, name string, w io.Writer) error {
	_, _ = io.WriteString(w, "Index tree:\n")
	return f.err
}

func TestDumpEndpointStatusCodes(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{idxtree.ErrIndexCorruption, http.StatusInternalServerError},
		{idxtree.ErrTreeDestroyed, http.StatusInternalServerError},
		{indexmanager.ErrIndexNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		mux := http.NewServeMux()
		addMuxHandler(mux, failingDump{err: tc.err}, http.NotFoundHandler())
		srv := httptest.NewServer(mux)

		code, body := get(t, srv, "/indexes/orders/dump")
		srv.Close()
		require.Equal(t, tc.code, code, tc.err.Error())
		require.Contains(t, body, tc.err.Error())
		require.NotContains(t, body, "Index tree:")
	}
}
