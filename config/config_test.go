package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sushant-115/idxtree/core/indexing/idxtree"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "idxtree.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
grpc_addr: 0.0.0.0:9000
shutdown_timeout: 3s
rate_limit:
  requests_per_second: 250
  burst: 50
logger:
  level: debug
  format: console
indexes:
  - name: orders_by_id
    key_size: 8
  - name: tiny
    page_size: 64
    key_size: 4
    max_entries: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:9000", cfg.GRPCAddr)
	require.Equal(t, "127.0.0.1:8080", cfg.HTTPAddr, "unset fields keep their defaults")
	require.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	require.Equal(t, 250.0, cfg.RateLimit.RequestsPerSecond)
	require.Equal(t, "debug", cfg.Logger.Level)
	require.Equal(t, "stdout", cfg.Logger.OutputFile)

	require.Len(t, cfg.Indexes, 2)
	require.Equal(t, "orders_by_id", cfg.Indexes[0].Name)
	require.EqualValues(t, 4096, cfg.Indexes[0].PageSize)
	require.EqualValues(t, 8, cfg.Indexes[0].KeySize)
	require.EqualValues(t, 64, cfg.Indexes[1].PageSize)
	require.Equal(t, 4, cfg.Indexes[1].MaxEntries)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "grpc_addr: [unclosed"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "indexes:\n  - key_size: 4\n"))
	require.ErrorContains(t, err, "name must be set")

	_, err = Load(writeConfig(t, "indexes:\n  - name: a\n    key_size: 4\n  - name: a\n    key_size: 4\n"))
	require.ErrorContains(t, err, "duplicate index")

	_, err = Load(writeConfig(t, "rate_limit:\n  burst: -1\n"))
	require.ErrorContains(t, err, "must not be negative")

	_, err = Load(writeConfig(t, "indexes:\n  - name: a\n    key_size: 4\n    max_entries: -1\n"))
	require.ErrorContains(t, err, "max_entries must not be negative")
}

// Index geometry is read into IndexSpec only; the tree's own Config is never
// decoded from YAML and carries no tags.
func TestIndexGeometryDecodesIntoIndexSpec(t *testing.T) {
	cfg, err := Load(writeConfig(t, "indexes:\n  - name: a\n    page_size: 512\n    key_size: 8\n    max_entries: 6\n"))
	require.NoError(t, err)
	require.Len(t, cfg.Indexes, 1)
	require.Equal(t, uint32(512), cfg.Indexes[0].PageSize)
	require.Equal(t, uint32(8), cfg.Indexes[0].KeySize)
	require.Equal(t, 6, cfg.Indexes[0].MaxEntries)

	typ := reflect.TypeOf(idxtree.Config{})
	for i := 0; i < typ.NumField(); i++ {
		require.Empty(t, typ.Field(i).Tag, typ.Field(i).Name)
	}
}
