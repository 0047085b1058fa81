package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/downfa11-org/go-recordlog/pkg/broker"
	"github.com/downfa11-org/go-recordlog/pkg/config"
	"github.com/downfa11-org/go-recordlog/pkg/controller"
	"github.com/downfa11-org/go-recordlog/pkg/segment"
	"github.com/downfa11-org/go-recordlog/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDump(t *testing.T) {
	data, err := segment.Encode(3, 1, []types.Record{
		types.NewRecord(1, "k1", "v1"),
		types.NewRecord(2, "k2", "v2"),
	})
	require.NoError(t, err)
	data, err = segment.AppendEncode(data, 0, 9, []types.Record{types.NewRecord(9, "x", "y")})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "0.log")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	var out bytes.Buffer
	require.NoError(t, run([]string{"dump", path}, &out))
	assert.Equal(t, "partition #3 (position 0)\n1 | k1 | v1\n2 | k2 | v2\n\npartition #0 (position 44)\n9 | x | y\n\n", out.String())
}

func TestRunRejectsBadInput(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, run(nil, &out))
	assert.Error(t, run([]string{"bogus"}, &out))
	assert.Error(t, run([]string{"dump"}, &out))
	assert.Error(t, run([]string{"dump", filepath.Join(t.TempDir(), "missing.log")}, &out))
	assert.Error(t, run([]string{"fetch", "abc"}, &out))
	assert.Error(t, run([]string{"produce", "0", "k"}, &out))
}

func TestProduceAndFetch(t *testing.T) {
	cfg := config.Default()
	cfg.LogDir = t.TempDir()
	cfg.LogCount = 2
	cfg.PartitionCount = 4
	cfg.FlushIntervalMS = 5

	b, err := broker.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	srv := httptest.NewServer(controller.NewHandler(b).Routes())
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	require.NoError(t, run([]string{"--addr", srv.URL, "produce", "3", "k", "v"}, &out))
	assert.Equal(t, "1\n", out.String())

	out.Reset()
	require.NoError(t, run([]string{"--addr", srv.URL, "fetch", "3"}, &out))
	assert.Equal(t, "1 | k | v\n", out.String())

	out.Reset()
	assert.Error(t, run([]string{"--addr", srv.URL, "fetch", "9"}, &out))
}
