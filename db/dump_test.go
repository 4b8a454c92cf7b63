package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nickyhof/AtlasDB/errs"
	"github.com/nickyhof/AtlasDB/ps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpRestoreRoundTrip(t *testing.T) {
	for name, open := range engineFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			source := newTestStore(t, open, Options{})
			mustExecute(t, source, "INSERT INTO saved_items", japan())
			mustExecute(t, source, "INSERT INTO saved_items", france())
			mustExecute(t, source, "INSERT INTO preferences", map[string]any{"id": "theme", "value": "dark"})

			path := filepath.Join(t.TempDir(), "dump.json")
			written, err := source.Dump(ctx, "file://"+path)
			require.NoError(t, err)
			assert.Equal(t, 3, written)

			target := newTestStore(t, func(ctx context.Context) (ps.Engine, error) {
				return ps.NewMemoryGitEngine(testIdentity)
			}, Options{})
			restored, err := target.Restore(ctx, path)
			require.NoError(t, err)
			assert.Equal(t, 3, restored)

			result := mustExecute(t, target, "SELECT * FROM saved_items WHERE type = 'Country'")
			require.Len(t, result.Rows, 2)
			assert.Equal(t, "Japan", result.Rows[0]["title"])

			result = mustExecute(t, target, "SELECT * FROM preferences WHERE id = 'theme'")
			require.Len(t, result.Rows, 1)
			assert.Equal(t, "dark", result.Rows[0]["value"])
		})
	}
}

func TestRestoreUnknownTable(t *testing.T) {
	store := newTestStore(t, func(ctx context.Context) (ps.Engine, error) {
		return ps.NewMemoryGitEngine(testIdentity)
	}, Options{})

	path := filepath.Join(t.TempDir(), "dump.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":1,"tables":{"countries":[{"id":"1"}]}}`), 0o600))

	_, err := store.Restore(context.Background(), path)
	assert.True(t, errs.IsNotFound(err), "got %v", err)
}

func TestRestoreNewerVersion(t *testing.T) {
	store := newTestStore(t, func(ctx context.Context) (ps.Engine, error) {
		return ps.NewMemoryGitEngine(testIdentity)
	}, Options{})

	path := filepath.Join(t.TempDir(), "dump.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":99,"tables":{}}`), 0o600))

	_, err := store.Restore(context.Background(), path)
	assert.True(t, errs.IsInvalidInput(err), "got %v", err)
}

func TestRestoreMissingFile(t *testing.T) {
	store := newTestStore(t, func(ctx context.Context) (ps.Engine, error) {
		return ps.NewMemoryGitEngine(testIdentity)
	}, Options{})

	_, err := store.Restore(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errs.IsInvalidInput(err), "got %v", err)
}

func TestDumpToHTTPFails(t *testing.T) {
	store := newTestStore(t, func(ctx context.Context) (ps.Engine, error) {
		return ps.NewMemoryGitEngine(testIdentity)
	}, Options{})

	_, err := store.Dump(context.Background(), "https://example.com/dump.json")
	assert.True(t, errs.IsInvalidInput(err), "got %v", err)
}

func TestParseLocation(t *testing.T) {
	tests := map[string]location{
		"/tmp/dump.json":        {kind: locationFile, path: "/tmp/dump.json"},
		"relative/dump.json":    {kind: locationFile, path: "relative/dump.json"},
		"file:///tmp/dump.json": {kind: locationFile, path: "/tmp/dump.json"},
		"https://example.com/a": {kind: locationHTTP, path: "https://example.com/a"},
		"HTTP://example.com/a":  {kind: locationHTTP, path: "HTTP://example.com/a"},
		"s3://backups/atlas/2024.json": {
			kind: locationS3, bucket: "backups", key: "atlas/2024.json",
		},
		"S3://backups/a.json": {kind: locationS3, bucket: "backups", key: "a.json"},
	}
	for raw, want := range tests {
		got, err := parseLocation(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, bad := range []string{"s3://bucket", "s3://bucket/", "s3:///key", "ftp://host/x", "file://"} {
		_, err := parseLocation(bad)
		assert.Error(t, err, bad)
	}
}

func TestFileSinkAbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "dump.json")

	sink, err := newFileSink(target)
	require.NoError(t, err)
	_, err = sink.Write([]byte("partial"))
	require.NoError(t, err)
	sink.Abort()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileSinkCommitReplacesTarget(t *testing.T) {
	target := filepath.Join(t.TempDir(), "dump.json")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o644))

	sink, err := newFileSink(target)
	require.NoError(t, err)
	_, err = sink.Write([]byte("new"))
	require.NoError(t, err)
	require.NoError(t, sink.Commit())

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}
