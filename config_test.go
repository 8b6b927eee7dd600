package docdb

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docdb.jsonc")
	ensure(os.WriteFile(path, []byte(`{
		// where the data lives
		"path": "data.db",
		"verbose": true,
		"compression": "zstd",
		"compression_threshold": 512,
		"node_id": 7, // trailing commas are fine
	}`), 0o644))

	fo := must(LoadOptions(path))
	deepEqual(t, fo.Path, "data.db")
	deepEqual(t, *fo.NodeID, 7)

	opt := fo.Options()
	deepEqual(t, opt.Verbose, true)
	deepEqual(t, opt.Compression, CompressionZstd)
	deepEqual(t, opt.CompressionThreshold, 512)
	deepEqual(t, opt.InMemory, false)
}

func TestLoadOptionsMissingFile(t *testing.T) {
	fo := must(LoadOptions(filepath.Join(t.TempDir(), "nope.json")))
	deepEqual(t, fo, FileOptions{})
}

func TestLoadOptionsErrors(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"syntax.json":      `{"path": `,
		"type.json":        `{"verbose": "yes"}`,
		"compression.json": `{"compression": "brotli"}`,
	} {
		path := filepath.Join(dir, name)
		ensure(os.WriteFile(path, []byte(body), 0o644))
		if _, err := LoadOptions(path); err == nil {
			t.Errorf("%s: LoadOptions succeeded, wanted failure", name)
		}
	}
	_, err := LoadOptions(filepath.Join(dir, "compression.json"))
	require.ErrorIs(t, err, ErrValidation)
}

func TestParseCompression(t *testing.T) {
	for s, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "zstd": CompressionZstd, "lz4": CompressionLZ4} {
		deepEqual(t, must(ParseCompression(s)), want)
	}
	if _, err := ParseCompression("gzip"); !errors.Is(err, ErrValidation) {
		t.Errorf("ParseCompression(gzip) err = %v, wanted ErrValidation", err)
	}
}

func TestOpenConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docdb.json")
	dbPath := filepath.Join(dir, "data.db")
	ensure(os.WriteFile(path, []byte(`{"path": "`+filepath.ToSlash(dbPath)+`", "compression": "lz4", "json_values": true}`), 0o644))

	db := must(OpenConfig(path))
	defer db.Close()
	deepEqual(t, db.Bolt() != nil, true)
	deepEqual(t, db.codec.encoding, JSON)
	deepEqual(t, db.codec.compression, CompressionLZ4)
	deepEqual(t, db.codec.threshold, defaultCompressionThreshold)
}
