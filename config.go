package docdb

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// FileOptions is the on-disk form of Options. The file is JSON with
// comments and trailing commas allowed.
type FileOptions struct {
	Path                 string `json:"path,omitempty"`
	InMemory             bool   `json:"in_memory,omitempty"`
	Verbose              bool   `json:"verbose,omitempty"`
	MmapSize             int    `json:"mmap_size,omitempty"`
	Compression          string `json:"compression,omitempty"`
	CompressionThreshold int    `json:"compression_threshold,omitempty"`
	JSONValues           bool   `json:"json_values,omitempty"`
	NodeID               *int   `json:"node_id,omitempty"`
}

// LoadOptions reads options from a config file. A missing file yields the
// defaults.
func LoadOptions(path string) (FileOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileOptions{}, nil
		}
		return FileOptions{}, fmt.Errorf("docdb: reading config: %w", err)
	}
	return parseOptions(data, path)
}

func parseOptions(data []byte, path string) (FileOptions, error) {
	var fo FileOptions
	std, err := hujson.Standardize(data)
	if err != nil {
		return FileOptions{}, fmt.Errorf("docdb: %s: invalid config: %w", path, err)
	}
	if err := json.Unmarshal(std, &fo); err != nil {
		return FileOptions{}, fmt.Errorf("docdb: %s: invalid config: %w", path, err)
	}
	if _, err := ParseCompression(fo.Compression); err != nil {
		return FileOptions{}, fmt.Errorf("docdb: %s: %w", path, err)
	}
	return fo, nil
}

// Options converts the file form, leaving Logger and IsTesting unset.
func (fo FileOptions) Options() Options {
	comp, _ := ParseCompression(fo.Compression)
	return Options{
		Verbose:              fo.Verbose,
		MmapSize:             fo.MmapSize,
		InMemory:             fo.InMemory,
		Compression:          comp,
		CompressionThreshold: fo.CompressionThreshold,
		JSONValues:           fo.JSONValues,
		NodeID:               fo.NodeID,
	}
}

// OpenConfig opens the database a config file describes.
func OpenConfig(path string) (*DB, error) {
	fo, err := LoadOptions(path)
	if err != nil {
		return nil, err
	}
	return Open(fo.Path, fo.Options())
}

func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return CompressionNone, validationErrf("unknown compression %q", s)
	}
}
