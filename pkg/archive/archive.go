package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no report has the requested name.
	ErrNotFound = errors.New("archive: report not found")

	// ErrInvalidName is returned for empty names and names containing a
	// path separator.
	ErrInvalidName = errors.New("archive: invalid report name")
)

// Store persists reports by name.
type Store interface {
	// Put stores data under name, replacing any previous report.
	Put(ctx context.Context, name string, data []byte) error

	// Get returns the report stored under name, or ErrNotFound.
	Get(ctx context.Context, name string) ([]byte, error)

	// List returns every stored report, sorted by name.
	List(ctx context.Context) ([]Entry, error)
}

// Entry describes one stored report.
type Entry struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Backends accepted by Open.
const (
	BackendDisk   = "disk"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// Config selects and configures a backend.
type Config struct {
	// Backend is "disk", "s3" or "memory". Empty selects memory.
	Backend string

	// Dir is the DiskStore directory.
	Dir string

	// Bucket, Prefix, Region and Endpoint configure S3Store. Endpoint is
	// optional and enables path-style addressing for S3-compatible servers.
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

// Open creates the Store described by cfg.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendDisk:
		if cfg.Dir == "" {
			return nil, errors.New("archive: disk backend requires a directory")
		}
		return NewDiskStore(cfg.Dir)
	case BackendS3:
		if cfg.Bucket == "" {
			return nil, errors.New("archive: s3 backend requires a bucket")
		}
		return NewS3Store(NewS3Client(cfg.Region, cfg.Endpoint), cfg.Bucket, cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("archive: unknown backend %q", cfg.Backend)
	}
}

// PutJSON encodes v and stores it under name.
func PutJSON(ctx context.Context, s Store, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: encode %s: %w", name, err)
	}
	return s.Put(ctx, name, data)
}

// GetJSON loads the report stored under name into v.
func GetJSON(ctx context.Context, s Store, name string, v any) error {
	data, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("archive: decode %s: %w", name, err)
	}
	return nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
