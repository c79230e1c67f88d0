package credstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrFileCorrupt is returned when the credential file is not a YAML mapping.
var ErrFileCorrupt = errors.New("credential file corrupt")

// FileKV keeps keys in a single YAML document on disk. Every write replaces the
// file through a temp file and rename, so a batch lands entirely or not at all.
type FileKV struct {
	path string
	mu   sync.Mutex
}

type fileDocument struct {
	Version int               `yaml:"version"`
	Entries map[string]string `yaml:"entries"`
}

const fileDocumentVersion = 1

// NewFileKV returns a FileKV at path. The file is created on first write.
func NewFileKV(path string) *FileKV {
	return &FileKV{path: path}
}

// Path returns the backing file location.
func (f *FileKV) Path() string {
	return f.path
}

func (f *FileKV) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return "", false, err
	}
	v, ok := doc.Entries[key]
	return v, ok, nil
}

func (f *FileKV) MultiSet(ctx context.Context, pairs []Pair) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil && !errors.Is(err, ErrFileCorrupt) {
		return err
	}
	for _, p := range pairs {
		doc.Entries[p.Key] = p.Value
	}
	return f.write(doc)
}

func (f *FileKV) MultiGet(ctx context.Context, keys []string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := doc.Entries[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (f *FileKV) MultiRemove(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		if !errors.Is(err, ErrFileCorrupt) {
			return err
		}
		// A corrupt file holds nothing recoverable; replace it with an empty one.
		return f.write(doc)
	}
	removed := false
	for _, k := range keys {
		if _, ok := doc.Entries[k]; ok {
			delete(doc.Entries, k)
			removed = true
		}
	}
	if !removed {
		return nil
	}
	return f.write(doc)
}

// read returns an empty document when the file does not exist. On
// ErrFileCorrupt the returned document is empty and usable for a rewrite.
func (f *FileKV) read() (fileDocument, error) {
	doc := fileDocument{Version: fileDocumentVersion, Entries: map[string]string{}}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return doc, nil
		}
		return doc, fmt.Errorf("read credential file: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}

	var parsed fileDocument
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return doc, fmt.Errorf("%w: %v", ErrFileCorrupt, err)
	}
	if parsed.Version != fileDocumentVersion {
		return doc, fmt.Errorf("%w: unsupported version %d", ErrFileCorrupt, parsed.Version)
	}
	if parsed.Entries != nil {
		doc.Entries = parsed.Entries
	}
	return doc, nil
}

func (f *FileKV) write(doc fileDocument) error {
	doc.Version = fileDocumentVersion
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".fitauth-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp credential file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp credential file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("replace credential file: %w", err)
	}
	return nil
}
