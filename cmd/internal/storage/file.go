package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"affittochiaro/cmd/security/seal"
)

// FileKV stores each key in its own file under dir.
//
// Files are written atomically (temp file + rename) with mode 0600. When a
// Sealer is configured every value is sealed with the key as associated
// data, and unsealed files are rejected on Load.
type FileKV struct {
	dir    string
	sealer *seal.Sealer
}

// FileOption configures a FileKV.
type FileOption func(*FileKV)

// WithSealer encrypts values at rest.
func WithSealer(s *seal.Sealer) FileOption {
	return func(f *FileKV) { f.sealer = s }
}

// NewFileKV creates dir (0700) if needed.
func NewFileKV(dir string, opts ...FileOption) (*FileKV, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage: empty file dir")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("storage: create dir: %w", err)
	}
	f := &FileKV{dir: dir}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

func (f *FileKV) path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+".dat")
}

func (f *FileKV) Load(_ context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	b, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %q: %w", key, err)
	}

	if f.sealer == nil {
		return b, nil
	}
	if !seal.IsSealed(b) {
		return nil, fmt.Errorf("storage: %q: %w", key, seal.ErrInvalidSealed)
	}
	plain, err := f.sealer.Open(key, b)
	if err != nil {
		return nil, fmt.Errorf("storage: open %q: %w", key, err)
	}
	return plain, nil
}

func (f *FileKV) Save(_ context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}

	if f.sealer != nil {
		sealed, err := f.sealer.Seal(key, value)
		if err != nil {
			return err
		}
		value = sealed
	}

	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("storage: chmod: %w", err)
	}
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("storage: write %q: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("storage: sync %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close %q: %w", key, err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		return fmt.Errorf("storage: rename %q: %w", key, err)
	}
	return nil
}

func (f *FileKV) Delete(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete %q: %w", key, err)
	}
	return nil
}
