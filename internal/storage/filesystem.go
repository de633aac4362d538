/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Filesystem stores objects as files below a root directory. Keys are
// slash separated paths relative to the root; an empty root resolves keys
// against the working directory.
type Filesystem struct {
	root   string
	logger zerolog.Logger
}

// NewFilesystem creates a filesystem-backed store.
func NewFilesystem(root string, logger zerolog.Logger) *Filesystem {
	return &Filesystem{root: root, logger: logger}
}

func (f *Filesystem) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if f.root == "" {
		return clean, nil
	}
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes storage root", key)
	}
	return filepath.Join(f.root, clean), nil
}

// Get reads the file at key.
func (f *Filesystem) Get(ctx context.Context, key string) ([]byte, error) {
	full, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", full, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	f.logger.Debug().Str("path", full).Int("bytes", len(data)).Msg("filesystem storage: object read")
	return data, nil
}

// Put writes data to key, creating parent directories.
func (f *Filesystem) Put(ctx context.Context, key string, data []byte) error {
	full, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	f.logger.Debug().Str("path", full).Int("bytes", len(data)).Msg("filesystem storage: object stored")
	return nil
}
