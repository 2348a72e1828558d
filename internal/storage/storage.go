// Package storage is the remote file store used for diary and log mirrors.
//
// Paths are two-level: a directory name and a file name inside it.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a file does not exist.
var ErrNotFound = errors.New("storage: file not found")

// Store is a minimal directory/file abstraction over remote storage.
type Store interface {
	DirectoryExists(ctx context.Context, dir string) (bool, error)
	CreateDirectory(ctx context.Context, dir string) error
	// AppendTextFile appends text to dir/name, creating the file if needed.
	AppendTextFile(ctx context.Context, dir, name, text string) error
	// UploadFile writes data to dir/name, replacing any existing file.
	UploadFile(ctx context.Context, dir, name string, data []byte, contentType string) error
	// ReadFile returns the contents of dir/name or ErrNotFound.
	ReadFile(ctx context.Context, dir, name string) ([]byte, error)
}

// EnsureDirectory creates dir when it does not exist yet.
func EnsureDirectory(ctx context.Context, s Store, dir string) (created bool, err error) {
	exists, err := s.DirectoryExists(ctx, dir)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := s.CreateDirectory(ctx, dir); err != nil {
		return false, err
	}
	return true, nil
}
