// Package backend implements the Backend capability: a polymorphic
// file-store accepting and returning VPaths only. Today the only
// variant is a local directory, mirroring a single host-filesystem
// subtree.
package backend

import (
	"context"

	"github.com/michael-0acf4/null.fs/internal/model"
	"github.com/michael-0acf4/null.fs/internal/vpath"
)

// Backend is the capability a Synchronizer and a Node API handler drive
// against a volume's storage. Every method takes and returns VPaths;
// implementations own the translation to and from host paths.
type Backend interface {
	// Dir lists one level below p. If p resolves to a file, Dir
	// returns an empty list rather than an error.
	Dir(ctx context.Context, p vpath.VPath) ([]model.File, error)

	// Stats returns the metadata for p.
	Stats(ctx context.Context, p vpath.VPath) (model.FileStat, error)

	// Exists reports whether p resolves to anything.
	Exists(ctx context.Context, p vpath.VPath) (bool, error)

	// Read returns the raw bytes at p. p must resolve to a file.
	Read(ctx context.Context, p vpath.VPath) ([]byte, error)

	// Write creates file.Path. For a directory stat, it creates the
	// directory (and any missing parents). For a file stat, it
	// ensures the parent directory exists, then writes bytes,
	// truncating or creating as needed.
	Write(ctx context.Context, file model.File, bytes []byte) error

	// Delete removes file.Path, recursively if it is a directory.
	// Deleting an absent path is not an error.
	Delete(ctx context.Context, file model.File) error

	Mkdir(ctx context.Context, p vpath.VPath) error
	Copy(ctx context.Context, src, dst vpath.VPath) error
	Rename(ctx context.Context, src, dst vpath.VPath) error

	// Hash returns the lowercase hex SHA-256 of p's content: the file
	// bytes for a file, or the concatenation of
	// (child vpath display || child hash) over Dir(p) for a directory.
	Hash(ctx context.Context, p vpath.VPath) (string, error)

	// ShallowHash is a cheap mtime/size proxy for Hash: it never reads
	// file content. Useful to short-circuit a convergence check before
	// paying for a full Hash or a download.
	ShallowHash(ctx context.Context, file model.File) (string, error)
}
