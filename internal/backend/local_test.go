package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michael-0acf4/null.fs/internal/model"
	"github.com/michael-0acf4/null.fs/internal/vpath"
)

func newLocal(t *testing.T) (*Local, string) {
	t.Helper()
	root := t.TempDir()
	l, err := NewLocal("vol", root)
	require.NoError(t, err)
	return l, root
}

func mustPath(t *testing.T, s string) vpath.VPath {
	t.Helper()
	p, err := vpath.FromText(s)
	require.NoError(t, err)
	return p
}

func TestLocalWriteReadDelete(t *testing.T) {
	ctx := context.Background()
	l, _ := newLocal(t)

	p := mustPath(t, "@/vol/a/b.txt")
	stat := model.FileStat{Node: model.FileKind(5), Modified: 1}
	require.NoError(t, l.Write(ctx, model.File{Path: p, Stat: stat}, []byte("hello")))

	exists, err := l.Exists(ctx, p)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := l.Read(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	require.NoError(t, l.Delete(ctx, model.File{Path: p, Stat: stat}))
	exists, err = l.Exists(ctx, p)
	require.NoError(t, err)
	assert.False(t, exists)

	// Deleting an already-absent path is not an error.
	require.NoError(t, l.Delete(ctx, model.File{Path: p, Stat: stat}))
}

func TestLocalWriteDir(t *testing.T) {
	ctx := context.Background()
	l, root := newLocal(t)

	p := mustPath(t, "@/vol/a/b")
	require.NoError(t, l.Write(ctx, model.File{Path: p, Stat: model.FileStat{Node: model.DirKind()}}, nil))

	info, err := os.Stat(filepath.Join(root, "a", "b"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLocalDirRejectsWrongVolume(t *testing.T) {
	ctx := context.Background()
	l, _ := newLocal(t)
	_, err := l.Dir(ctx, mustPath(t, "@/other/a"))
	require.Error(t, err)
}

func TestLocalDirOnFileReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	l, _ := newLocal(t)
	p := mustPath(t, "@/vol/a.txt")
	require.NoError(t, l.Write(ctx, model.File{Path: p, Stat: model.FileStat{Node: model.FileKind(0)}}, nil))

	entries, err := l.Dir(ctx, p)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalDirLists(t *testing.T) {
	ctx := context.Background()
	l, _ := newLocal(t)
	require.NoError(t, l.Write(ctx, model.File{Path: mustPath(t, "@/vol/a.txt"), Stat: model.FileStat{Node: model.FileKind(3)}}, []byte("abc")))
	require.NoError(t, l.Write(ctx, model.File{Path: mustPath(t, "@/vol/b.txt"), Stat: model.FileStat{Node: model.FileKind(3)}}, []byte("xyz")))

	entries, err := l.Dir(ctx, mustPath(t, "@/vol"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestLocalHashMatchesForIdenticalContent(t *testing.T) {
	ctx := context.Background()
	l, _ := newLocal(t)
	a := mustPath(t, "@/vol/a.txt")
	b := mustPath(t, "@/vol/b.txt")
	require.NoError(t, l.Write(ctx, model.File{Path: a, Stat: model.FileStat{Node: model.FileKind(3)}}, []byte("abc")))
	require.NoError(t, l.Write(ctx, model.File{Path: b, Stat: model.FileStat{Node: model.FileKind(3)}}, []byte("abc")))

	hashA, err := l.Hash(ctx, a)
	require.NoError(t, err)
	hashB, err := l.Hash(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, hashA, hashB)
	assert.Len(t, hashA, 64)
}

func TestLocalHashDirDependsOnChildPaths(t *testing.T) {
	ctx := context.Background()
	l, _ := newLocal(t)
	require.NoError(t, l.Write(ctx, model.File{Path: mustPath(t, "@/vol/dir1/a.txt"), Stat: model.FileStat{Node: model.FileKind(3)}}, []byte("abc")))
	require.NoError(t, l.Write(ctx, model.File{Path: mustPath(t, "@/vol/dir2/a.txt"), Stat: model.FileStat{Node: model.FileKind(3)}}, []byte("abc")))

	hash1, err := l.Hash(ctx, mustPath(t, "@/vol/dir1"))
	require.NoError(t, err)
	hash2, err := l.Hash(ctx, mustPath(t, "@/vol/dir2"))
	require.NoError(t, err)
	assert.NotEqual(t, hash1, hash2)
}

func TestLocalShallowHashDoesNotReadContent(t *testing.T) {
	ctx := context.Background()
	l, _ := newLocal(t)
	p := mustPath(t, "@/vol/a.txt")
	require.NoError(t, l.Write(ctx, model.File{Path: p, Stat: model.FileStat{Node: model.FileKind(3)}}, []byte("abc")))

	stat, err := l.Stats(ctx, p)
	require.NoError(t, err)
	file := model.File{Path: p, Stat: stat}

	h1, err := l.ShallowHash(ctx, file)
	require.NoError(t, err)

	// Overwrite the content but keep the same stat (mtime, size): the
	// shallow hash must agree since it never reads the bytes.
	require.NoError(t, os.WriteFile(filepath.Join(l.root, "a.txt"), []byte("xyz"), localFilePerm))

	h2, err := l.ShallowHash(ctx, file)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestLocalCopyAndRename(t *testing.T) {
	ctx := context.Background()
	l, _ := newLocal(t)
	src := mustPath(t, "@/vol/src.txt")
	require.NoError(t, l.Write(ctx, model.File{Path: src, Stat: model.FileStat{Node: model.FileKind(5)}}, []byte("hello")))

	dst := mustPath(t, "@/vol/dst.txt")
	require.NoError(t, l.Copy(ctx, src, dst))
	data, err := l.Read(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	renamed := mustPath(t, "@/vol/renamed.txt")
	require.NoError(t, l.Rename(ctx, dst, renamed))
	exists, err := l.Exists(ctx, dst)
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = l.Exists(ctx, renamed)
	require.NoError(t, err)
	assert.True(t, exists)
}
