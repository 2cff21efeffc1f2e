package stash

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/michael-0acf4/null.fs/internal/model"
	"github.com/michael-0acf4/null.fs/internal/vpath"
)

func newStash(t *testing.T) *Stash {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "stash.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fileAt(t *testing.T, p string) model.File {
	t.Helper()
	parsed, err := vpath.FromText(p)
	require.NoError(t, err)
	return model.File{Path: parsed, Stat: model.FileStat{Node: model.FileKind(1), Modified: 1}}
}

func TestStashAppendAndUnstash(t *testing.T) {
	ctx := context.Background()
	s := newStash(t)

	cmds := []model.Command{
		model.Write(fileAt(t, "@/vol/a.txt")),
		model.Delete(fileAt(t, "@/vol/b.txt")),
	}
	require.NoError(t, s.Append(ctx, cmds, "vol"))

	rows, err := s.Unstash(ctx, "vol")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.True(t, cmds[0].Equal(rows[0].Command))
	require.True(t, cmds[1].Equal(rows[1].Command))
}

func TestStashUnstashScopedToVolume(t *testing.T) {
	ctx := context.Background()
	s := newStash(t)

	require.NoError(t, s.Append(ctx, []model.Command{model.Write(fileAt(t, "@/vol1/a.txt"))}, "vol1"))
	require.NoError(t, s.Append(ctx, []model.Command{model.Write(fileAt(t, "@/vol2/a.txt"))}, "vol2"))

	rows, err := s.Unstash(ctx, "vol1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestStashMarkDoneExcludesFromUnstash(t *testing.T) {
	ctx := context.Background()
	s := newStash(t)

	require.NoError(t, s.Append(ctx, []model.Command{model.Write(fileAt(t, "@/vol/a.txt"))}, "vol"))
	rows, err := s.Unstash(ctx, "vol")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	done := rows[0]

	require.NoError(t, s.MarkDone(ctx, done))

	rows, err = s.Unstash(ctx, "vol")
	require.NoError(t, err)
	require.Empty(t, rows)

	// Marking an already-done row done again is a no-op.
	require.NoError(t, s.MarkDone(ctx, done))
}

func TestStashAppendAllowsDuplicateHashes(t *testing.T) {
	ctx := context.Background()
	s := newStash(t)

	f := fileAt(t, "@/vol/a.txt")
	require.NoError(t, s.Append(ctx, []model.Command{model.Write(f), model.Write(f)}, "vol"))

	// Both rows are stored, each with the same content hash.
	stored, err := s.db.QueryContext(ctx, `SELECT hash FROM Command WHERE volume = ?`, "vol")
	require.NoError(t, err)
	defer stored.Close()
	var hashes []string
	for stored.Next() {
		var h string
		require.NoError(t, stored.Scan(&h))
		hashes = append(hashes, h)
	}
	require.NoError(t, stored.Err())
	require.Len(t, hashes, 2)
	require.Equal(t, hashes[0], hashes[1])

	// Unstash collapses the back-to-back repeat into a single row.
	rows, err := s.Unstash(ctx, "vol")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
