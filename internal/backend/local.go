package backend

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/michael-0acf4/null.fs/internal/model"
	"github.com/michael-0acf4/null.fs/internal/nodeerrors"
	"github.com/michael-0acf4/null.fs/internal/vpath"
)

const (
	localDirPerm  = 0o755
	localFilePerm = 0o644
	hashBlockSize = 8 * 1024

	// hashFanout bounds how many children's hashes are computed
	// concurrently for one directory.
	hashFanout = 16
)

// extendedPrefix is the Windows UNC-style prefix that filepath.Abs /
// filepath.EvalSymlinks may leave on a canonicalized path.
const extendedPrefix = `\\?\`

// Local is the reference Backend variant: a single host directory
// mirrored under a named volume, @/<name>/a/b/c resolving to
// root/a/b/c. It relies entirely on host filesystem semantics: no
// additional locking is layered over what the OS already guarantees
// for a single process operating on one subtree.
type Local struct {
	name string
	root string
}

// NewLocal trims name and canonicalizes root: symlinks are resolved
// and, if the result carries a Windows extended-length prefix, that
// prefix is stripped.
func NewLocal(name, root string) (*Local, error) {
	name = strings.TrimSpace(name)
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "backend: resolving root %q", root)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "backend: canonicalizing root %q", root)
	}
	return &Local{name: name, root: stripExtendedPrefix(canonical)}, nil
}

func stripExtendedPrefix(p string) string {
	return strings.TrimPrefix(p, extendedPrefix)
}

// resolve maps @/<name>/a/b/c to root/a/b/c, rejecting any VPath whose
// first segment is not this volume's name.
func (l *Local) resolve(p vpath.VPath) (string, error) {
	vol, err := p.VolumeName()
	if err != nil {
		return "", err
	}
	if vol != l.name {
		return "", errors.Wrapf(nodeerrors.ErrWrongVolume, "expected @/%s, got %s", l.name, p.String())
	}
	segs := p.Segments()[1:]
	return filepath.Join(append([]string{l.root}, segs...)...), nil
}

// toVirtual is the inverse of resolve: a host path under root becomes
// @/<name>/<relative segments>.
func (l *Local) toVirtual(hostPath string) (vpath.VPath, error) {
	hostPath = stripExtendedPrefix(hostPath)
	rel, err := filepath.Rel(l.root, hostPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return vpath.VPath{}, errors.Wrapf(nodeerrors.ErrBadPrefix, "could not make sense of %s under root %s", hostPath, l.root)
	}
	base, err := vpath.FromText("@/" + l.name)
	if err != nil {
		return vpath.VPath{}, err
	}
	if rel == "." {
		return base, nil
	}
	return base.ExtendFromRelative(filepath.ToSlash(rel))
}

func (l *Local) Dir(ctx context.Context, p vpath.VPath) ([]model.File, error) {
	dir, err := l.resolve(p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(nodeerrors.ErrNotFound, "dir %s", p.String())
		}
		return nil, errors.Wrapf(err, "backend: stat %s", p.String())
	}
	if !info.IsDir() {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "backend: reading directory %s", p.String())
	}

	results := make([]model.File, 0, len(entries))
	for _, entry := range entries {
		childHost := filepath.Join(dir, entry.Name())
		childPath, err := l.toVirtual(childHost)
		if err != nil {
			return nil, err
		}
		stat, err := l.Stats(ctx, childPath)
		if err != nil {
			return nil, err
		}
		results = append(results, model.File{
			Path:     childPath,
			FileType: model.InferFileType(childPath),
			Stat:     stat,
		})
	}
	return results, nil
}

func (l *Local) Stats(ctx context.Context, p vpath.VPath) (model.FileStat, error) {
	host, err := l.resolve(p)
	if err != nil {
		return model.FileStat{}, err
	}
	info, err := os.Stat(host)
	if err != nil {
		if os.IsNotExist(err) {
			return model.FileStat{}, errors.Wrapf(nodeerrors.ErrNotFound, "stats %s", p.String())
		}
		return model.FileStat{}, errors.Wrapf(err, "backend: stats %s", p.String())
	}
	kind := model.FileKind(uint64(info.Size()))
	if info.IsDir() {
		kind = model.DirKind()
	}
	return model.FileStat{
		Node:     kind,
		Modified: info.ModTime().UnixMilli(),
	}, nil
}

func (l *Local) Exists(ctx context.Context, p vpath.VPath) (bool, error) {
	host, err := l.resolve(p)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(host)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "backend: exists %s", p.String())
	}
	return true, nil
}

func (l *Local) Read(ctx context.Context, p vpath.VPath) ([]byte, error) {
	host, err := l.resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(host)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(nodeerrors.ErrNotFound, "read %s", p.String())
		}
		return nil, errors.Wrapf(err, "backend: reading %s", p.String())
	}
	return data, nil
}

func (l *Local) Write(ctx context.Context, file model.File, data []byte) error {
	host, err := l.resolve(file.Path)
	if err != nil {
		return err
	}
	if file.Stat.IsDir() {
		if err := os.MkdirAll(host, localDirPerm); err != nil {
			return errors.Wrapf(err, "backend: writing dir %s", file.Path.String())
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(host), localDirPerm); err != nil {
		return errors.Wrapf(err, "backend: preparing parent of %s", file.Path.String())
	}
	if err := os.WriteFile(host, data, localFilePerm); err != nil {
		return errors.Wrapf(err, "backend: writing %s", file.Path.String())
	}
	return nil
}

func (l *Local) Delete(ctx context.Context, file model.File) error {
	host, err := l.resolve(file.Path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(host); os.IsNotExist(err) {
		return nil
	}
	if file.Stat.IsDir() {
		if err := os.RemoveAll(host); err != nil {
			return errors.Wrapf(err, "backend: removing %s", file.Path.String())
		}
		return nil
	}
	if err := os.Remove(host); err != nil {
		return errors.Wrapf(err, "backend: removing %s", file.Path.String())
	}
	return nil
}

func (l *Local) Mkdir(ctx context.Context, p vpath.VPath) error {
	host, err := l.resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(host, localDirPerm); err != nil {
		return errors.Wrapf(err, "backend: mkdir %s", p.String())
	}
	return nil
}

func (l *Local) Copy(ctx context.Context, src, dst vpath.VPath) error {
	srcHost, err := l.resolve(src)
	if err != nil {
		return err
	}
	dstHost, err := l.resolve(dst)
	if err != nil {
		return err
	}
	in, err := os.Open(srcHost)
	if err != nil {
		return errors.Wrapf(err, "backend: copy %s to %s", src.String(), dst.String())
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dstHost), localDirPerm); err != nil {
		return errors.Wrapf(err, "backend: copy %s to %s", src.String(), dst.String())
	}
	out, err := os.OpenFile(dstHost, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, localFilePerm)
	if err != nil {
		return errors.Wrapf(err, "backend: copy %s to %s", src.String(), dst.String())
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "backend: copy %s to %s", src.String(), dst.String())
	}
	return nil
}

func (l *Local) Rename(ctx context.Context, src, dst vpath.VPath) error {
	srcHost, err := l.resolve(src)
	if err != nil {
		return err
	}
	dstHost, err := l.resolve(dst)
	if err != nil {
		return err
	}
	if err := os.Rename(srcHost, dstHost); err != nil {
		return errors.Wrapf(err, "backend: rename %s to %s", src.String(), dst.String())
	}
	return nil
}

func (l *Local) Hash(ctx context.Context, p vpath.VPath) (string, error) {
	host, err := l.resolve(p)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(host)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Wrapf(nodeerrors.ErrNotFound, "hash %s", p.String())
		}
		return "", errors.Wrapf(err, "backend: hash %s", p.String())
	}

	if info.IsDir() {
		children, err := l.Dir(ctx, p)
		if err != nil {
			return "", err
		}
		childHashes := make([]string, len(children))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(hashFanout)
		for i, child := range children {
			i, child := i, child
			g.Go(func() error {
				childHash, err := l.Hash(gctx, child.Path)
				if err != nil {
					return err
				}
				childHashes[i] = childHash
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return "", err
		}

		h := sha256.New()
		for i, child := range children {
			io.WriteString(h, child.Path.String())
			io.WriteString(h, childHashes[i])
		}
		return fmt.Sprintf("%x", h.Sum(nil)), nil
	}

	h := sha256.New()

	f, err := os.Open(host)
	if err != nil {
		return "", errors.Wrapf(err, "backend: hash %s", p.String())
	}
	defer f.Close()

	buf := make([]byte, hashBlockSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Wrapf(err, "backend: hash %s", p.String())
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func (l *Local) ShallowHash(ctx context.Context, file model.File) (string, error) {
	host, err := l.resolve(file.Path)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(host) {
		return "", errors.Wrapf(nodeerrors.ErrBadPrefix, "shallow_hash: resolved path %s is relative", host)
	}

	h := sha256.New()
	io.WriteString(h, strconv.FormatInt(file.Stat.Modified, 10))

	if file.Stat.IsDir() {
		children, err := l.Dir(ctx, file.Path)
		if err != nil {
			return "", err
		}
		for _, child := range children {
			childHash, err := l.ShallowHash(ctx, child)
			if err != nil {
				return "", err
			}
			io.WriteString(h, childHash)
		}
	} else {
		io.WriteString(h, strconv.FormatUint(file.Stat.Node.Size, 10))
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
