package synchronizer

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/michael-0acf4/null.fs/internal/model"
	"github.com/michael-0acf4/null.fs/internal/peer"
)

// applyCommands drains v's pending stash rows and runs each against
// v's backend, asking p for content when a Write or Touch needs
// bytes. A row that fails to apply is left pending and retried next
// cycle; it is not marked done.
func (s *Synchronizer) applyCommands(ctx context.Context, v *VolumeSync, p *peer.Peer) error {
	rows, err := v.Stash.Unstash(ctx, v.Name)
	if err != nil {
		return errors.Wrap(err, "synchronizer: unstashing")
	}

	for _, row := range rows {
		if err := s.runCommand(ctx, v, p, row.Command); err != nil {
			log.WithError(err).Warnf("apply %s on @/%s failed", row.Command, v.Name)
			continue
		}
		if err := v.Stash.MarkDone(ctx, row); err != nil {
			log.WithError(err).Errorf("marking row done for @/%s failed", v.Name)
		}
	}
	return nil
}

func (s *Synchronizer) runCommand(ctx context.Context, v *VolumeSync, p *peer.Peer, c model.Command) error {
	switch c.Kind {
	case model.CommandDelete:
		return v.Backend.Delete(ctx, c.File)
	case model.CommandWrite:
		if c.File.Stat.IsDir() {
			return v.Backend.Mkdir(ctx, c.File.Path)
		}
		return s.writeFile(ctx, v, p, c.File)
	case model.CommandTouch:
		return s.touchFile(ctx, v, p, c.File)
	default:
		return errors.Errorf("synchronizer: unknown command kind %q", c.Kind)
	}
}

// writeFile materializes a newly-announced file: if local content
// already matches the announced hash, nothing is downloaded.
func (s *Synchronizer) writeFile(ctx context.Context, v *VolumeSync, p *peer.Peer, file model.File) error {
	ok, err := s.converged(ctx, v, p, file)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return s.download(ctx, v, p, file)
}

// touchFile handles a changed-content signal for a path the receiver
// may already have: delete any stale local copy, then re-download
// unless the hash already converges.
func (s *Synchronizer) touchFile(ctx context.Context, v *VolumeSync, p *peer.Peer, file model.File) error {
	ok, err := s.converged(ctx, v, p, file)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if err := v.Backend.Delete(ctx, file); err != nil {
		log.WithError(err).Debugf("touch: no local copy of %s to delete", file.Path.String())
	}
	return s.download(ctx, v, p, file)
}

// converged reports whether the local backend already has content
// matching file's announced hash, so the caller can skip downloading.
func (s *Synchronizer) converged(ctx context.Context, v *VolumeSync, p *peer.Peer, file model.File) (bool, error) {
	exists, err := v.Backend.Exists(ctx, file.Path)
	if err != nil {
		return false, errors.Wrap(err, "synchronizer: checking existence")
	}
	if !exists {
		return false, nil
	}
	localHash, err := v.Backend.Hash(ctx, file.Path)
	if err != nil {
		return false, errors.Wrap(err, "synchronizer: hashing local file")
	}
	remoteHash, err := p.AskForHash(ctx, file.Path)
	if err != nil {
		return false, errors.Wrap(err, "synchronizer: asking peer for hash")
	}
	return localHash == remoteHash, nil
}

func (s *Synchronizer) download(ctx context.Context, v *VolumeSync, p *peer.Peer, file model.File) error {
	data, err := p.Download(ctx, file.Path)
	if err != nil {
		return errors.Wrap(err, "synchronizer: downloading")
	}
	return v.Backend.Write(ctx, file, data)
}
