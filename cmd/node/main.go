// Command node runs one null.fs replication node: it serves the Node
// API for peers to pull from, and runs the Synchronizer that pulls
// from and applies commands against the relays configured for each
// volume.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/michael-0acf4/null.fs/internal/identifier"
	"github.com/michael-0acf4/null.fs/internal/nodeapi"
	"github.com/michael-0acf4/null.fs/internal/nodeconfig"
	"github.com/michael-0acf4/null.fs/internal/stash"
	"github.com/michael-0acf4/null.fs/internal/synchronizer"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: node <config-path>")
		os.Exit(1)
	}

	cfg, err := nodeconfig.Load(os.Args[1])
	if err != nil {
		log.WithError(err).Error("loading configuration")
		os.Exit(2)
	}

	id, err := identifier.LoadOrCreate(identifier.Path(cfg.BaseDir, cfg.Name))
	if err != nil {
		log.WithError(err).Error("loading node identifier")
		os.Exit(2)
	}
	log.WithFields(log.Fields{"node": cfg.Name, "id": id.UUID}).Info("node identity resolved")
	cfg.Identity = id.UUID

	volumes, closeStash, err := resolveVolumes(cfg, id.UUID)
	if err != nil {
		log.WithError(err).Error("resolving volumes")
		os.Exit(2)
	}
	defer closeStash()

	sync, err := synchronizer.New(id.UUID, volumes, time.Duration(cfg.RefreshSecs)*time.Second)
	if err != nil {
		log.WithError(err).Error("starting synchronizer")
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Info("shutdown signal received")
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return nodeapi.Serve(gctx, cfg.BindAddress(), cfg)
	})
	g.Go(func() error {
		return sync.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("node exited with error")
		os.Exit(2)
	}
}

// resolveVolumes builds the (backend, peers) pair the Synchronizer
// needs for every configured volume, all sharing the single stash
// database for this node — the Command table's volume column, not
// file-per-volume separation, is what scopes rows to a volume.
func resolveVolumes(cfg *nodeconfig.NodeConfig, nodeUUID string) ([]*synchronizer.VolumeSync, func(), error) {
	s, err := stash.Open(filepath.Join(cfg.BaseDir, fmt.Sprintf(".stash-%s.db", nodeUUID)))
	if err != nil {
		return nil, nil, err
	}
	closeStash := func() { _ = s.Close() }

	var volumes []*synchronizer.VolumeSync
	for _, v := range cfg.Volumes {
		vs := &synchronizer.VolumeSync{Name: v.Name, Backend: v.Backend, Stash: s}
		for _, alias := range v.PullFrom {
			p, err := cfg.Peer(alias)
			if err != nil {
				closeStash()
				return nil, nil, err
			}
			vs.Peers = append(vs.Peers, p)
		}
		volumes = append(volumes, vs)
	}

	return volumes, closeStash, nil
}
