// Package synchronizer drives the convergence loop: per volume, pull
// commands from a live peer and stash them, then apply whatever is
// stashed against the local backend.
package synchronizer

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/michael-0acf4/null.fs/internal/backend"
	"github.com/michael-0acf4/null.fs/internal/peer"
	"github.com/michael-0acf4/null.fs/internal/stash"
)

// VolumeSync bundles everything a sync cycle needs for one volume: its
// backend, its durable command log, and the peers it may pull from
// (resolved from that volume's pull_from list).
type VolumeSync struct {
	Name    string
	Backend backend.Backend
	Stash   *stash.Stash
	Peers   []*peer.Peer
}

// Synchronizer owns the periodic pull/apply loop across every
// resolved volume.
type Synchronizer struct {
	NodeID   string
	Volumes  []*VolumeSync
	Interval time.Duration
}

// New validates and wraps the resolved (volume, peer) pairs. An empty
// volume list is a startup failure: there is nothing to synchronize.
func New(nodeID string, volumes []*VolumeSync, interval time.Duration) (*Synchronizer, error) {
	if len(volumes) == 0 {
		return nil, errors.New("synchronizer: resolved no volumes to synchronize")
	}
	if interval < time.Second {
		interval = time.Second
	}
	return &Synchronizer{NodeID: nodeID, Volumes: volumes, Interval: interval}, nil
}

// Run loops until ctx is cancelled. A cancellation interrupts the
// sleep between cycles and any in-flight HTTP request; a cycle in
// progress is not stopped between rows, it runs to its end with its
// remaining peer requests failing on the cancelled context, and Run
// returns after it. Partial command application may remain — unapplied
// rows stay at state 0 and retry next cycle.
func (s *Synchronizer) Run(ctx context.Context) error {
	// Stagger the first tick so that many nodes started at once don't
	// hammer each other's /v1/commands in lockstep.
	jitter := time.Duration(rand.Int63n(int64(s.Interval)))
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(jitter):
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		log.Debug("synchronizer: starting cycle")
		s.cycle(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.Interval):
		}
	}
}

func (s *Synchronizer) cycle(ctx context.Context) {
	volumes := shuffledVolumes(s.Volumes)

	log.Debug("synchronizer: pull phase")
	for _, v := range volumes {
		s.pullPhase(ctx, v)
	}

	log.Debug("synchronizer: apply phase")
	for _, v := range volumes {
		s.applyPhase(ctx, v)
	}
}

func (s *Synchronizer) pullPhase(ctx context.Context, v *VolumeSync) {
	for _, p := range shuffledPeers(v.Peers) {
		alive, err := p.IsAlive(ctx)
		if err != nil || !alive {
			continue
		}

		commands, err := p.Pull(ctx, v.Name, s.NodeID)
		if err != nil {
			log.WithError(err).Warnf("pull @/%s from %s failed", v.Name, p.Name)
			continue
		}
		if err := v.Stash.Append(ctx, commands, v.Name); err != nil {
			log.WithError(err).Errorf("stash append for @/%s failed", v.Name)
			continue
		}
		return
	}
}

func (s *Synchronizer) applyPhase(ctx context.Context, v *VolumeSync) {
	for _, p := range shuffledPeers(v.Peers) {
		alive, err := p.IsAlive(ctx)
		if err != nil || !alive {
			continue
		}
		if err := s.applyCommands(ctx, v, p); err != nil {
			log.WithError(err).Warnf("apply @/%s from %s failed", v.Name, p.Name)
			continue
		}
		return
	}
}

func shuffledVolumes(volumes []*VolumeSync) []*VolumeSync {
	out := make([]*VolumeSync, len(volumes))
	copy(out, volumes)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func shuffledPeers(peers []*peer.Peer) []*peer.Peer {
	out := make([]*peer.Peer, len(peers))
	copy(out, peers)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
