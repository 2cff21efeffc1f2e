// Package snapshot implements the per-volume state a node keeps about
// what a given caller has already seen, and the capture algorithm that
// diffs the live tree against that state to produce a list of
// Commands the caller has not yet consumed.
package snapshot

import (
	"context"
	"sort"

	"github.com/michael-0acf4/null.fs/internal/backend"
	"github.com/michael-0acf4/null.fs/internal/model"
	"github.com/michael-0acf4/null.fs/internal/vpath"
)

// Capture walks a volume's backend and diffs it against the state
// persisted at statePath, keyed by whichever caller that state file
// belongs to.
type Capture struct {
	Backend backend.Backend
}

// NewCapture binds a capture run to a backend.
func NewCapture(b backend.Backend) *Capture {
	return &Capture{Backend: b}
}

// Run loads state from statePath (creating it empty if absent),
// recursively diffs volume's tree against it, persists the updated
// state, and returns the commands needed to bring the caller's last
// known view up to date with the current one.
func (c *Capture) Run(ctx context.Context, volume string, statePath string) ([]model.Command, error) {
	state, err := loadState(statePath, true)
	if err != nil {
		return nil, err
	}

	root, err := vpath.FromText("@/" + volume)
	if err != nil {
		return nil, err
	}

	if err := c.capturePath(ctx, state, root); err != nil {
		return nil, err
	}

	state.finalize()
	if err := saveState(statePath, state); err != nil {
		return nil, err
	}
	return state.commandsInOrder(), nil
}

func (c *Capture) capturePath(ctx context.Context, state *State, p vpath.VPath) error {
	stat, err := c.Backend.Stats(ctx, p)
	if err != nil {
		return err
	}
	if !stat.IsDir() {
		return nil
	}

	curr, err := c.Backend.Dir(ctx, p)
	if err != nil {
		return err
	}
	sort.Slice(curr, func(i, j int) bool {
		return curr[i].Path.String() < curr[j].Path.String()
	})

	key := p.String()
	prev, hasPrev := state.Dirs.Get(key)

	allNew := !hasPrev
	if hasPrev {
		prevByPath := make(map[string]model.File, len(prev))
		for _, f := range prev {
			prevByPath[f.Path.String()] = f
		}
		currByPath := make(map[string]model.File, len(curr))
		for _, f := range curr {
			currByPath[f.Path.String()] = f
		}

		for _, f := range curr {
			if _, ok := prevByPath[f.Path.String()]; !ok {
				state.commands.Insert(model.Write(f))
			}
		}
		for _, f := range prev {
			if _, ok := currByPath[f.Path.String()]; !ok {
				state.commands.Insert(model.Delete(f))
			}
		}
	}

	state.Dirs.Set(key, curr)

	for _, entry := range curr {
		if allNew {
			state.commands.Insert(model.Write(entry))
		}

		if entry.Stat.IsFile() {
			changed, err := state.UpdateOnChange(entry)
			if err != nil {
				return err
			}
			if changed {
				state.commands.Insert(model.Touch(entry))
			}
		} else if err := c.capturePath(ctx, state, entry.Path); err != nil {
			return err
		}
	}

	return nil
}
