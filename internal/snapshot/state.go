package snapshot

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/michael-0acf4/null.fs/internal/model"
)

// State is the per-(local-node, peer-node) view a Capture diffs
// against. It is persisted to disk between captures so that a restart
// resumes from the last known tree rather than re-announcing every
// file as new.
type State struct {
	// Store maps a file's VPath display form to the last File
	// observed for it, used to detect content changes between
	// captures.
	Store *OrderedMap[model.File] `json:"store"`

	// Dirs maps a directory's VPath display form to the sorted list
	// of entries observed there last capture, used to compute
	// added/removed sets.
	Dirs *OrderedMap[[]model.File] `json:"dirs"`

	// Hashes is reserved for a future full-content-hash cache keyed
	// by path; the capture algorithm never reads or writes it today
	// (change detection compares each file's modified time in Store,
	// and Backend.ShallowHash is not called by capture either).
	Hashes *OrderedMap[string] `json:"hashes"`

	// commands is the working set built up over one capture; it is
	// never persisted.
	commands *commandSet
}

// NewState returns an empty state, as used for a never-before-seen
// caller.
func NewState() *State {
	return &State{
		Store:    NewOrderedMap[model.File](),
		Dirs:     NewOrderedMap[[]model.File](),
		Hashes:   NewOrderedMap[string](),
		commands: &commandSet{},
	}
}

// UpdateOnChange records file in the store, returning true if this is
// the first time path has been seen or its modified time differs from
// what was stored. file must describe a regular file.
func (s *State) UpdateOnChange(file model.File) (bool, error) {
	if file.Stat.IsDir() {
		return false, errors.New("snapshot: expected a file, got a directory")
	}
	key := file.Path.String()
	if prev, ok := s.Store.Get(key); ok {
		if prev.Stat.Modified != file.Stat.Modified {
			s.Store.Set(key, file)
			return true, nil
		}
		return false, nil
	}
	s.Store.Set(key, file)
	return true, nil
}

// finalize prunes the command set: every Delete removes its path from
// Store and Dirs, and any Touch for a path that was also Written in
// this same cycle is dropped (a new file cannot also be "touched").
func (s *State) finalize() {
	created := make(map[string]bool)
	for _, c := range s.commands.Slice() {
		switch c.Kind {
		case model.CommandDelete:
			key := c.File.Path.String()
			s.Store.Delete(key)
			s.Dirs.Delete(key)
		case model.CommandWrite:
			created[c.File.Path.String()] = true
		}
	}
	s.commands.RetainTouchesNotIn(created)
}

// commandsInOrder returns the finalized command set in insertion order.
func (s *State) commandsInOrder() []model.Command {
	return s.commands.Slice()
}

// loadState reads state from path. If the file does not exist and
// createIfNone is true, an empty state is persisted first.
func loadState(path string, createIfNone bool) (*State, error) {
	if createIfNone {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			logrus.WithField("path", path).Warn("creating snapshot state file")
			if err := saveState(path, NewState()); err != nil {
				return nil, err
			}
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "snapshot: reading state %s", path)
	}

	state := NewState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, errors.Wrapf(err, "snapshot: parsing state %s", path)
	}
	state.commands = &commandSet{}
	return state, nil
}

// saveState persists state to path as JSON.
func saveState(path string, state *State) error {
	logrus.WithField("path", path).Debug("saving snapshot state")
	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "snapshot: encoding state")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "snapshot: writing state %s", path)
	}
	return nil
}
