package snapshot

import "github.com/michael-0acf4/null.fs/internal/model"

// commandSet is an insertion-ordered set of commands, deduplicating on
// structural equality the way an IndexSet<Command> would. Capture runs
// touch small directories per cycle, so linear dedup is cheap enough.
type commandSet struct {
	items []model.Command
}

func (s *commandSet) Insert(c model.Command) {
	for _, existing := range s.items {
		if existing.Equal(c) {
			return
		}
	}
	s.items = append(s.items, c)
}

// RetainTouchesNotIn drops every Touch command whose file path appears
// in created.
func (s *commandSet) RetainTouchesNotIn(created map[string]bool) {
	kept := s.items[:0:0]
	for _, c := range s.items {
		if c.Kind == model.CommandTouch && created[c.File.Path.String()] {
			continue
		}
		kept = append(kept, c)
	}
	s.items = kept
}

func (s *commandSet) Slice() []model.Command {
	out := make([]model.Command, len(s.items))
	copy(out, s.items)
	return out
}
