// Package model holds the data types shared by every replication
// subsystem: the node-kind/stat/file triple that a Backend produces, and
// the Command variants a Snapshot capture and a Stash exchange.
package model

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/michael-0acf4/null.fs/internal/vpath"
)

// NodeKind tags whether a File is a regular file (with a known size) or
// a directory.
type NodeKind struct {
	IsDir bool
	Size  uint64 // meaningful only when !IsDir
}

// File tagged as a regular file.
func FileKind(size uint64) NodeKind { return NodeKind{IsDir: false, Size: size} }

// Dir tagged as a directory.
func DirKind() NodeKind { return NodeKind{IsDir: true} }

// FileStat is the backend-reported metadata for a path. Modified is
// required and sourced from the backend's last-modified time in Unix
// milliseconds; Created and Accessed are best-effort and may be absent.
type FileStat struct {
	Node     NodeKind
	Modified int64 // Unix millis
	Created  *int64
	Accessed *int64
}

// IsFile reports whether the stat describes a regular file.
func (s FileStat) IsFile() bool { return !s.Node.IsDir }

// IsDir reports whether the stat describes a directory.
func (s FileStat) IsDir() bool { return s.Node.IsDir }

// File is a path together with its presentational type and its stat,
// as returned by a Backend listing or lookup.
type File struct {
	Path     vpath.VPath
	FileType FileType
	Stat     FileStat
}

// fileWire is the JSON-on-the-wire shape for File, matching the field
// names the Node API and Peer exchange.
type fileWire struct {
	Path     vpath.VPath `json:"path"`
	FileType FileType    `json:"fileType"`
	Stat     statWire    `json:"stat"`
}

type statWire struct {
	Node     nodeWire `json:"node"`
	Modified int64    `json:"modified"`
	Created  *int64   `json:"created,omitempty"`
	Accessed *int64   `json:"accessed,omitempty"`
}

type nodeWire struct {
	Type string  `json:"type"`
	Size *uint64 `json:"size,omitempty"`
}

// MarshalJSON renders File the way the Node API and Peer exchange it:
// NodeKind as a tagged {"type": "File"|"Dir", "size": ...}.
func (f File) MarshalJSON() ([]byte, error) {
	nw := nodeWire{Type: "Dir"}
	if !f.Stat.Node.IsDir {
		nw = nodeWire{Type: "File", Size: &f.Stat.Node.Size}
	}
	return json.Marshal(fileWire{
		Path:     f.Path,
		FileType: f.FileType,
		Stat: statWire{
			Node:     nw,
			Modified: f.Stat.Modified,
			Created:  f.Stat.Created,
			Accessed: f.Stat.Accessed,
		},
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (f *File) UnmarshalJSON(data []byte) error {
	var w fileWire
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.Wrap(err, "model.File.UnmarshalJSON")
	}
	kind := NodeKind{IsDir: w.Stat.Node.Type == "Dir"}
	if !kind.IsDir && w.Stat.Node.Size != nil {
		kind.Size = *w.Stat.Node.Size
	}
	f.Path = w.Path
	f.FileType = w.FileType
	f.Stat = FileStat{
		Node:     kind,
		Modified: w.Stat.Modified,
		Created:  w.Stat.Created,
		Accessed: w.Stat.Accessed,
	}
	return nil
}

// Equal reports structural equality: same path, type, node kind and
// modified time. Created and Accessed are not compared.
func (f File) Equal(g File) bool {
	if !f.Path.Equal(g.Path) {
		return false
	}
	if f.FileType != g.FileType {
		return false
	}
	return f.Stat.Node == g.Stat.Node && f.Stat.Modified == g.Stat.Modified
}

// CommandKind tags the three mutation commands a Snapshot capture emits
// and a Stash/apply loop consumes.
type CommandKind string

const (
	CommandDelete CommandKind = "Delete"
	CommandWrite  CommandKind = "Write"
	CommandTouch  CommandKind = "Touch"
)

// Command is a tagged variant: Delete removes a path, Write creates a
// file or directory, Touch signals that an existing file's content may
// have changed and should be verified by hash.
type Command struct {
	Kind CommandKind
	File File
}

func Delete(f File) Command { return Command{Kind: CommandDelete, File: f} }
func Write(f File) Command  { return Command{Kind: CommandWrite, File: f} }
func Touch(f File) Command  { return Command{Kind: CommandTouch, File: f} }

// Equal reports structural equality between two commands: same kind
// acting on the same file. Used by the capture's command set to
// deduplicate commands as they are inserted.
func (c Command) Equal(d Command) bool {
	return c.Kind == d.Kind && c.File.Equal(d.File)
}

type commandWire struct {
	Kind CommandKind `json:"kind"`
	File File        `json:"file"`
}

func (c Command) MarshalJSON() ([]byte, error) {
	return json.Marshal(commandWire{Kind: c.Kind, File: c.File})
}

func (c *Command) UnmarshalJSON(data []byte) error {
	var w commandWire
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.Wrap(err, "model.Command.UnmarshalJSON")
	}
	c.Kind = w.Kind
	c.File = w.File
	return nil
}

// String renders the command the way it would appear in a log line,
// e.g. "Write @/vol/a/b.txt".
func (c Command) String() string {
	return string(c.Kind) + " " + c.File.Path.String()
}
