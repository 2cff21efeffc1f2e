// Package stash implements the durable, append-only command log each
// node keeps per volume: commands pulled from a peer are stashed here
// before being applied, so a crash between pull and apply loses
// nothing — unapplied rows simply get unstashed again next cycle.
package stash

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // sqlite driver registration

	"github.com/michael-0acf4/null.fs/internal/model"
	"github.com/michael-0acf4/null.fs/internal/nodeerrors"
)

// timestampLayout has a fixed-width fractional second, so that the
// text ordering used by Unstash's ORDER BY is also chronological.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// maxOpenConns bounds the pool so writes across volumes serialize
// through a small, fixed number of connections rather than each
// volume's traffic opening its own.
const maxOpenConns = 5

// statePending is the state a freshly stashed row starts in. stateDone
// is the state MarkDone transitions it to. Both transitions are idempotent.
const (
	statePending = 0
	stateDone    = 5
)

// StashedCommand is one row of the log, as returned by Unstash.
type StashedCommand struct {
	ID        string
	Hash      string
	Command   model.Command
	Timestamp time.Time
	Volume    string
	State     int
}

// Stash wraps a single-file SQLite database holding the Command table.
// Crash-safety is whatever the embedded engine provides by default; no
// additional fsync discipline is layered on top.
type Stash struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures its schema.
func Open(path string) (*Stash, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "stash: opening %s", path)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS Command (
			id TEXT NOT NULL PRIMARY KEY,
			hash TEXT NOT NULL,
			command TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			volume TEXT NOT NULL,
			state INTEGER NOT NULL
		)
	`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "stash: creating schema")
	}
	return &Stash{db: db}, nil
}

func (s *Stash) Close() error {
	return s.db.Close()
}

// Append stashes each command under volume. Duplicate content hashes
// across different rows are expected and permitted: they represent
// the same change observed more than once.
func (s *Stash) Append(ctx context.Context, commands []model.Command, volume string) error {
	for _, c := range commands {
		hash, err := contentHash(c)
		if err != nil {
			return errors.Wrap(err, "stash: hashing command")
		}
		cmdJSON, err := json.Marshal(c)
		if err != nil {
			return errors.Wrap(err, "stash: encoding command")
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO Command (id, hash, command, timestamp, volume, state)
			VALUES (?, ?, ?, ?, ?, ?)
		`, uuid.NewString(), hash, string(cmdJSON), time.Now().UTC().Format(timestampLayout), volume, statePending)
		if err != nil {
			return errors.Wrapf(nodeerrors.ErrStash, "inserting row: %v", err)
		}
	}
	return nil
}

// Unstash selects every pending row for volume ordered by timestamp,
// applies contiguous-subsequence reduction over the hash sequence, and
// returns the surviving rows in reduced order.
func (s *Stash) Unstash(ctx context.Context, volume string) ([]StashedCommand, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hash, command, timestamp, volume, state
		FROM Command WHERE state = ? AND volume = ?
		ORDER BY timestamp ASC
	`, statePending, volume)
	if err != nil {
		return nil, errors.Wrapf(nodeerrors.ErrStash, "querying pending rows: %v", err)
	}
	defer rows.Close()

	var all []StashedCommand
	var hashes []string
	for rows.Next() {
		var (
			id, hash, cmdJSON, ts, rowVolume string
			state                            int
		)
		if err := rows.Scan(&id, &hash, &cmdJSON, &ts, &rowVolume, &state); err != nil {
			return nil, errors.Wrap(err, "stash: scanning row")
		}
		timestamp, err := time.Parse(timestampLayout, ts)
		if err != nil {
			return nil, errors.Wrapf(err, "stash: bad timestamp for hash %s", hash)
		}
		var command model.Command
		if err := json.Unmarshal([]byte(cmdJSON), &command); err != nil {
			return nil, errors.Wrapf(err, "stash: parsing stored command for hash %s", hash)
		}
		all = append(all, StashedCommand{
			ID:        id,
			Hash:      hash,
			Command:   command,
			Timestamp: timestamp,
			Volume:    rowVolume,
			State:     state,
		})
		hashes = append(hashes, hash)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "stash: iterating rows")
	}

	indices := reduceIndices(hashes)
	out := make([]StashedCommand, len(indices))
	for i, idx := range indices {
		out[i] = all[idx]
	}
	return out, nil
}

// MarkDone transitions row to the done state. Idempotent: marking an
// already-done row done again is a no-op.
func (s *Stash) MarkDone(ctx context.Context, row StashedCommand) error {
	_, err := s.db.ExecContext(ctx, `UPDATE Command SET state = ? WHERE id = ?`, stateDone, row.ID)
	if err != nil {
		return errors.Wrapf(nodeerrors.ErrStash, "marking row %s done: %v", row.ID, err)
	}
	return nil
}

// contentHash is a stable fingerprint for a command: hex(SHA-256(decimal(hash64(command)))).
func contentHash(c model.Command) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	h := fnv.New64a()
	_, _ = h.Write(data)
	sum := sha256.Sum256([]byte(strconv.FormatUint(h.Sum64(), 10)))
	return fmt.Sprintf("%x", sum), nil
}
