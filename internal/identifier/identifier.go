// Package identifier manages each node's persistent identity: a UUID
// generated once on first boot and reused thereafter. The node's name
// selects the file (".id-<name>"), so the name itself is not part of
// the persisted content.
package identifier

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// NodeIdentifier is the stable identity a node presents to peers as
// node_id when pulling commands, so that each caller sees only the
// commands it hasn't already consumed.
type NodeIdentifier struct {
	UUID string `json:"uuid"`
}

// Path returns the identifier file path for name under dir.
func Path(dir, name string) string {
	return filepath.Join(dir, fmt.Sprintf(".id-%s", name))
}

// LoadOrCreate reads the identifier at path, generating and persisting
// a fresh UUID if the file doesn't exist yet.
func LoadOrCreate(path string) (*NodeIdentifier, error) {
	id, err := load(path)
	if err == nil {
		return id, nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "identifier: reading %s", path)
	}

	fresh := &NodeIdentifier{UUID: uuid.NewString()}
	if err := save(path, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

func load(path string) (*NodeIdentifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var id NodeIdentifier
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, errors.Wrapf(err, "identifier: parsing %s", path)
	}
	return &id, nil
}

func save(path string, id *NodeIdentifier) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "identifier: creating %s", filepath.Dir(path))
	}
	data, err := json.Marshal(id)
	if err != nil {
		return errors.Wrap(err, "identifier: encoding")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "identifier: writing %s", path)
	}
	return nil
}
