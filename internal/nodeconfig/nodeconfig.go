// Package nodeconfig loads and validates the YAML file that describes
// a node: its identity, the relays it may pull from, and the volumes
// it exposes. Declaration order of relayNodes and volumes is
// preserved, matching the ordered maps the rest of the system relies
// on for deterministic iteration.
package nodeconfig

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/michael-0acf4/null.fs/internal/backend"
	"github.com/michael-0acf4/null.fs/internal/nodeapi"
	"github.com/michael-0acf4/null.fs/internal/nodeerrors"
	"github.com/michael-0acf4/null.fs/internal/peer"
)

// User is one configured credential. Password is optional: a nil
// password means the account authenticates with an empty password.
type User struct {
	Name     string
	Password *string
}

// RelayNode is one entry of the relayNodes map, keyed by alias.
type RelayNode struct {
	Alias   string
	Address string
	Auth    User
}

// Volume is one entry of the volumes map, keyed by name.
type Volume struct {
	Name     string
	Allow    []string
	PullFrom []string
	Backend  backend.Backend
}

// NodeConfig is the fully loaded and validated configuration for one
// node.
type NodeConfig struct {
	Name        string
	Address     string
	Port        uint16
	RefreshSecs uint64
	Users       []User
	RelayNodes  []RelayNode
	Volumes     []Volume

	// BaseDir is the directory holding the config file; identifier,
	// snapshot state, and stash files are all kept alongside it.
	BaseDir string

	// Identity is this node's own UUID, set by the caller once the
	// identifier file has been loaded or created — Load itself has no
	// way to produce it, since the identifier is resolved from the
	// config's Name and BaseDir after Load returns.
	Identity string
}

const defaultRefreshSecs = 5

// wire mirrors the YAML document shape. RelayNodes and Volumes are
// decoded as yaml.MapSlice to preserve declaration order, which plain
// Go maps cannot do.
type wire struct {
	Name        string        `yaml:"name"`
	Address     string        `yaml:"address"`
	Port        uint16        `yaml:"port"`
	RefreshSecs *uint64       `yaml:"refreshSecs"`
	Users       []userWire    `yaml:"users"`
	RelayNodes  yaml.MapSlice `yaml:"relayNodes"`
	Volumes     yaml.MapSlice `yaml:"volumes"`
}

type userWire struct {
	Name     string  `yaml:"name"`
	Password *string `yaml:"password"`
}

type relayNodeWire struct {
	Address string   `yaml:"address"`
	Auth    userWire `yaml:"auth"`
}

type volumeWire struct {
	Allow    []string  `yaml:"allow"`
	PullFrom []string  `yaml:"pullFrom"`
	Store    storeWire `yaml:"store"`
}

type storeWire struct {
	Type string `yaml:"type"`
	Root string `yaml:"root"`
}

// Load reads and validates the configuration at path.
func Load(path string) (*NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(nodeerrors.ErrConfig, "reading %s: %v", path, err)
	}

	var w wire
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, errors.Wrapf(nodeerrors.ErrConfig, "parsing %s: %v", path, err)
	}

	cfg := &NodeConfig{
		Name:        w.Name,
		Address:     w.Address,
		Port:        w.Port,
		RefreshSecs: defaultRefreshSecs,
		BaseDir:     filepath.Dir(path),
	}
	if w.RefreshSecs != nil && *w.RefreshSecs > 0 {
		cfg.RefreshSecs = *w.RefreshSecs
	}
	for _, u := range w.Users {
		cfg.Users = append(cfg.Users, User{Name: u.Name, Password: u.Password})
	}

	relayNodes, err := parseRelayNodes(w.RelayNodes)
	if err != nil {
		return nil, errors.Wrapf(nodeerrors.ErrConfig, "relayNodes: %v", err)
	}
	cfg.RelayNodes = relayNodes

	volumes, err := parseVolumes(w.Volumes)
	if err != nil {
		return nil, errors.Wrapf(nodeerrors.ErrConfig, "volumes: %v", err)
	}
	cfg.Volumes = volumes

	if err := cfg.validate(); err != nil {
		return nil, errors.Wrapf(nodeerrors.ErrConfig, "%v", err)
	}
	return cfg, nil
}

func parseRelayNodes(slice yaml.MapSlice) ([]RelayNode, error) {
	out := make([]RelayNode, 0, len(slice))
	for _, item := range slice {
		alias, ok := item.Key.(string)
		if !ok {
			return nil, errors.Errorf("non-string alias %v", item.Key)
		}
		raw, err := yaml.Marshal(item.Value)
		if err != nil {
			return nil, err
		}
		var rw relayNodeWire
		if err := yaml.Unmarshal(raw, &rw); err != nil {
			return nil, errors.Wrapf(err, "alias %q", alias)
		}
		out = append(out, RelayNode{
			Alias:   alias,
			Address: rw.Address,
			Auth:    User{Name: rw.Auth.Name, Password: rw.Auth.Password},
		})
	}
	return out, nil
}

func parseVolumes(slice yaml.MapSlice) ([]Volume, error) {
	out := make([]Volume, 0, len(slice))
	for _, item := range slice {
		name, ok := item.Key.(string)
		if !ok {
			return nil, errors.Errorf("non-string volume name %v", item.Key)
		}
		raw, err := yaml.Marshal(item.Value)
		if err != nil {
			return nil, err
		}
		var vw volumeWire
		if err := yaml.Unmarshal(raw, &vw); err != nil {
			return nil, errors.Wrapf(err, "volume %q", name)
		}
		if vw.Store.Type != "local" {
			return nil, errors.Errorf("volume %q: unsupported store type %q", name, vw.Store.Type)
		}
		b, err := backend.NewLocal(name, vw.Store.Root)
		if err != nil {
			return nil, errors.Wrapf(err, "volume %q", name)
		}
		out = append(out, Volume{
			Name:     name,
			Allow:    vw.Allow,
			PullFrom: vw.PullFrom,
			Backend:  b,
		})
	}
	return out, nil
}

// validate enforces the invariants spec'd for a node configuration:
// no duplicate usernames, every allow-listed user must exist, and no
// relay may point back at this node's own host and port.
func (c *NodeConfig) validate() error {
	seen := make(map[string]bool, len(c.Users))
	known := make(map[string]bool, len(c.Users))
	for _, u := range c.Users {
		if seen[u.Name] {
			return errors.Errorf("duplicate user %q", u.Name)
		}
		seen[u.Name] = true
		known[u.Name] = true
	}

	for _, v := range c.Volumes {
		for _, name := range v.Allow {
			if !known[name] {
				return errors.Errorf("volume %q: allow references unknown user %q", v.Name, name)
			}
		}
	}

	ownPort := strconv.Itoa(int(c.Port))
	for _, rn := range c.RelayNodes {
		u, err := url.Parse(rn.Address)
		if err != nil {
			return errors.Wrapf(err, "relayNodes.%s: invalid address %q", rn.Alias, rn.Address)
		}
		if isSelfHost(u.Hostname()) && u.Port() == ownPort {
			return errors.Errorf("relayNodes.%s: points back at this node (%s)", rn.Alias, rn.Address)
		}
	}
	return nil
}

func isSelfHost(host string) bool {
	switch host {
	case "0.0.0.0", "127.0.0.1", "localhost":
		return true
	default:
		return false
	}
}

// Peer builds a client for the relay known by alias.
func (c *NodeConfig) Peer(alias string) (*peer.Peer, error) {
	for _, rn := range c.RelayNodes {
		if rn.Alias == alias {
			password := ""
			if rn.Auth.Password != nil {
				password = *rn.Auth.Password
			}
			return peer.New(rn.Alias, rn.Address, peer.Credentials{Name: rn.Auth.Name, Password: password})
		}
	}
	return nil, errors.Errorf("nodeconfig: unknown relay alias %q", alias)
}

// FindVolume returns the volume config with the given name.
func (c *NodeConfig) FindVolume(name string) (Volume, bool) {
	for _, v := range c.Volumes {
		if v.Name == name {
			return v, true
		}
	}
	return Volume{}, false
}

// Allow implements nodeapi.Directory: user is permitted on volume iff
// their credentials match a User listed in that volume's allow list.
func (c *NodeConfig) Allow(volume string, user nodeapi.User) (bool, error) {
	v, ok := c.FindVolume(volume)
	if !ok {
		return false, errors.Errorf("unknown volume %q", volume)
	}

	var configured *User
	for i := range c.Users {
		if c.Users[i].Name == user.Name {
			configured = &c.Users[i]
			break
		}
	}
	if configured == nil {
		return false, nodeerrors.ErrUnknownUser
	}
	password := ""
	if configured.Password != nil {
		password = *configured.Password
	}
	if password != user.Password {
		return false, nil
	}

	for _, allowed := range v.Allow {
		if allowed == user.Name {
			return true, nil
		}
	}
	return false, nil
}

// Volume implements nodeapi.Directory.
func (c *NodeConfig) Volume(name string) (backend.Backend, bool) {
	v, ok := c.FindVolume(name)
	if !ok {
		return nil, false
	}
	return v.Backend, true
}

// StateDir implements nodeapi.Directory.
func (c *NodeConfig) StateDir() string {
	return c.BaseDir
}

// NodeID implements nodeapi.Directory.
func (c *NodeConfig) NodeID() string {
	return c.Identity
}

// Info implements nodeapi.Directory.
func (c *NodeConfig) Info() nodeapi.InfoResponse {
	relayNodes := make([]nodeapi.RelayNodeInfo, 0, len(c.RelayNodes))
	for _, rn := range c.RelayNodes {
		relayNodes = append(relayNodes, nodeapi.RelayNodeInfo{Name: rn.Alias, Address: rn.Address})
	}
	volumes := make([]string, 0, len(c.Volumes))
	for _, v := range c.Volumes {
		volumes = append(volumes, v.Name)
	}
	return nodeapi.InfoResponse{Name: c.Name, RelayNodes: relayNodes, Volumes: volumes}
}

// BindAddress returns the host:port this node's server should bind.
func (c *NodeConfig) BindAddress() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}
