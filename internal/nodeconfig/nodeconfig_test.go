package nodeconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michael-0acf4/null.fs/internal/nodeapi"
)

func writeConfig(t *testing.T, yamlBody string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))
	return path
}

func validConfig(t *testing.T, storeRoot string) string {
	return writeConfig(t, fmt.Sprintf(`
name: node-a
address: 0.0.0.0
port: 8080
refreshSecs: 10
users:
  - name: alice
    password: s3cret
relayNodes:
  peer-b:
    address: http://peer-b.example:8081
    auth:
      name: alice
      password: s3cret
volumes:
  photos:
    allow: [alice]
    pullFrom: [peer-b]
    store:
      type: local
      root: %s
`, storeRoot))
}

func TestLoadValidConfig(t *testing.T) {
	path := validConfig(t, t.TempDir())
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "node-a", cfg.Name)
	assert.Equal(t, uint64(10), cfg.RefreshSecs)
	require.Len(t, cfg.RelayNodes, 1)
	assert.Equal(t, "peer-b", cfg.RelayNodes[0].Alias)
	require.Len(t, cfg.Volumes, 1)
	assert.Equal(t, "photos", cfg.Volumes[0].Name)
}

func TestLoadDefaultsRefreshSecs(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(`
name: node-a
address: 0.0.0.0
port: 8080
users: []
relayNodes: {}
volumes:
  vol:
    allow: []
    pullFrom: []
    store:
      type: local
      root: %s
`, t.TempDir()))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(defaultRefreshSecs), cfg.RefreshSecs)
}

func TestLoadRejectsDuplicateUsers(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(`
name: node-a
address: 0.0.0.0
port: 8080
users:
  - name: alice
  - name: alice
relayNodes: {}
volumes:
  vol:
    allow: []
    pullFrom: []
    store:
      type: local
      root: %s
`, t.TempDir()))
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnknownAllowUser(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(`
name: node-a
address: 0.0.0.0
port: 8080
users: []
relayNodes: {}
volumes:
  vol:
    allow: [ghost]
    pullFrom: []
    store:
      type: local
      root: %s
`, t.TempDir()))
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsSelfReferencingRelay(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(`
name: node-a
address: 0.0.0.0
port: 8080
users: []
relayNodes:
  self:
    address: http://localhost:8080
    auth:
      name: alice
volumes:
  vol:
    allow: []
    pullFrom: []
    store:
      type: local
      root: %s
`, t.TempDir()))
	_, err := Load(path)
	require.Error(t, err)
}

func TestAllowRequiresMatchingPassword(t *testing.T) {
	path := validConfig(t, t.TempDir())
	cfg, err := Load(path)
	require.NoError(t, err)

	ok, err := cfg.Allow("photos", nodeapi.User{Name: "alice", Password: "s3cret"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cfg.Allow("photos", nodeapi.User{Name: "alice", Password: "wrong"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllowUnknownUserIsError(t *testing.T) {
	path := validConfig(t, t.TempDir())
	cfg, err := Load(path)
	require.NoError(t, err)

	_, err = cfg.Allow("photos", nodeapi.User{Name: "ghost", Password: ""})
	require.Error(t, err)
}

func TestPeerResolvesByAlias(t *testing.T) {
	path := validConfig(t, t.TempDir())
	cfg, err := Load(path)
	require.NoError(t, err)

	p, err := cfg.Peer("peer-b")
	require.NoError(t, err)
	assert.Equal(t, "peer-b", p.Name)

	_, err = cfg.Peer("nope")
	require.Error(t, err)
}

func TestInfoListsRelaysAndVolumes(t *testing.T) {
	path := validConfig(t, t.TempDir())
	cfg, err := Load(path)
	require.NoError(t, err)

	info := cfg.Info()
	assert.Equal(t, "node-a", info.Name)
	require.Len(t, info.RelayNodes, 1)
	assert.Equal(t, "peer-b", info.RelayNodes[0].Name)
	assert.Contains(t, info.Volumes, "photos")
}
