package nodeapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michael-0acf4/null.fs/internal/backend"
)

type fakeDirectory struct {
	volumes  map[string]backend.Backend
	users    map[string]string
	allowed  map[string]bool // "volume:user" -> allowed
	stateDir string
}

func (d *fakeDirectory) Allow(volume string, user User) (bool, error) {
	pass, known := d.users[user.Name]
	if !known || pass != user.Password {
		return false, nil
	}
	return d.allowed[volume+":"+user.Name], nil
}

func (d *fakeDirectory) Volume(name string) (backend.Backend, bool) {
	b, ok := d.volumes[name]
	return b, ok
}

func (d *fakeDirectory) StateDir() string { return d.stateDir }

func (d *fakeDirectory) NodeID() string { return "node-1-uuid" }

func (d *fakeDirectory) Info() InfoResponse {
	volumes := make([]string, 0, len(d.volumes))
	for name := range d.volumes {
		volumes = append(volumes, name)
	}
	return InfoResponse{Name: "node-1", Volumes: volumes}
}

func newFixture(t *testing.T) (*fakeDirectory, string, *httptest.Server) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))
	b, err := backend.NewLocal("vol", root)
	require.NoError(t, err)

	dir := &fakeDirectory{
		volumes:  map[string]backend.Backend{"vol": b},
		users:    map[string]string{"u": "p"},
		allowed:  map[string]bool{"vol:u": true},
		stateDir: t.TempDir(),
	}
	srv := httptest.NewServer(NewServer(dir).Handler())
	t.Cleanup(srv.Close)
	return dir, root, srv
}

func get(t *testing.T, srv *httptest.Server, path, user, pass string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestNodeAPIIndexIsUnauthenticated(t *testing.T) {
	_, _, srv := newFixture(t)
	resp := get(t, srv, "/", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNodeAPIRejectsUnauthorizedUser(t *testing.T) {
	_, _, srv := newFixture(t)
	resp := get(t, srv, "/v1/dir?path=%40/vol", "u", "wrong")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNodeAPIDirListsEntries(t *testing.T) {
	_, _, srv := newFixture(t)
	resp := get(t, srv, "/v1/dir?path=%40/vol", "u", "p")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
}

func TestNodeAPIDownloadServesContent(t *testing.T) {
	_, _, srv := newFixture(t)
	resp := get(t, srv, "/v1/download?path=%40/vol/a.txt", "u", "p")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestNodeAPIHashMatchesContent(t *testing.T) {
	_, _, srv := newFixture(t)
	resp := get(t, srv, "/v1/hash?path=%40/vol/a.txt", "u", "p")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hash string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&hash))
	assert.Len(t, hash, 64)
}

func TestNodeAPIExistsReportsFalseForMissingPath(t *testing.T) {
	_, _, srv := newFixture(t)
	resp := get(t, srv, "/v1/exists?path=%40/vol/missing.txt", "u", "p")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var exists bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&exists))
	assert.False(t, exists)
}

func TestNodeAPICommandsReturnsInitialSnapshotAsWrites(t *testing.T) {
	dir, _, srv := newFixture(t)
	dir.allowed["vol:u"] = true
	resp := get(t, srv, "/v1/commands?volume=vol&node_id=node-2", "u", "p")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cmds []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cmds))
	assert.NotEmpty(t, cmds)
	for _, c := range cmds {
		assert.Equal(t, "Write", c["kind"])
	}
}

func TestNodeAPIInfoListsVolumes(t *testing.T) {
	_, _, srv := newFixture(t)
	resp := get(t, srv, "/v1/info", "u", "p")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info InfoResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Contains(t, info.Volumes, "vol")
}

func TestNodeAPIUnknownVolumeReturnsBadRequest(t *testing.T) {
	dir, _, srv := newFixture(t)
	dir.allowed["nope:u"] = true
	resp := get(t, srv, "/v1/dir?path=%40/nope", "u", "p")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
