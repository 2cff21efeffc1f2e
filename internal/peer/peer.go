// Package peer implements a stateless HTTP client for one relay: the
// Node API endpoints a Synchronizer calls to pull commands from, and
// apply commands against, a single remote node.
package peer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/michael-0acf4/null.fs/internal/model"
	"github.com/michael-0acf4/null.fs/internal/nodeerrors"
	"github.com/michael-0acf4/null.fs/internal/vpath"
)

// Credentials is the HTTP Basic auth pair every request to the relay
// carries.
type Credentials struct {
	Name     string
	Password string
}

// Peer is a client bound to one relay's base URL and credentials. It
// never retries: the Synchronizer is responsible for failing over to
// a different peer.
type Peer struct {
	Name    string
	BaseURL *url.URL
	Auth    Credentials
	Client  *http.Client
}

// New builds a Peer from a base URL string. The URL must be absolute;
// it is joined with each endpoint's relative path at call time.
func New(name, baseURL string, auth Credentials) (*Peer, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "peer: parsing relay address %q", baseURL)
	}
	return &Peer{Name: name, BaseURL: u, Auth: auth, Client: http.DefaultClient}, nil
}

func (p *Peer) endpoint(relPath string, query url.Values) (string, error) {
	ref, err := url.Parse(relPath)
	if err != nil {
		return "", err
	}
	resolved := p.BaseURL.ResolveReference(ref)
	if query != nil {
		resolved.RawQuery = query.Encode()
	}
	return resolved.String(), nil
}

func (p *Peer) newRequest(ctx context.Context, relPath string, query url.Values) (*http.Request, error) {
	target, err := p.endpoint(relPath, query)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(p.Auth.Name, p.Auth.Password)
	return req, nil
}

func readBody(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return ""
	}
	return string(body)
}

// IsAlive reports whether the relay answers its root path with a
// successful status. An unreachable relay (transport failure) and a
// non-2xx answer both report false with a nil error; only a failure to
// build the request surfaces as err.
func (p *Peer) IsAlive(ctx context.Context) (bool, error) {
	req, err := p.newRequest(ctx, "/", nil)
	if err != nil {
		return false, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return false, nil
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// Pull fetches the commands the relay has accumulated for volume,
// keyed by callerID, since the last time this caller pulled.
func (p *Peer) Pull(ctx context.Context, volume, callerID string) ([]model.Command, error) {
	req, err := p.newRequest(ctx, "v1/commands", url.Values{
		"volume":  {volume},
		"node_id": {callerID},
	})
	if err != nil {
		return nil, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(nodeerrors.ErrRemoteFailure, "pull from %s: %v", p.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Wrapf(nodeerrors.ErrRemoteFailure, "pull from %s: status %d: %s", p.Name, resp.StatusCode, readBody(resp))
	}

	var commands []model.Command
	if err := json.NewDecoder(resp.Body).Decode(&commands); err != nil {
		return nil, errors.Wrapf(nodeerrors.ErrRemoteParse, "pull from %s: %v", p.Name, err)
	}
	return commands, nil
}

// Download fetches the raw bytes at target from the relay.
func (p *Peer) Download(ctx context.Context, target vpath.VPath) ([]byte, error) {
	req, err := p.newRequest(ctx, "v1/download", url.Values{"path": {target.String()}})
	if err != nil {
		return nil, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(nodeerrors.ErrRemoteFailure, "download %s from %s: %v", target.String(), p.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Wrapf(nodeerrors.ErrRemoteFailure, "download %s from %s: status %d: %s", target.String(), p.Name, resp.StatusCode, readBody(resp))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "peer: reading download body for %s", target.String())
	}
	return data, nil
}

// AskForHash fetches the relay's content hash for path, used to short
// circuit a download when both sides already agree.
func (p *Peer) AskForHash(ctx context.Context, target vpath.VPath) (string, error) {
	req, err := p.newRequest(ctx, "v1/hash", url.Values{"path": {target.String()}})
	if err != nil {
		return "", err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return "", errors.Wrapf(nodeerrors.ErrRemoteFailure, "hash %s from %s: %v", target.String(), p.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Wrapf(nodeerrors.ErrRemoteFailure, "hash %s from %s: status %d: %s", target.String(), p.Name, resp.StatusCode, readBody(resp))
	}

	var hash string
	if err := json.NewDecoder(resp.Body).Decode(&hash); err != nil {
		return "", errors.Wrapf(nodeerrors.ErrRemoteParse, "hash %s from %s: %v", target.String(), p.Name, err)
	}
	return hash, nil
}
