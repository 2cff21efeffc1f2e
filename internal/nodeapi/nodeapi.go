// Package nodeapi implements the HTTP surface a node exposes to its
// peers: the same endpoints a Peer client calls, served over chi with
// per-volume Basic auth.
package nodeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/michael-0acf4/null.fs/internal/backend"
	"github.com/michael-0acf4/null.fs/internal/model"
	"github.com/michael-0acf4/null.fs/internal/nodeerrors"
	"github.com/michael-0acf4/null.fs/internal/snapshot"
	"github.com/michael-0acf4/null.fs/internal/vpath"
)

const shutdownGrace = 5 * time.Second

// User is a Basic auth credential pair presented on a request.
type User struct {
	Name     string
	Password string
}

// Directory abstracts the node's configuration for the handlers:
// which volume backs a name, and whether a user may reach it. This
// keeps nodeapi independent of how the configuration is loaded.
type Directory interface {
	// Allow reports whether user may access volume. It returns
	// nodeerrors.ErrUnknownUser if the user isn't configured at all.
	Allow(volume string, user User) (bool, error)

	// Volume returns the backend for volume, or ok=false if no such
	// volume is configured on this node.
	Volume(volume string) (backend.Backend, bool)

	// StateDir is where per-caller snapshot state files are kept.
	StateDir() string

	// NodeID is this node's own identifier, used to namespace
	// per-caller snapshot state files.
	NodeID() string

	// Info is the informational payload served at /v1/info.
	Info() InfoResponse
}

// InfoResponse is the /v1/info payload: this node's identity and the
// relays and volumes it knows about.
type InfoResponse struct {
	Name       string          `json:"name"`
	RelayNodes []RelayNodeInfo `json:"relayNodes"`
	Volumes    []string        `json:"volumes"`
}

// RelayNodeInfo is one entry of InfoResponse.RelayNodes.
type RelayNodeInfo struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Server wires Directory into an http.Handler.
type Server struct {
	reg Directory
}

// NewServer builds the chi router for a node's Node API.
func NewServer(dir Directory) *Server {
	return &Server{reg: dir}
}

// Handler returns the http.Handler to pass to http.Server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.index)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/commands", s.commands)
		r.Get("/dir", s.handleDir)
		r.Get("/hash", s.hash)
		r.Get("/download", s.download)
		r.Get("/exists", s.exists)
		r.Get("/info", s.info)
	})
	return r
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Server is up and running"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("nodeapi: encoding response")
	}
}

// checkAuth extracts Basic auth from r and validates it against the
// given volume. It writes a 400 response and returns false if the
// request should not proceed.
func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request, volume string) bool {
	username, password, ok := r.BasicAuth()
	if !ok {
		writeError(w, http.StatusBadRequest, nodeerrors.ErrUnknownUser)
		return false
	}
	allowed, err := s.reg.Allow(volume, User{Name: username, Password: password})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	if !allowed {
		writeError(w, http.StatusBadRequest, nodeerrors.ErrUnauthorized)
		return false
	}
	return true
}

// pathParam parses the "path" query parameter shared by dir, hash,
// download and exists, and resolves its owning volume's backend.
func (s *Server) pathParam(w http.ResponseWriter, r *http.Request) (vpath.VPath, backend.Backend, bool) {
	raw := r.URL.Query().Get("path")
	p, err := vpath.FromText(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return vpath.VPath{}, nil, false
	}
	volume, err := p.VolumeName()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return vpath.VPath{}, nil, false
	}
	if !s.checkAuth(w, r, volume) {
		return vpath.VPath{}, nil, false
	}
	b, ok := s.reg.Volume(volume)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("volume %q not found", volume))
		return vpath.VPath{}, nil, false
	}
	return p, b, true
}

func (s *Server) commands(w http.ResponseWriter, r *http.Request) {
	volume := r.URL.Query().Get("volume")
	nodeID := r.URL.Query().Get("node_id")
	if !s.checkAuth(w, r, volume) {
		return
	}
	b, ok := s.reg.Volume(volume)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("volume %q not found", volume))
		return
	}

	statePath := filepath.Join(s.reg.StateDir(), fmt.Sprintf(".ext-state-%s-%s.json", s.reg.NodeID(), nodeID))
	cmds, err := snapshot.NewCapture(b).Run(r.Context(), volume, statePath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if cmds == nil {
		cmds = []model.Command{}
	}
	writeJSON(w, cmds)
}

func (s *Server) handleDir(w http.ResponseWriter, r *http.Request) {
	p, b, ok := s.pathParam(w, r)
	if !ok {
		return
	}
	entries, err := b.Dir(r.Context(), p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []model.File{}
	}
	writeJSON(w, entries)
}

func (s *Server) hash(w http.ResponseWriter, r *http.Request) {
	p, b, ok := s.pathParam(w, r)
	if !ok {
		return
	}
	h, err := b.Hash(r.Context(), p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, h)
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	p, b, ok := s.pathParam(w, r)
	if !ok {
		return
	}
	data, err := b.Read(r.Context(), p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", model.MIMEType(p))
	_, _ = w.Write(data)
}

func (s *Server) exists(w http.ResponseWriter, r *http.Request) {
	p, b, ok := s.pathParam(w, r)
	if !ok {
		return
	}
	exists, err := b.Exists(r.Context(), p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, exists)
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.reg.Info())
}

// Serve runs an http.Server bound to addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, dir Directory) error {
	srv := &http.Server{Addr: addr, Handler: NewServer(dir).Handler()}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("nodeapi: listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
