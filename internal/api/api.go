// Package api serves the host bridge: the method channel a host application
// drives the torrent client through, plus read access to resolved manifests.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/GeminiZA/GoTorrentHandler/internal/database"
	"github.com/GeminiZA/GoTorrentHandler/internal/logger"
	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/client"
)

// Manifests is the read side of the manifest catalog.
type Manifests interface {
	ListManifests() ([]*database.Manifest, error)
	GetManifest(infoHash string) (*database.Manifest, error)
}

type Server struct {
	tc       *client.TorrentClient
	catalog  Manifests
	log      *logger.Logger
	authType AuthType
	token    string
	router   *mux.Router
}

// NewServer builds the routes. catalog may be nil, in which case the
// manifest routes are not registered. A non-empty token lets non-private
// addresses in with a matching bearer token.
func NewServer(tc *client.TorrentClient, catalog Manifests, token string, log *logger.Logger) *Server {
	s := &Server{
		tc:       tc,
		catalog:  catalog,
		log:      log,
		authType: DenyRemote,
		token:    token,
		router:   mux.NewRouter(),
	}
	if token != "" {
		s.authType = BearerToken
	}

	s.router.Use(s.privateOnly)
	s.router.HandleFunc("/methods/{method}", s.CallMethod).Methods(http.MethodPost)
	if catalog != nil {
		s.router.HandleFunc("/manifests", s.ListManifests).Methods(http.MethodGet)
		s.router.HandleFunc("/manifests/{infohash}", s.GetManifest).Methods(http.MethodGet)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListManifests(w http.ResponseWriter, r *http.Request) {
	manifests, err := s.catalog.ListManifests()
	if err != nil {
		s.log.Error(fmt.Sprintf("Listing manifests: %v", err))
		http.Error(w, "Error reading catalog", http.StatusInternalServerError)
		s.logResponse("manifests", r.RemoteAddr, http.StatusInternalServerError)
		return
	}
	if manifests == nil {
		manifests = []*database.Manifest{}
	}
	s.writeJSON(w, r, "manifests", http.StatusOK, manifests)
}

func (s *Server) GetManifest(w http.ResponseWriter, r *http.Request) {
	infoHash := strings.ToLower(mux.Vars(r)["infohash"])
	m, err := s.catalog.GetManifest(infoHash)
	if errors.Is(err, database.ErrManifestNotFound) {
		http.Error(w, "Manifest not found", http.StatusNotFound)
		s.logResponse("manifest", r.RemoteAddr, http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error(fmt.Sprintf("Reading manifest %s: %v", infoHash, err))
		http.Error(w, "Error reading catalog", http.StatusInternalServerError)
		s.logResponse("manifest", r.RemoteAddr, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, r, "manifest", http.StatusOK, m)
}
