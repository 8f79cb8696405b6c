// Package btengine runs transfers on an anacrolix/torrent client.
//
// Each session owns one torrent.Client. The client's own goroutines do peer
// I/O, DHT and tracker work; this package only watches each torrent's info
// and closed events and turns them into queued notifications.
package btengine

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"

	"github.com/GeminiZA/GoTorrentHandler/internal/logger"
	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/engine"
	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/magnet"
)

type Config struct {
	DataDir    string
	ListenPort int
	NoDHT      bool
	Seed       bool
}

type Engine struct {
	cfg Config
	log *logger.Logger
}

func New(cfg Config, log *logger.Logger) *Engine {
	return &Engine{cfg: cfg, log: log}
}

func (e *Engine) clientConfig() *torrent.ClientConfig {
	cc := torrent.NewDefaultClientConfig()
	cc.DataDir = e.cfg.DataDir
	cc.ListenPort = e.cfg.ListenPort
	cc.NoDHT = e.cfg.NoDHT
	cc.Seed = e.cfg.Seed
	return cc
}

func (e *Engine) NewSession(settings engine.Settings) (engine.Session, error) {
	if e.cfg.DataDir != "" {
		if err := os.MkdirAll(e.cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
	}
	cl, err := torrent.NewClient(e.clientConfig())
	if err != nil {
		return nil, fmt.Errorf("starting torrent client: %w", err)
	}
	e.log.Info(fmt.Sprintf("Torrent client listening on %v", cl.ListenAddrs()))
	return &session{
		cl:        cl,
		queue:     engine.NewQueue(settings.NotificationMask, engine.DefaultQueueCapacity),
		transfers: make(map[magnet.Hash]*handle),
		log:       e.log,
	}, nil
}

type session struct {
	cl    *torrent.Client
	queue *engine.Queue
	log   *logger.Logger

	mu        sync.Mutex
	transfers map[magnet.Hash]*handle
	closed    bool
	wg        sync.WaitGroup
}

func (s *session) AddTransfer(params engine.AddParams) (engine.Handle, error) {
	if strings.TrimSpace(params.SavePath) == "" {
		return nil, fmt.Errorf("%w: empty", engine.ErrInvalidSavePath)
	}
	if err := os.MkdirAll(params.SavePath, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrInvalidSavePath, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, engine.ErrSessionClosed
	}
	if _, ok := s.transfers[params.InfoHash]; ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrDuplicateTransfer, params.InfoHash)
	}

	st := storage.NewFile(params.SavePath)
	t, isNew := s.cl.AddTorrentInfoHashWithStorage(metainfo.Hash(params.InfoHash), st)
	if !isNew {
		st.Close()
		return nil, fmt.Errorf("%w: %s", engine.ErrDuplicateTransfer, params.InfoHash)
	}
	h := &handle{infoHash: params.InfoHash, t: t, storage: st}
	s.transfers[params.InfoHash] = h
	s.queue.Post(engine.NewNotification(engine.TypeTransferAdded, params.InfoHash, params.SavePath))

	s.wg.Add(1)
	go s.watch(h)
	return h, nil
}

func (s *session) watch(h *handle) {
	defer s.wg.Done()
	select {
	case <-h.t.GotInfo():
		s.queue.Post(engine.NewNotification(engine.TypeMetadataReceived, h.infoHash, h.t.Name()))
	case <-h.t.Closed():
		s.queue.Post(engine.NewNotification(engine.TypeTransferRemoved, h.infoHash, ""))
		return
	}
	<-h.t.Closed()
	s.queue.Post(engine.NewNotification(engine.TypeTransferRemoved, h.infoHash, ""))
}

func (s *session) RemoveTransfer(eh engine.Handle) error {
	s.mu.Lock()
	h, ok := eh.(*handle)
	if !ok || s.transfers[h.infoHash] != h {
		s.mu.Unlock()
		return engine.ErrUnknownTransfer
	}
	delete(s.transfers, h.infoHash)
	s.mu.Unlock()

	h.drop()
	if err := h.storage.Close(); err != nil {
		s.log.Warn(fmt.Sprintf("Closing storage for %s: %v", h.infoHash, err))
		s.queue.Post(engine.NewNotification(engine.TypeTransferError, h.infoHash, err.Error()))
	}
	return nil
}

func (s *session) WaitForNotification(timeout time.Duration) bool {
	return s.queue.Wait(timeout)
}

func (s *session) PopNotifications() []engine.Notification {
	return s.queue.Pop()
}

func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	transfers := s.transfers
	s.transfers = make(map[magnet.Hash]*handle)
	s.mu.Unlock()

	for _, h := range transfers {
		h.drop()
		h.storage.Close()
	}
	s.cl.Close()
	s.wg.Wait()
	return nil
}

type handle struct {
	infoHash magnet.Hash
	t        *torrent.Torrent
	storage  storage.ClientImplCloser

	mu      sync.Mutex
	dropped bool
}

func (h *handle) InfoHash() magnet.Hash {
	return h.infoHash
}

func (h *handle) drop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dropped {
		return
	}
	h.dropped = true
	h.t.Drop()
}

func (h *handle) IsValid() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dropped {
		return false
	}
	select {
	case <-h.t.Closed():
		return false
	default:
		return true
	}
}

func (h *handle) Metadata() engine.Metadata {
	if !h.IsValid() || h.t.Info() == nil {
		return nil
	}
	files := h.t.Files()
	table := &fileTable{name: h.t.Name(), paths: make([]string, len(files))}
	for i, f := range files {
		table.paths[i] = f.Path()
	}
	return table
}

// fileTable is a snapshot of a torrent's files taken once its info is known.
type fileTable struct {
	name  string
	paths []string
}

func (ft *fileTable) Name() string          { return ft.name }
func (ft *fileTable) NumFiles() int         { return len(ft.paths) }
func (ft *fileTable) FilePath(i int) string { return ft.paths[i] }
