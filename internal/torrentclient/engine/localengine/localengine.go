// Package localengine is an engine that never touches the network. Metadata
// for a transfer resolves after a fixed delay if a .torrent file with a
// matching info hash exists under the configured directory; otherwise the
// transfer stays pending until removed.
package localengine

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/GeminiZA/GoTorrentHandler/internal/logger"
	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/engine"
	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/magnet"
	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/torrentfile"
)

type Engine struct {
	fs    billy.Filesystem
	dir   string
	delay time.Duration
	log   *logger.Logger
}

func New(fs billy.Filesystem, dir string, delay time.Duration, log *logger.Logger) *Engine {
	return &Engine{fs: fs, dir: dir, delay: delay, log: log}
}

// NewSession snapshots the .torrent files present in the metainfo directory.
func (e *Engine) NewSession(settings engine.Settings) (engine.Session, error) {
	known, err := e.scan()
	if err != nil {
		return nil, err
	}
	e.log.Debug(fmt.Sprintf("Local session sees %d torrents in %s", len(known), e.dir))
	return &Session{
		known:     known,
		delay:     e.delay,
		queue:     engine.NewQueue(settings.NotificationMask, engine.DefaultQueueCapacity),
		transfers: make(map[magnet.Hash]*handle),
		log:       e.log,
	}, nil
}

func (e *Engine) scan() (map[magnet.Hash]*torrentfile.TorrentFile, error) {
	known := make(map[magnet.Hash]*torrentfile.TorrentFile)
	entries, err := e.fs.ReadDir(e.dir)
	if errors.Is(err, os.ErrNotExist) {
		return known, nil
	}
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".torrent") {
			continue
		}
		tf, err := torrentfile.ParseFile(e.fs, path.Join(e.dir, entry.Name()))
		if err != nil {
			e.log.Warn(fmt.Sprintf("Skipping %s: %v", entry.Name(), err))
			continue
		}
		known[tf.InfoHash] = tf
	}
	return known, nil
}

type Session struct {
	known map[magnet.Hash]*torrentfile.TorrentFile
	delay time.Duration
	queue *engine.Queue
	log   *logger.Logger

	mu        sync.Mutex
	transfers map[magnet.Hash]*handle
	closed    bool
}

func (s *Session) AddTransfer(params engine.AddParams) (engine.Handle, error) {
	if strings.TrimSpace(params.SavePath) == "" {
		return nil, fmt.Errorf("%w: empty", engine.ErrInvalidSavePath)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, engine.ErrSessionClosed
	}
	if _, ok := s.transfers[params.InfoHash]; ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrDuplicateTransfer, params.InfoHash)
	}

	h := &handle{infoHash: params.InfoHash, valid: true}
	s.transfers[params.InfoHash] = h
	s.queue.Post(engine.NewNotification(engine.TypeTransferAdded, params.InfoHash, params.SavePath))

	if tf, ok := s.known[params.InfoHash]; ok {
		h.timer = time.AfterFunc(s.delay, func() { s.resolve(h, tf) })
	}
	return h, nil
}

func (s *Session) resolve(h *handle, tf *torrentfile.TorrentFile) {
	h.mu.Lock()
	if !h.valid {
		h.mu.Unlock()
		return
	}
	h.meta = tf
	h.mu.Unlock()
	s.queue.Post(engine.NewNotification(engine.TypeMetadataReceived, h.infoHash, tf.Name()))
}

func (s *Session) RemoveTransfer(eh engine.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := eh.(*handle)
	if !ok || s.transfers[h.infoHash] != h {
		return engine.ErrUnknownTransfer
	}
	delete(s.transfers, h.infoHash)
	h.invalidate()
	s.queue.Post(engine.NewNotification(engine.TypeTransferRemoved, h.infoHash, ""))
	return nil
}

// Drop removes a transfer as if something outside the client had done it.
func (s *Session) Drop(ih magnet.Hash) bool {
	s.mu.Lock()
	h, ok := s.transfers[ih]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return s.RemoveTransfer(h) == nil
}

// Fail posts an error notification for ih.
func (s *Session) Fail(ih magnet.Hash, message string) {
	s.queue.Post(engine.NewNotification(engine.TypeTransferError, ih, message))
}

func (s *Session) WaitForNotification(timeout time.Duration) bool {
	return s.queue.Wait(timeout)
}

func (s *Session) PopNotifications() []engine.Notification {
	return s.queue.Pop()
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for ih, h := range s.transfers {
		h.invalidate()
		delete(s.transfers, ih)
	}
	return nil
}

type handle struct {
	infoHash magnet.Hash

	mu    sync.Mutex
	valid bool
	meta  *torrentfile.TorrentFile
	timer *time.Timer
}

func (h *handle) InfoHash() magnet.Hash {
	return h.infoHash
}

func (h *handle) IsValid() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.valid
}

func (h *handle) Metadata() engine.Metadata {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid || h.meta == nil {
		return nil
	}
	return h.meta
}

func (h *handle) invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.valid = false
	if h.timer != nil {
		h.timer.Stop()
	}
}
