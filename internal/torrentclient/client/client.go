package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GeminiZA/GoTorrentHandler/internal/database"
	"github.com/GeminiZA/GoTorrentHandler/internal/logger"
	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/engine"
	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/magnet"
	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/session"
)

const (
	DefaultPollInterval  = 100 * time.Millisecond
	DefaultRemoveTimeout = 5 * time.Second
)

// Catalog receives every manifest that resolves. *database.DBConn is one.
type Catalog interface {
	RecordManifest(m database.Manifest) error
}

type Config struct {
	Engine        engine.Engine
	Catalog       Catalog
	PollInterval  time.Duration
	RemoveTimeout time.Duration
	Logger        *logger.Logger
}

// TorrentClient drives a single transfer from magnet URI to file manifest.
// All operations share one lock, so a Start that is waiting for metadata
// holds off ListFiles until it returns. Stop cancels a waiting Start first.
type TorrentClient struct {
	sessions      *session.Manager
	catalog       Catalog
	pollInterval  time.Duration
	removeTimeout time.Duration
	log           *logger.Logger

	mux      sync.Mutex
	active   engine.Handle
	savePath string

	// pendingMu guards the in-flight Start and Stop bookkeeping. It is never
	// held while waiting on mux.
	pendingMu     sync.Mutex
	pendingCancel context.CancelFunc
	stopping      int
}

func New(cfg Config) *TorrentClient {
	client := &TorrentClient{
		sessions:      session.New(cfg.Engine, cfg.Logger.Named("session")),
		catalog:       cfg.Catalog,
		pollInterval:  cfg.PollInterval,
		removeTimeout: cfg.RemoveTimeout,
		log:           cfg.Logger,
	}
	if client.pollInterval <= 0 {
		client.pollInterval = DefaultPollInterval
	}
	if client.removeTimeout <= 0 {
		client.removeTimeout = DefaultRemoveTimeout
	}
	return client
}

// Initialize creates the session. Calling it again is a no-op.
func (client *TorrentClient) Initialize() error {
	client.mux.Lock()
	defer client.mux.Unlock()

	_, err := client.sessions.Init()
	return err
}

func (client *TorrentClient) Initialized() bool {
	client.mux.Lock()
	defer client.mux.Unlock()
	return client.sessions.Initialized()
}

// Start adds the transfer named by magnetURI, saving into savePath, and
// blocks until its metadata is known. Without a deadline on ctx or
// WithTimeout the wait is unbounded. On success savePath is returned and the
// transfer becomes the active one. Only one Start runs at a time: a second
// one fails with ErrAlreadyActive instead of queueing behind the first.
func (client *TorrentClient) Start(ctx context.Context, magnetURI string, savePath string, opts ...StartOption) (string, error) {
	o := startOptions{pollInterval: client.pollInterval}
	for _, opt := range opts {
		opt(&o)
	}

	client.log.Info(fmt.Sprintf("Starting torrent with magnet URL: %s, download path: %s", magnetURI, savePath))
	infoHash, err := magnet.Parse(magnetURI)
	if err != nil {
		client.log.Error(fmt.Sprintf("Failed to parse magnet URI: %v", err))
		return "", err
	}

	ctx, cancel, err := client.beginStart(ctx, o.timeout)
	if err != nil {
		client.log.Warn(fmt.Sprintf("Start of %s rejected: %v", infoHash, err))
		return "", err
	}
	defer client.endStart()
	defer cancel()

	client.mux.Lock()
	defer client.mux.Unlock()

	sess, ok := client.sessions.Session()
	if !ok {
		client.log.Error("Start called before Initialize")
		return "", ErrNotInitialized
	}
	if client.active != nil {
		if client.active.IsValid() {
			return "", fmt.Errorf("%w: %s", ErrAlreadyActive, client.active.InfoHash())
		}
		client.log.Debug(fmt.Sprintf("Clearing stale transfer %s", client.active.InfoHash()))
		client.clearActive()
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w before adding: %w", ErrCanceled, err)
	}

	h, err := sess.AddTransfer(engine.AddParams{InfoHash: infoHash, SavePath: savePath})
	if err != nil {
		client.log.Error(fmt.Sprintf("Failed to add torrent: %v", err))
		return "", fmt.Errorf("%w: %w", ErrSessionAddFailure, err)
	}

	if err := client.waitForMetadata(ctx, sess, h, o); err != nil {
		client.log.Error(fmt.Sprintf("Waiting for metadata of %s: %v", infoHash, err))
		client.removeAndWait(context.Background(), sess, h)
		return "", err
	}

	meta := h.Metadata()
	if !h.IsValid() || meta == nil {
		client.log.Error("Failed to retrieve torrent metadata")
		client.removeAndWait(context.Background(), sess, h)
		return "", fmt.Errorf("%w: %s", ErrMetadataUnavailable, infoHash)
	}

	client.active = h
	client.savePath = savePath
	client.record(h, meta, savePath)
	client.log.Info(fmt.Sprintf("Torrent %s added successfully", infoHash))
	return savePath, nil
}

// ListFiles returns the active transfer's file paths in file-table order.
func (client *TorrentClient) ListFiles() ([]string, error) {
	client.mux.Lock()
	defer client.mux.Unlock()

	if client.active == nil {
		return nil, ErrNoActiveTransfer
	}
	if !client.active.IsValid() {
		client.log.Error("Torrent handle is invalid")
		return nil, fmt.Errorf("%w: handle invalid", ErrNoActiveTransfer)
	}
	meta := client.active.Metadata()
	if meta == nil {
		client.log.Error("Torrent info not available")
		return nil, ErrMetadataUnavailable
	}
	files := engine.FilePaths(meta)
	client.log.Info(fmt.Sprintf("Found %d files in torrent", len(files)))
	return files, nil
}

// Active reports the active transfer's info hash and save path.
func (client *TorrentClient) Active() (magnet.Hash, string, bool) {
	client.mux.Lock()
	defer client.mux.Unlock()

	if client.active == nil || !client.active.IsValid() {
		return magnet.Hash{}, "", false
	}
	return client.active.InfoHash(), client.savePath, true
}

// Stop removes the active transfer, waiting a bounded time for the engine
// to confirm, then destroys the session. It is safe to call repeatedly.
// A Start in flight is canceled, and Starts arriving while Stop runs fail
// with ErrNotInitialized.
func (client *TorrentClient) Stop(ctx context.Context) error {
	client.beginStop()
	defer client.endStop()

	client.mux.Lock()
	defer client.mux.Unlock()

	client.log.Info("Stopping torrent")
	sess, ok := client.sessions.Session()
	if ok && client.active != nil && client.active.IsValid() {
		client.removeAndWait(ctx, sess, client.active)
		client.log.Info("Torrent stopped")
	}
	client.clearActive()
	return client.sessions.Shutdown()
}

func (client *TorrentClient) clearActive() {
	client.active = nil
	client.savePath = ""
}

// beginStart registers a cancelable context for a new Start before it
// contends for mux, so a concurrent Stop can always reach it.
func (client *TorrentClient) beginStart(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	client.pendingMu.Lock()
	defer client.pendingMu.Unlock()

	if client.stopping > 0 {
		return nil, nil, fmt.Errorf("%w: session is stopping", ErrNotInitialized)
	}
	if client.pendingCancel != nil {
		return nil, nil, fmt.Errorf("%w: another start is in progress", ErrAlreadyActive)
	}

	cancelTimeout := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancelTimeout = context.WithTimeout(ctx, timeout)
	}
	ctx, cancel := context.WithCancel(ctx)
	client.pendingCancel = cancel
	return ctx, func() {
		cancel()
		cancelTimeout()
	}, nil
}

func (client *TorrentClient) endStart() {
	client.pendingMu.Lock()
	defer client.pendingMu.Unlock()
	client.pendingCancel = nil
}

func (client *TorrentClient) beginStop() {
	client.pendingMu.Lock()
	defer client.pendingMu.Unlock()
	client.stopping++
	if client.pendingCancel != nil {
		client.pendingCancel()
	}
}

func (client *TorrentClient) endStop() {
	client.pendingMu.Lock()
	defer client.pendingMu.Unlock()
	client.stopping--
}

func (client *TorrentClient) record(h engine.Handle, meta engine.Metadata, savePath string) {
	if client.catalog == nil {
		return
	}
	err := client.catalog.RecordManifest(database.Manifest{
		InfoHash:   h.InfoHash().String(),
		Name:       meta.Name(),
		SavePath:   savePath,
		Files:      engine.FilePaths(meta),
		ResolvedAt: time.Now(),
	})
	if err != nil {
		client.log.Warn(fmt.Sprintf("Recording manifest for %s: %v", h.InfoHash(), err))
	}
}
