// Package engine defines what the client needs from a transfer engine: a
// session that accepts transfers by info hash and reports progress through a
// pollable notification queue.
//
// Peer wire, piece scheduling, storage and discovery all live behind these
// interfaces. See btengine for the BitTorrent implementation and localengine
// for one that resolves metadata from .torrent files on disk.
package engine

import (
	"errors"
	"time"

	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/magnet"
)

var (
	ErrSessionClosed     = errors.New("session closed")
	ErrDuplicateTransfer = errors.New("transfer already in session")
	ErrInvalidSavePath   = errors.New("invalid save path")
	ErrUnknownTransfer   = errors.New("transfer not in session")
)

type Engine interface {
	NewSession(settings Settings) (Session, error)
}

type Settings struct {
	// Notifications outside this mask are dropped before they reach the queue.
	NotificationMask Category
}

type AddParams struct {
	InfoHash magnet.Hash
	SavePath string
}

// Session is not safe for concurrent draining: exactly one consumer should
// call WaitForNotification and PopNotifications.
type Session interface {
	AddTransfer(params AddParams) (Handle, error)
	// RemoveTransfer requests removal. Completion is signalled by a
	// TypeTransferRemoved notification.
	RemoveTransfer(h Handle) error
	// WaitForNotification blocks up to timeout and reports whether
	// notifications are pending.
	WaitForNotification(timeout time.Duration) bool
	PopNotifications() []Notification
	Close() error
}

type Handle interface {
	InfoHash() magnet.Hash
	// IsValid is false once the transfer was removed or its session closed.
	IsValid() bool
	// Metadata is nil until the transfer's info dictionary is known.
	Metadata() Metadata
}

type Metadata interface {
	Name() string
	NumFiles() int
	// FilePath returns the slash separated path of file i in file-table order.
	FilePath(i int) string
}

// FilePaths lists every path of m in file-table order.
func FilePaths(m Metadata) []string {
	paths := make([]string, m.NumFiles())
	for i := range paths {
		paths[i] = m.FilePath(i)
	}
	return paths
}
