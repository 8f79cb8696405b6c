package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/magnet"
)

type Category uint32

const (
	CategoryError Category = 1 << iota
	CategoryPeer
	CategoryPortMapping
	CategoryStorage
	CategoryTracker
	CategoryConnect
	CategoryStatus
	CategoryProgress
	CategoryDHT

	CategoryAll Category = 1<<iota - 1
)

var categoryNames = []string{"error", "peer", "port_mapping", "storage", "tracker", "connect", "status", "progress", "dht"}

func (c Category) String() string {
	if c == 0 {
		return "none"
	}
	var names []string
	for i, name := range categoryNames {
		if c&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

type Type int

const (
	TypeTransferAdded Type = iota
	TypeMetadataReceived
	TypeMetadataFailed
	TypeTransferRemoved
	TypeTransferError
	TypeStateChanged
	TypePeerConnected
	TypeTrackerReply
	TypePieceFinished
)

func (t Type) String() string {
	switch t {
	case TypeTransferAdded:
		return "transfer_added"
	case TypeMetadataReceived:
		return "metadata_received"
	case TypeMetadataFailed:
		return "metadata_failed"
	case TypeTransferRemoved:
		return "transfer_removed"
	case TypeTransferError:
		return "transfer_error"
	case TypeStateChanged:
		return "state_changed"
	case TypePeerConnected:
		return "peer_connected"
	case TypeTrackerReply:
		return "tracker_reply"
	case TypePieceFinished:
		return "piece_finished"
	default:
		return "unknown"
	}
}

// Category is the class a notification of type t is filtered under.
func (t Type) Category() Category {
	switch t {
	case TypeMetadataFailed, TypeTransferError:
		return CategoryError
	case TypePeerConnected:
		return CategoryPeer
	case TypeTrackerReply:
		return CategoryTracker
	case TypePieceFinished:
		return CategoryProgress
	default:
		return CategoryStatus
	}
}

type Notification struct {
	Type     Type
	InfoHash magnet.Hash
	Message  string
	Time     time.Time
}

func NewNotification(t Type, ih magnet.Hash, message string) Notification {
	return Notification{Type: t, InfoHash: ih, Message: message, Time: time.Now()}
}

func (n Notification) String() string {
	if n.Message == "" {
		return fmt.Sprintf("%s [%s]", n.Type, n.InfoHash)
	}
	return fmt.Sprintf("%s [%s]: %s", n.Type, n.InfoHash, n.Message)
}
