package client

import (
	"errors"

	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/magnet"
)

var (
	ErrInvalidMagnetURI    = magnet.ErrInvalidMagnetURI
	ErrNotInitialized      = errors.New("session not initialized")
	ErrSessionAddFailure   = errors.New("session rejected transfer")
	ErrMetadataUnavailable = errors.New("transfer metadata unavailable")
	ErrAlreadyActive       = errors.New("a transfer is already active")
	ErrCanceled            = errors.New("metadata wait canceled")
	ErrNoActiveTransfer    = errors.New("no active transfer")
)

type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindInvalidMagnetURI
	KindNotInitialized
	KindSessionAddFailure
	KindMetadataUnavailable
	KindAlreadyActive
	KindCanceled
	KindNoActiveTransfer
	KindUnknown
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidMagnetURI, KindInvalidMagnetURI},
	{ErrNotInitialized, KindNotInitialized},
	{ErrSessionAddFailure, KindSessionAddFailure},
	{ErrMetadataUnavailable, KindMetadataUnavailable},
	{ErrAlreadyActive, KindAlreadyActive},
	{ErrCanceled, KindCanceled},
	{ErrNoActiveTransfer, KindNoActiveTransfer},
}

// KindOf classifies err by the first sentinel it wraps.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindInvalidMagnetURI:
		return "InvalidMagnetURI"
	case KindNotInitialized:
		return "NotInitialized"
	case KindSessionAddFailure:
		return "SessionAddFailure"
	case KindMetadataUnavailable:
		return "MetadataUnavailable"
	case KindAlreadyActive:
		return "AlreadyActive"
	case KindCanceled:
		return "Canceled"
	case KindNoActiveTransfer:
		return "NoActiveTransfer"
	default:
		return "Unknown"
	}
}
