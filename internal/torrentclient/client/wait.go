package client

import (
	"context"
	"fmt"
	"time"

	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/engine"
)

// waitForMetadata polls sess until h's metadata arrives or h becomes
// invalid, in which case it returns nil and leaves the verdict to the caller.
// ctx is checked before every poll.
func (client *TorrentClient) waitForMetadata(ctx context.Context, sess engine.Session, h engine.Handle, o startOptions) error {
	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w after %s: %w", ErrCanceled, time.Since(start).Round(time.Millisecond), err)
		}

		sess.WaitForNotification(o.pollInterval)
		for _, n := range sess.PopNotifications() {
			if n.Type == engine.TypeMetadataReceived && n.InfoHash == h.InfoHash() {
				client.log.Info("Metadata received for torrent")
				return nil
			}
			client.logNotification(n)
		}

		if !h.IsValid() {
			client.log.Warn(fmt.Sprintf("Transfer %s became invalid while waiting for metadata", h.InfoHash()))
			return nil
		}
		if o.progress != nil {
			o.progress(time.Since(start))
		}
	}
}

// removeAndWait requests removal of h and waits, at most removeTimeout,
// for the engine to confirm it.
func (client *TorrentClient) removeAndWait(ctx context.Context, sess engine.Session, h engine.Handle) {
	if err := sess.RemoveTransfer(h); err != nil {
		client.log.Warn(fmt.Sprintf("Removing transfer %s: %v", h.InfoHash(), err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, client.removeTimeout)
	defer cancel()
	for {
		for _, n := range sess.PopNotifications() {
			if n.Type == engine.TypeTransferRemoved && n.InfoHash == h.InfoHash() {
				client.log.Debug(fmt.Sprintf("Transfer %s removed", h.InfoHash()))
				return
			}
			client.logNotification(n)
		}
		if ctx.Err() != nil {
			client.log.Warn(fmt.Sprintf("No removal confirmation for %s within %s", h.InfoHash(), client.removeTimeout))
			return
		}
		sess.WaitForNotification(client.pollInterval)
	}
}

func (client *TorrentClient) logNotification(n engine.Notification) {
	if n.Type.Category() == engine.CategoryError {
		client.log.Error(n.String())
		return
	}
	client.log.Debug(n.String())
}
