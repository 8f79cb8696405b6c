package client

import (
	"context"
	"fmt"
)

// Bridge exposes TorrentClient through the host plugin's legacy contract,
// where every failure collapses to "" or nil. Use TorrentClient directly
// when the failure kind matters.
type Bridge struct {
	client *TorrentClient
}

func NewBridge(client *TorrentClient) *Bridge {
	return &Bridge{client: client}
}

func (b *Bridge) Initialize() {
	if err := b.client.Initialize(); err != nil {
		b.client.log.Error(fmt.Sprintf("Initialize: %v", err))
	}
}

func (b *Bridge) Start(magnetURI string, downloadPath string) string {
	path, err := b.client.Start(context.Background(), magnetURI, downloadPath)
	if err != nil {
		return ""
	}
	return path
}

func (b *Bridge) GetFiles() []string {
	files, err := b.client.ListFiles()
	if err != nil {
		return nil
	}
	return files
}

func (b *Bridge) Stop() {
	if err := b.client.Stop(context.Background()); err != nil {
		b.client.log.Error(fmt.Sprintf("Stop: %v", err))
	}
}
