package client

import "context"

// Pending is a Start running in the background.
type Pending struct {
	done   chan struct{}
	cancel context.CancelFunc
	path   string
	err    error
}

// StartAsync runs Start on its own goroutine. Cancel or a deadline on ctx
// ends the metadata wait with ErrCanceled.
func (client *TorrentClient) StartAsync(ctx context.Context, magnetURI string, savePath string, opts ...StartOption) *Pending {
	ctx, cancel := context.WithCancel(ctx)
	p := &Pending{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(p.done)
		defer cancel()
		p.path, p.err = client.Start(ctx, magnetURI, savePath, opts...)
	}()
	return p
}

func (p *Pending) Done() <-chan struct{} {
	return p.done
}

func (p *Pending) Cancel() {
	p.cancel()
}

// Wait blocks until Start returns and hands back its result.
func (p *Pending) Wait() (string, error) {
	<-p.done
	return p.path, p.err
}
