package client

import "time"

type startOptions struct {
	timeout      time.Duration
	pollInterval time.Duration
	progress     func(waited time.Duration)
}

type StartOption func(*startOptions)

// WithTimeout bounds the metadata wait. Zero means wait until ctx is done.
func WithTimeout(d time.Duration) StartOption {
	return func(o *startOptions) {
		o.timeout = d
	}
}

// WithPollInterval overrides the per-iteration notification wait.
func WithPollInterval(d time.Duration) StartOption {
	return func(o *startOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithProgress is called once per poll iteration with the time spent waiting so far.
func WithProgress(fn func(waited time.Duration)) StartOption {
	return func(o *startOptions) {
		o.progress = fn
	}
}
