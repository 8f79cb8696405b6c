package client

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GeminiZA/GoTorrentHandler/internal/database"
	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/engine"
	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/engine/localengine"
	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/magnet"
	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/torrentfile"
)

const unknownMagnet = "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567"

// countingEngine wraps a local engine and records how it is used.
type countingEngine struct {
	inner    engine.Engine
	sessions int
	adds     atomic.Int32
	local    *localengine.Session
}

func (e *countingEngine) NewSession(settings engine.Settings) (engine.Session, error) {
	sess, err := e.inner.NewSession(settings)
	if err != nil {
		return nil, err
	}
	e.sessions++
	e.local = sess.(*localengine.Session)
	return &countingSession{Session: sess, adds: &e.adds}, nil
}

type countingSession struct {
	engine.Session
	adds *atomic.Int32
}

func (s *countingSession) AddTransfer(params engine.AddParams) (engine.Handle, error) {
	s.adds.Add(1)
	return s.Session.AddTransfer(params)
}

func writeTorrent(t *testing.T, fs billy.Filesystem, name string, files ...string) magnet.Hash {
	t.Helper()
	tf := &torrentfile.TorrentFile{
		Info: torrentfile.TorrentInfo{
			Name:        name,
			PieceLength: 16384,
			Pieces:      [][]byte{bytes.Repeat([]byte{5}, 20)},
			MultiFile:   true,
		},
	}
	for _, f := range files {
		tf.Info.Files = append(tf.Info.Files, torrentfile.FileInfo{Path: []string{f}, Length: 10})
	}
	var buf bytes.Buffer
	require.NoError(t, tf.Bencode(&buf))
	require.NoError(t, util.WriteFile(fs, "meta/"+name+".torrent", buf.Bytes(), 0o644))
	return tf.InfoHash
}

type fixture struct {
	client *TorrentClient
	eng    *countingEngine
	fs     billy.Filesystem
}

func newFixture(t *testing.T, catalog Catalog) *fixture {
	t.Helper()
	fs := memfs.New()
	eng := &countingEngine{inner: localengine.New(fs, "meta", 5*time.Millisecond, nil)}
	c := New(Config{
		Engine:        eng,
		Catalog:       catalog,
		PollInterval:  5 * time.Millisecond,
		RemoveTimeout: time.Second,
	})
	t.Cleanup(func() { c.Stop(context.Background()) })
	return &fixture{client: c, eng: eng, fs: fs}
}

func TestInitializeTwiceCreatesOneSession(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.client.Initialize())
	require.NoError(t, f.client.Initialize())
	assert.Equal(t, 1, f.eng.sessions)
	assert.True(t, f.client.Initialized())
}

func TestStartInvalidMagnetReturnsImmediately(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.client.Initialize())

	for _, uri := range []string{"", "http://example.com", magnet.Prefix + "abc", magnet.Prefix + "00000000000000000000000000000000000000zz"} {
		start := time.Now()
		path, err := f.client.Start(context.Background(), uri, "/data")
		assert.ErrorIs(t, err, ErrInvalidMagnetURI, uri)
		assert.Empty(t, path)
		assert.Less(t, time.Since(start), 50*time.Millisecond)
	}
	assert.Zero(t, f.eng.adds.Load())
}

func TestStartBeforeInitialize(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.client.Start(context.Background(), unknownMagnet, "/data")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Equal(t, KindNotInitialized, KindOf(err))
}

func TestStartResolvesAndListsFiles(t *testing.T) {
	f := newFixture(t, nil)
	ih := writeTorrent(t, f.fs, "season", "e03.mkv", "e01.mkv", "e02.mkv", "subs.srt")
	require.NoError(t, f.client.Initialize())

	path, err := f.client.Start(context.Background(), ih.URI()+"&dn=season", "/data/tv")
	require.NoError(t, err)
	assert.Equal(t, "/data/tv", path)

	files, err := f.client.ListFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"season/e03.mkv", "season/e01.mkv", "season/e02.mkv", "season/subs.srt"}, files)

	again, err := f.client.ListFiles()
	require.NoError(t, err)
	assert.Equal(t, files, again)

	active, savePath, ok := f.client.Active()
	assert.True(t, ok)
	assert.Equal(t, ih, active)
	assert.Equal(t, "/data/tv", savePath)
}

func TestStartBlocksUntilCanceled(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.client.Initialize())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := f.client.Start(ctx, unknownMagnet, "/data")
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, KindCanceled, KindOf(err))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// The abandoned transfer was removed, so the slot is free.
	_, _, ok := f.client.Active()
	assert.False(t, ok)
	ih := writeTorrent(t, f.fs, "late", "a")
	require.NoError(t, f.client.Stop(context.Background()))
	require.NoError(t, f.client.Initialize())
	_, err = f.client.Start(context.Background(), ih.URI(), "/data")
	assert.NoError(t, err)
}

func TestStartWithTimeoutAndProgress(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.client.Initialize())

	var calls atomic.Int32
	_, err := f.client.Start(context.Background(), unknownMagnet, "/data",
		WithTimeout(40*time.Millisecond),
		WithPollInterval(2*time.Millisecond),
		WithProgress(func(time.Duration) { calls.Add(1) }),
	)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.Positive(t, calls.Load())
}

func TestStartAsyncCancel(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.client.Initialize())

	p := f.client.StartAsync(context.Background(), unknownMagnet, "/data")
	select {
	case <-p.Done():
		t.Fatal("Start returned before metadata or cancellation")
	case <-time.After(30 * time.Millisecond):
	}
	p.Cancel()
	_, err := p.Wait()
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStartAsyncResolves(t *testing.T) {
	f := newFixture(t, nil)
	ih := writeTorrent(t, f.fs, "iso", "disk.iso")
	require.NoError(t, f.client.Initialize())

	path, err := f.client.StartAsync(context.Background(), ih.URI(), "/isos").Wait()
	require.NoError(t, err)
	assert.Equal(t, "/isos", path)
}

func TestStopCancelsWaitingStart(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.client.Initialize())

	p := f.client.StartAsync(context.Background(), unknownMagnet, "/data", WithTimeout(5*time.Second))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, f.client.Stop(context.Background()))

	_, err := p.Wait()
	assert.ErrorIs(t, err, ErrCanceled)
	assert.False(t, f.client.Initialized())
}

func TestSecondStartIsAlreadyActive(t *testing.T) {
	f := newFixture(t, nil)
	first := writeTorrent(t, f.fs, "first", "1")
	second := writeTorrent(t, f.fs, "second", "2")
	require.NoError(t, f.client.Initialize())

	_, err := f.client.Start(context.Background(), first.URI(), "/data")
	require.NoError(t, err)

	_, err = f.client.Start(context.Background(), second.URI(), "/data")
	assert.ErrorIs(t, err, ErrAlreadyActive)
	files, err := f.client.ListFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"first/1"}, files)

	require.NoError(t, f.client.Stop(context.Background()))
	require.NoError(t, f.client.Initialize())
	_, err = f.client.Start(context.Background(), second.URI(), "/data")
	require.NoError(t, err)
}

func TestExternallyRemovedTransferFreesSlot(t *testing.T) {
	f := newFixture(t, nil)
	first := writeTorrent(t, f.fs, "first", "1")
	second := writeTorrent(t, f.fs, "second", "2")
	require.NoError(t, f.client.Initialize())

	_, err := f.client.Start(context.Background(), first.URI(), "/data")
	require.NoError(t, err)
	require.True(t, f.eng.local.Drop(first))

	_, err = f.client.ListFiles()
	assert.ErrorIs(t, err, ErrNoActiveTransfer)

	_, err = f.client.Start(context.Background(), second.URI(), "/data")
	assert.NoError(t, err)
}

func TestStartMetadataUnavailableWhenTransferVanishes(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.client.Initialize())
	ih := magnet.MustParse(unknownMagnet)

	go func() {
		time.Sleep(30 * time.Millisecond)
		f.eng.local.Fail(ih, "peer sent bad metadata")
		f.eng.local.Drop(ih)
	}()
	_, err := f.client.Start(context.Background(), unknownMagnet, "/data", WithTimeout(5*time.Second))
	assert.ErrorIs(t, err, ErrMetadataUnavailable)
	assert.Equal(t, KindMetadataUnavailable, KindOf(err))
}

func TestStartSessionAddFailure(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.client.Initialize())

	_, err := f.client.Start(context.Background(), unknownMagnet, "")
	assert.ErrorIs(t, err, ErrSessionAddFailure)
	assert.ErrorIs(t, err, engine.ErrInvalidSavePath)
	_, _, ok := f.client.Active()
	assert.False(t, ok)
}

func TestStopThenListFiles(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.client.Stop(context.Background()))

	ih := writeTorrent(t, f.fs, "pack", "x", "y")
	require.NoError(t, f.client.Initialize())
	_, err := f.client.Start(context.Background(), ih.URI(), "/data")
	require.NoError(t, err)

	require.NoError(t, f.client.Stop(context.Background()))
	_, err = f.client.ListFiles()
	assert.ErrorIs(t, err, ErrNoActiveTransfer)
	require.NoError(t, f.client.Stop(context.Background()))
	assert.False(t, f.client.Initialized())
}

func TestListFilesWithoutStart(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.client.Initialize())
	files, err := f.client.ListFiles()
	assert.Nil(t, files)
	assert.ErrorIs(t, err, ErrNoActiveTransfer)
}

func TestCatalogRecordsManifest(t *testing.T) {
	dbc, err := database.Connect(":memory:")
	require.NoError(t, err)
	defer dbc.Disconnect()

	f := newFixture(t, dbc)
	ih := writeTorrent(t, f.fs, "docs", "b.pdf", "a.pdf")
	require.NoError(t, f.client.Initialize())
	_, err = f.client.Start(context.Background(), ih.URI(), "/docs")
	require.NoError(t, err)

	m, err := dbc.GetManifest(ih.String())
	require.NoError(t, err)
	assert.Equal(t, "docs", m.Name)
	assert.Equal(t, "/docs", m.SavePath)
	assert.Equal(t, []string{"docs/b.pdf", "docs/a.pdf"}, m.Files)
}

type failingCatalog struct{}

func (failingCatalog) RecordManifest(database.Manifest) error { return errors.New("disk full") }

func TestCatalogFailureDoesNotFailStart(t *testing.T) {
	f := newFixture(t, failingCatalog{})
	ih := writeTorrent(t, f.fs, "one", "f")
	require.NoError(t, f.client.Initialize())
	_, err := f.client.Start(context.Background(), ih.URI(), "/data")
	assert.NoError(t, err)
}

func TestBridgeLegacySentinels(t *testing.T) {
	f := newFixture(t, nil)
	ih := writeTorrent(t, f.fs, "legacy", "file")
	b := NewBridge(f.client)

	assert.Equal(t, "", b.Start(ih.URI(), "/data"))
	b.Initialize()
	b.Initialize()
	assert.Nil(t, b.GetFiles())
	assert.Equal(t, "", b.Start("magnet:?xt=urn:btih:"+"0000000000000000000000000000000000000000", "/data"))
	assert.Equal(t, "/data", b.Start(ih.URI(), "/data"))
	assert.Equal(t, []string{"legacy/file"}, b.GetFiles())
	b.Stop()
	assert.Nil(t, b.GetFiles())
	b.Stop()
	assert.Equal(t, 1, f.eng.sessions)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{errors.New("other"), KindUnknown},
		{magnet.ErrInvalidMagnetURI, KindInvalidMagnetURI},
		{ErrSessionAddFailure, KindSessionAddFailure},
		{ErrAlreadyActive, KindAlreadyActive},
		{ErrNoActiveTransfer, KindNoActiveTransfer},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err))
	}
	assert.Equal(t, "AlreadyActive", KindAlreadyActive.String())
	assert.Equal(t, "Unknown", ErrorKind(99).String())
}

// blockingEngine hands out sessions whose AddTransfer parks until release
// is closed, the way a slow disk or engine add would.
type blockingEngine struct {
	inner   engine.Engine
	entered chan struct{}
	release chan struct{}
}

func newBlockingEngine() *blockingEngine {
	return &blockingEngine{
		inner:   localengine.New(memfs.New(), "meta", time.Millisecond, nil),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (e *blockingEngine) NewSession(settings engine.Settings) (engine.Session, error) {
	sess, err := e.inner.NewSession(settings)
	if err != nil {
		return nil, err
	}
	return &blockingSession{Session: sess, eng: e}, nil
}

type blockingSession struct {
	engine.Session
	eng *blockingEngine
}

func (s *blockingSession) AddTransfer(params engine.AddParams) (engine.Handle, error) {
	select {
	case s.eng.entered <- struct{}{}:
	default:
	}
	<-s.eng.release
	return s.Session.AddTransfer(params)
}

func TestStopReachesStartInsideAddTransfer(t *testing.T) {
	eng := newBlockingEngine()
	c := New(Config{Engine: eng, PollInterval: 5 * time.Millisecond, RemoveTimeout: time.Second})
	require.NoError(t, c.Initialize())

	p := c.StartAsync(context.Background(), unknownMagnet, "/data")
	select {
	case <-eng.entered:
	case <-time.After(time.Second):
		t.Fatal("Start never reached AddTransfer")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- c.Stop(context.Background()) }()
	time.Sleep(30 * time.Millisecond)

	// A Start arriving while Stop is underway is turned away.
	_, err := c.Start(context.Background(), unknownMagnet, "/data")
	assert.ErrorIs(t, err, ErrNotInitialized)

	close(eng.release)
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stop blocked behind an unbounded Start")
	}

	_, err = p.Wait()
	assert.ErrorIs(t, err, ErrCanceled)
	assert.False(t, c.Initialized())
}

func TestConcurrentStartFailsFast(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.client.Initialize())

	p := f.client.StartAsync(context.Background(), unknownMagnet, "/data")
	time.Sleep(30 * time.Millisecond)

	start := time.Now()
	_, err := f.client.Start(context.Background(), unknownMagnet, "/other")
	assert.ErrorIs(t, err, ErrAlreadyActive)
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	p.Cancel()
	_, err = p.Wait()
	assert.ErrorIs(t, err, ErrCanceled)

	// The slot is free again once the first Start has returned.
	ih := writeTorrent(t, f.fs, "after", "x")
	require.NoError(t, f.client.Stop(context.Background()))
	require.NoError(t, f.client.Initialize())
	_, err = f.client.Start(context.Background(), ih.URI(), "/data")
	assert.NoError(t, err)
}
