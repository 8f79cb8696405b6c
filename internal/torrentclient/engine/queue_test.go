package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/magnet"
)

var testHash = magnet.Hash{1, 2, 3}

func TestQueueMask(t *testing.T) {
	q := NewQueue(CategoryError|CategoryStatus, 0)

	assert.True(t, q.Post(NewNotification(TypeMetadataReceived, testHash, "")))
	assert.True(t, q.Post(NewNotification(TypeTransferError, testHash, "disk full")))
	assert.False(t, q.Post(NewNotification(TypePeerConnected, testHash, "")))
	assert.False(t, q.Post(NewNotification(TypePieceFinished, testHash, "")))

	got := q.Pop()
	require.Len(t, got, 2)
	assert.Equal(t, TypeMetadataReceived, got[0].Type)
	assert.Equal(t, TypeTransferError, got[1].Type)
	assert.Empty(t, q.Pop())
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	q := NewQueue(CategoryAll, 2)
	q.Post(NewNotification(TypeTransferAdded, testHash, "1"))
	q.Post(NewNotification(TypeStateChanged, testHash, "2"))
	q.Post(NewNotification(TypeStateChanged, testHash, "3"))

	got := q.Pop()
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].Message)
	assert.Equal(t, "3", got[1].Message)
	assert.Equal(t, 1, q.Dropped())
}

func TestQueueWaitTimesOut(t *testing.T) {
	q := NewQueue(CategoryAll, 0)
	start := time.Now()
	assert.False(t, q.Wait(20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestQueueWaitWakesOnPost(t *testing.T) {
	q := NewQueue(CategoryAll, 0)
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Post(NewNotification(TypeMetadataReceived, testHash, ""))
	}()
	assert.True(t, q.Wait(5*time.Second))
}

func TestQueueWaitReturnsImmediatelyWhenPending(t *testing.T) {
	q := NewQueue(CategoryAll, 0)
	q.Post(NewNotification(TypeTransferAdded, testHash, ""))
	start := time.Now()
	assert.True(t, q.Wait(time.Second))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "none", Category(0).String())
	assert.Equal(t, "error|status", (CategoryError | CategoryStatus).String())
	assert.Equal(t, Category(511), CategoryAll)
}

type fixedMetadata []string

func (m fixedMetadata) Name() string          { return "fixed" }
func (m fixedMetadata) NumFiles() int         { return len(m) }
func (m fixedMetadata) FilePath(i int) string { return m[i] }

func TestFilePaths(t *testing.T) {
	m := fixedMetadata{"a/1", "a/2", "a/b/3"}
	assert.Equal(t, []string{"a/1", "a/2", "a/b/3"}, FilePaths(m))
	assert.Empty(t, FilePaths(fixedMetadata{}))
}
