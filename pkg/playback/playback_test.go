package playback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cloudgroundcontrol/soundboard-bot/pkg/transport"
	"github.com/stretchr/testify/require"
)

type mockSender struct{}

func (mockSender) Speaking(bool) error { return nil }

func (mockSender) SendOpus(context.Context, []byte) error { return nil }

// mockPlayer blocks each track until it is released or cancelled.
type mockPlayer struct {
	lock    sync.Mutex
	played  []string
	started chan string
	release chan struct{}
	fail    map[string]error
}

func newMockPlayer() *mockPlayer {
	return &mockPlayer{
		started: make(chan string, 16),
		release: make(chan struct{}),
		fail:    make(map[string]error),
	}
}

func (p *mockPlayer) Play(ctx context.Context, _ transport.OpusSender, source string) error {
	p.lock.Lock()
	p.played = append(p.played, source)
	err := p.fail[source]
	p.lock.Unlock()

	p.started <- source
	if err != nil {
		return err
	}
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func waitStarted(t *testing.T, p *mockPlayer, source string) {
	select {
	case s := <-p.started:
		require.Equal(t, source, s)
	case <-time.After(2 * time.Second):
		t.Fatalf("track %s did not start", source)
	}
}

func TestQueuePlaysInOrder(t *testing.T) {
	p := newMockPlayer()
	idle := make(chan struct{}, 1)
	q := NewQueue(p, QueueHooks{OnIdle: func() { idle <- struct{}{} }})

	q.Enqueue(mockSender{}, Track{Title: "one", Source: "1"})
	q.Enqueue(mockSender{}, Track{Title: "two", Source: "2"})
	require.True(t, q.Playing())

	waitStarted(t, p, "1")
	current, ok := q.Current()
	require.True(t, ok)
	require.Equal(t, "one", current.Title)
	require.Len(t, q.Pending(), 1)

	p.release <- struct{}{}
	waitStarted(t, p, "2")
	p.release <- struct{}{}

	select {
	case <-idle:
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not go idle")
	}
	require.False(t, q.Playing())
}

func TestQueueSkip(t *testing.T) {
	p := newMockPlayer()
	q := NewQueue(p, QueueHooks{})
	require.False(t, q.Skip())

	q.Enqueue(mockSender{}, Track{Source: "1"})
	q.Enqueue(mockSender{}, Track{Source: "2"})
	waitStarted(t, p, "1")

	require.True(t, q.Skip())
	waitStarted(t, p, "2")
	q.Stop()
}

func TestQueueStopClearsAndWaits(t *testing.T) {
	p := newMockPlayer()
	q := NewQueue(p, QueueHooks{})
	require.False(t, q.Stop())

	q.Enqueue(mockSender{}, Track{Source: "1"})
	q.Enqueue(mockSender{}, Track{Source: "2"})
	waitStarted(t, p, "1")

	require.True(t, q.Stop())
	require.False(t, q.Playing())
	require.Empty(t, q.Pending())
	require.Equal(t, []string{"1"}, p.played)
}

func TestQueueReportsErrorsAndContinues(t *testing.T) {
	p := newMockPlayer()
	p.fail["bad"] = errors.New("decode failed")

	failed := make(chan Track, 1)
	q := NewQueue(p, QueueHooks{OnError: func(tr Track, _ error) { failed <- tr }})

	q.Enqueue(mockSender{}, Track{Title: "bad", Source: "bad"})
	q.Enqueue(mockSender{}, Track{Title: "good", Source: "good"})

	waitStarted(t, p, "bad")
	waitStarted(t, p, "good")
	require.Equal(t, "bad", (<-failed).Title)
	q.Stop()
}

func TestResolveLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newt.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3"), 0644))

	track, err := DefaultResolver{}.Resolve(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, "newt.mp3", track.Title)
	require.Equal(t, path, track.Source)
}

func TestResolveURLWithoutSearch(t *testing.T) {
	track, err := DefaultResolver{}.Resolve(context.Background(), "https://example.com/song.mp3")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/song.mp3", track.Source)
}

func TestResolveQueryWithoutSearch(t *testing.T) {
	_, err := DefaultResolver{}.Resolve(context.Background(), "never gonna give you up")
	require.ErrorIs(t, err, ErrTrackNotFound)

	_, err = DefaultResolver{}.Resolve(context.Background(), "  ")
	require.ErrorIs(t, err, ErrEmptyQuery)
}

func TestParseYTDLP(t *testing.T) {
	track, err := parseYTDLP([]byte("Some Song\nhttps://media.example/audio\n"))
	require.NoError(t, err)
	require.Equal(t, Track{Title: "Some Song", Source: "https://media.example/audio"}, track)

	_, err = parseYTDLP([]byte("only a title\n"))
	require.ErrorIs(t, err, ErrTrackNotFound)
}

func TestPlayerGivesUpWhileBusy(t *testing.T) {
	p := NewFFmpegPlayer("/nonexistent/ffmpeg")
	require.NoError(t, p.acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := p.Play(ctx, mockSender{}, "fifty.mp3")
	require.ErrorIs(t, err, ErrPlayerBusy)
	require.Less(t, time.Since(start), time.Second)

	// Free again once the current source is done
	p.release()
	require.NoError(t, p.acquire(context.Background()))
	p.release()
}

func TestPCMSamples(t *testing.T) {
	out := make([]int16, 3)
	pcmSamples([]byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x01}, out)
	require.Equal(t, []int16{1, -1, 256}, out)
}
