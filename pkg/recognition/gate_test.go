package recognition

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type mockResult struct {
	text string
	err  error
}

type mockService struct {
	lock    sync.Mutex
	calls   [][]byte
	results []mockResult
	release chan struct{}
}

func (s *mockService) RecognizeOnce(ctx context.Context, audio []byte) (string, error) {
	s.lock.Lock()
	s.calls = append(s.calls, audio)
	n := len(s.calls)
	s.lock.Unlock()

	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if n > len(s.results) {
		return "", ErrNoMatch
	}
	r := s.results[n-1]
	return r.text, r.err
}

func (s *mockService) callCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.calls)
}

type mockDispatcher struct {
	lock  sync.Mutex
	texts []string
}

func (d *mockDispatcher) OnUtteranceRecognized(text string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.texts = append(d.texts, text)
}

type mockListener struct {
	utterances []Utterance
}

func (l *mockListener) OnUtterance(u Utterance) {
	l.utterances = append(l.utterances, u)
}

type mockArchiver struct {
	keys []string
}

func (a *mockArchiver) Archive(_ context.Context, path string, key string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	a.keys = append(a.keys, key)
	return nil
}

func writeRecording(t *testing.T, name string, content string) string {
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

// countRemovals wraps the gate's delete so tests can count deletions per file.
func countRemovals(g *Gate) map[string]int {
	counts := make(map[string]int)
	var lock sync.Mutex
	g.remove = func(name string) error {
		lock.Lock()
		counts[name]++
		lock.Unlock()
		return os.Remove(name)
	}
	return counts
}

func TestGateRecognizedIsDispatchedAndDeleted(t *testing.T) {
	svc := &mockService{results: []mockResult{{text: "fifty"}}}
	listener := &mockListener{}
	g := NewGate(svc, Options{Listeners: []Listener{listener}})
	removed := countRemovals(g)
	dispatcher := &mockDispatcher{}

	file := writeRecording(t, "recording_duck_1.wav", "audio bytes")
	require.True(t, g.Submit(Request{Path: file, Participant: "A", Guild: "G", Dispatcher: dispatcher}))
	g.Wait()

	require.Equal(t, [][]byte{[]byte("audio bytes")}, svc.calls)
	require.Equal(t, []string{"fifty"}, dispatcher.texts)
	require.Len(t, listener.utterances, 1)
	require.Equal(t, "G", listener.utterances[0].Guild)
	require.Equal(t, "recording_duck_1.wav", listener.utterances[0].File)
	require.Equal(t, 1, removed[file])
	require.NoFileExists(t, file)
	require.False(t, g.Busy())
}

func TestGateNoMatchDeletesWithoutDispatch(t *testing.T) {
	svc := &mockService{results: []mockResult{{err: ErrNoMatch}}}
	g := NewGate(svc, Options{})
	removed := countRemovals(g)
	dispatcher := &mockDispatcher{}

	file := writeRecording(t, "a.wav", "x")
	g.Submit(Request{Path: file, Dispatcher: dispatcher})
	g.Wait()

	require.Empty(t, dispatcher.texts)
	require.Equal(t, 1, removed[file])
	require.NoFileExists(t, file)
}

func TestGateDropsConcurrentSubmission(t *testing.T) {
	svc := &mockService{
		results: []mockResult{{text: "hello"}},
		release: make(chan struct{}),
	}
	g := NewGate(svc, Options{})
	removed := countRemovals(g)

	first := writeRecording(t, "a.wav", "first")
	second := writeRecording(t, "b.wav", "second")

	require.True(t, g.Submit(Request{Path: first}))
	require.Eventually(t, func() bool { return svc.callCount() == 1 }, time.Second, time.Millisecond)
	require.False(t, g.Submit(Request{Path: second}))

	close(svc.release)
	g.Wait()

	require.Equal(t, 1, svc.callCount())
	require.Equal(t, 1, removed[first])
	require.Equal(t, 1, removed[second])
}

func TestGateRetriesQuotaOnce(t *testing.T) {
	svc := &mockService{results: []mockResult{{err: ErrQuotaExceeded}, {text: "fifty"}}}
	g := NewGate(svc, Options{RetryDelay: 20 * time.Millisecond})
	removed := countRemovals(g)
	dispatcher := &mockDispatcher{}

	file := writeRecording(t, "a.wav", "x")
	start := time.Now()
	g.Submit(Request{Path: file, Dispatcher: dispatcher})
	g.Wait()

	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	require.Equal(t, 2, svc.callCount())
	require.Equal(t, []string{"fifty"}, dispatcher.texts)
	require.Equal(t, 1, removed[file])
}

func TestGateQuotaRetryIsTerminal(t *testing.T) {
	svc := &mockService{results: []mockResult{{err: ErrQuotaExceeded}, {err: ErrQuotaExceeded}, {text: "never"}}}
	g := NewGate(svc, Options{RetryDelay: 10 * time.Millisecond})
	removed := countRemovals(g)

	file := writeRecording(t, "a.wav", "x")
	g.Submit(Request{Path: file})
	g.Wait()

	require.Equal(t, 2, svc.callCount())
	require.Equal(t, 1, removed[file])
	require.NoFileExists(t, file)
	require.False(t, g.Busy())
}

func TestGateOtherErrorDeletesImmediately(t *testing.T) {
	svc := &mockService{results: []mockResult{{err: errors.New("boom")}}}
	g := NewGate(svc, Options{RetryDelay: time.Hour})
	removed := countRemovals(g)

	file := writeRecording(t, "a.wav", "x")
	g.Submit(Request{Path: file})
	g.Wait()

	require.Equal(t, 1, svc.callCount())
	require.Equal(t, 1, removed[file])
}

func TestGateUnreadableFileSkipsRecognition(t *testing.T) {
	svc := &mockService{}
	g := NewGate(svc, Options{})

	g.Submit(Request{Path: filepath.Join(t.TempDir(), "missing.wav")})
	g.Wait()

	require.Equal(t, 0, svc.callCount())
	require.False(t, g.Busy())
}

func TestGateCloseCancelsPendingRetry(t *testing.T) {
	svc := &mockService{results: []mockResult{{err: ErrQuotaExceeded}, {text: "late"}}}
	g := NewGate(svc, Options{RetryDelay: time.Hour})
	removed := countRemovals(g)

	file := writeRecording(t, "a.wav", "x")
	g.Submit(Request{Path: file})
	require.Eventually(t, func() bool { return svc.callCount() == 1 }, time.Second, time.Millisecond)

	start := time.Now()
	g.Close()
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, 1, svc.callCount())
	require.Equal(t, 1, removed[file])

	// Submissions after close are dropped
	other := writeRecording(t, "b.wav", "x")
	require.False(t, g.Submit(Request{Path: other}))
	require.NoFileExists(t, other)
}

func TestGateArchivesBeforeDelete(t *testing.T) {
	svc := &mockService{results: []mockResult{{text: "hi"}}}
	archiver := &mockArchiver{}
	g := NewGate(svc, Options{Archiver: archiver})

	file := writeRecording(t, "a.wav", "x")
	g.Submit(Request{Path: file, Run: "run1"})
	g.Wait()

	require.Equal(t, []string{"run1/a.wav"}, archiver.keys)
	require.NoFileExists(t, file)
}
