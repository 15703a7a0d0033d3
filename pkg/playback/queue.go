package playback

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudgroundcontrol/soundboard-bot/pkg/transport"
	"github.com/labstack/gommon/log"
)

type Track struct {
	Title  string `json:"title"`
	Source string `json:"source"`
}

type QueueHooks struct {
	// OnIdle is called from its own goroutine when the last track has finished.
	OnIdle func()

	// OnError is called when a track cannot be played. The queue moves on to the next track.
	OnError func(t Track, err error)
}

// Queue plays tracks one after another in the order they were added.
type Queue struct {
	player Player
	hooks  QueueHooks

	lock    sync.Mutex
	out     transport.OpusSender
	tracks  []Track
	current *Track
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewQueue(player Player, hooks QueueHooks) *Queue {
	return &Queue{player: player, hooks: hooks}
}

// Enqueue adds a track and starts playing into out if the queue was idle.
func (q *Queue) Enqueue(out transport.OpusSender, t Track) {
	q.lock.Lock()
	defer q.lock.Unlock()

	q.tracks = append(q.tracks, t)
	q.out = out
	if q.done == nil {
		q.done = make(chan struct{})
		go q.loop(q.done)
	}
	log.Debugf("enqueued track | title: %s, pending: %d", t.Title, len(q.tracks))
}

func (q *Queue) loop(done chan struct{}) {
	defer close(done)

	for {
		q.lock.Lock()
		if len(q.tracks) == 0 {
			q.current = nil
			q.cancel = nil
			q.done = nil
			q.lock.Unlock()
			if q.hooks.OnIdle != nil {
				go q.hooks.OnIdle()
			}
			return
		}
		t := q.tracks[0]
		q.tracks = q.tracks[1:]
		ctx, cancel := context.WithCancel(context.Background())
		q.current = &t
		q.cancel = cancel
		out := q.out
		q.lock.Unlock()

		log.Infof("playing track | title: %s", t.Title)
		err := q.player.Play(ctx, out, t.Source)
		cancel()

		if err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("cannot play track | error: %v, title: %s", err, t.Title)
			if q.hooks.OnError != nil {
				q.hooks.OnError(t, err)
			}
		}
	}
}

// Skip stops the current track. It reports false when nothing is playing.
func (q *Queue) Skip() bool {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.current == nil {
		return false
	}
	q.cancel()
	return true
}

// Stop clears the queue, stops the current track and waits for playback to end. It reports
// false when nothing was playing.
func (q *Queue) Stop() bool {
	q.lock.Lock()
	playing := q.current != nil || len(q.tracks) > 0
	q.tracks = nil
	if q.cancel != nil {
		q.cancel()
	}
	done := q.done
	q.lock.Unlock()

	if done != nil {
		<-done
	}
	return playing
}

func (q *Queue) Playing() bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.done != nil
}

func (q *Queue) Current() (Track, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.current == nil {
		return Track{}, false
	}
	return *q.current, true
}

// Pending lists the tracks waiting after the current one.
func (q *Queue) Pending() []Track {
	q.lock.Lock()
	defer q.lock.Unlock()
	return append([]Track(nil), q.tracks...)
}
