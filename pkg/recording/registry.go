package recording

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudgroundcontrol/soundboard-bot/pkg/metrics"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/participant"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/recorder"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/transport"
	"github.com/labstack/gommon/log"
	"github.com/lithammer/shortuuid/v4"
)

var ErrAlreadyRecording = errors.New("already recording")

const DefaultSilence = 100 * time.Millisecond

// Notifier posts a short message where the recording was requested.
type Notifier interface {
	Notify(text string)
}

type Options struct {
	Channel recorder.Config

	// Silence ends a participant's stream after this long without packets.
	Silence time.Duration

	// OnRecording receives every finished capture, tagged with the run it belongs to.
	OnRecording func(runID string, data participant.Data)
	OnArchive   func(runID string, path string)

	Metrics *metrics.Metrics
}

// Registry keeps at most one capture per participant for one voice connection.
type Registry struct {
	opts Options

	lock     sync.Mutex
	sub      *Subscription
	receiver transport.Receiver
	notify   Notifier
	stopping bool

	// Key: participant identity
	channels map[string]*recorder.Channel
	// Captures being spawned. True once their speech ended before the spawn finished
	starting map[string]bool

	// Every capture started by this registry that has not finished teardown
	live sync.WaitGroup
}

func NewRegistry(opts Options) *Registry {
	if opts.Silence <= 0 {
		opts.Silence = DefaultSilence
	}
	return &Registry{
		opts:     opts,
		channels: make(map[string]*recorder.Channel),
		starting: make(map[string]bool),
	}
}

// StartAll begins capturing everyone who speaks on the receiver until StopAll.
func (r *Registry) StartAll(receiver transport.Receiver, notify Notifier) (*Subscription, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.sub != nil {
		return nil, ErrAlreadyRecording
	}

	sub := &Subscription{ID: shortuuid.New()}
	r.sub = sub
	r.receiver = receiver
	r.notify = notify
	r.stopping = false

	sub.cancel = receiver.OnSpeaking(func(ev transport.SpeakingEvent) {
		if ev.Speaking {
			r.open(sub, ev.Participant)
		} else {
			r.close(ev.Participant)
		}
	})

	log.Infof("started recording run | run: %s", sub.ID)
	return sub, nil
}

// open starts a capture for identity. Spawning the transcoder happens outside the lock, with the
// participant reserved in starting so a repeated start event is ignored.
func (r *Registry) open(sub *Subscription, identity string) {
	r.lock.Lock()
	// Events can still arrive from a run that is being stopped
	if r.sub != sub || r.stopping {
		r.lock.Unlock()
		log.Debugf("ignoring speaking start outside recording | participant: %s, run: %s", identity, sub.ID)
		return
	}
	if _, found := r.channels[identity]; found {
		r.lock.Unlock()
		log.Debugf("already capturing participant | participant: %s", identity)
		return
	}
	if _, found := r.starting[identity]; found {
		r.lock.Unlock()
		log.Debugf("capture already starting | participant: %s", identity)
		return
	}
	r.starting[identity] = false
	receiver := r.receiver
	notify := r.notify
	// Counted before StopAll can mark the run stopping, so StopAll waits for this start
	r.live.Add(1)
	r.lock.Unlock()

	username, ok := receiver.Username(identity)
	if !ok {
		username = identity
	}

	var closed atomic.Bool
	stream := receiver.Subscribe(identity, transport.EndBehavior{AfterSilence: r.opts.Silence})
	c, err := recorder.New(r.opts.Channel, identity, username, stream, recorder.Hooks{
		OnClosed: func(c *recorder.Channel) {
			closed.Store(true)
			r.remove(c)
		},
		OnRecording: func(data participant.Data) {
			if r.opts.OnRecording != nil {
				r.opts.OnRecording(sub.ID, data)
			}
		},
		OnFailure: func(data participant.Data, err error) {
			if notify != nil {
				notify.Notify(fmt.Sprintf("Recording for user %s failed!", data.Identity))
			}
		},
		OnArchive: func(path string) {
			if r.opts.OnArchive != nil {
				r.opts.OnArchive(sub.ID, path)
			}
		},
	})
	if err != nil {
		r.lock.Lock()
		delete(r.starting, identity)
		r.lock.Unlock()
		r.live.Done()

		log.Errorf("cannot start capture | error: %v, participant: %s", err, identity)
		r.opts.Metrics.RecordCaptureFailure()
		return
	}

	r.opts.Metrics.RecordCaptureStart()
	go func() {
		defer r.live.Done()
		<-c.Done()
		r.opts.Metrics.RecordCaptureEnd("done", c.Killed())
	}()

	r.lock.Lock()
	ended := r.starting[identity]
	delete(r.starting, identity)
	abandoned := r.sub != sub || r.stopping
	if !abandoned && !ended && !closed.Load() {
		r.channels[identity] = c
	}
	r.lock.Unlock()

	switch {
	case abandoned:
		log.Debugf("recording stopped while capture was starting | participant: %s, run: %s", identity, sub.ID)
		c.Destroy()
	case ended:
		log.Debugf("speech ended while capture was starting | participant: %s", identity)
		c.Destroy()
	}
}

func (r *Registry) close(identity string) {
	r.lock.Lock()
	c, found := r.channels[identity]
	if _, starting := r.starting[identity]; starting {
		r.starting[identity] = true
	}
	r.lock.Unlock()

	if !found {
		log.Debugf("no capture to close | participant: %s", identity)
		return
	}

	// Destroy calls back into remove, so the lock must not be held here
	c.Destroy()
}

func (r *Registry) remove(c *recorder.Channel) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.channels[c.Identity()] == c {
		delete(r.channels, c.Identity())
	}
}

// StopAll tears down every capture concurrently and returns once all of them have finished or
// been killed. No capture can start again until the next StartAll.
func (r *Registry) StopAll() {
	r.lock.Lock()
	if r.sub == nil && len(r.channels) == 0 {
		r.lock.Unlock()
		return
	}

	r.stopping = true
	sub := r.sub
	channels := make([]*recorder.Channel, 0, len(r.channels))
	for _, c := range r.channels {
		channels = append(channels, c)
	}
	r.lock.Unlock()

	// Unsubscribe first so nothing new starts while the fan-out runs
	if sub != nil {
		sub.Cancel()
	}

	var wg sync.WaitGroup
	for _, c := range channels {
		wg.Add(1)
		go func(c *recorder.Channel) {
			defer wg.Done()
			c.Stop()
		}(c)
	}
	wg.Wait()

	// Captures that ended on their own before the stop may still be finishing
	r.live.Wait()

	r.lock.Lock()
	r.sub = nil
	r.receiver = nil
	r.notify = nil
	r.stopping = false
	r.lock.Unlock()

	if sub != nil {
		log.Infof("stopped recording run | run: %s, captures: %d", sub.ID, len(channels))
	}
}

// Recording reports whether a run is active.
func (r *Registry) Recording() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.sub != nil && !r.stopping
}

// Active lists the participants currently being captured.
func (r *Registry) Active() []string {
	r.lock.Lock()
	defer r.lock.Unlock()

	ids := make([]string, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
