package recognition

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudgroundcontrol/soundboard-bot/pkg/metrics"
	"github.com/labstack/gommon/log"
)

const (
	DefaultRetryDelay = 5 * time.Second
	DefaultTimeout    = 30 * time.Second

	// One call plus one retry on quota errors
	maxAttempts = 2
)

type Options struct {
	RetryDelay time.Duration
	Timeout    time.Duration
	Archiver   Archiver
	Listeners  []Listener
	Metrics    *metrics.Metrics
}

// Gate lets one recognition call run at a time for the whole process. Submissions that arrive
// while a call is in flight are dropped, not queued.
type Gate struct {
	svc  Service
	opts Options

	busy atomic.Bool

	lock   sync.Mutex
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	remove func(string) error
}

func NewGate(svc Service, opts Options) *Gate {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gate{
		svc:    svc,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		remove: os.Remove,
	}
}

// Busy reports whether a recognition is in flight, including a pending retry.
func (g *Gate) Busy() bool {
	return g.busy.Load()
}

// Submit hands a finished recording to the gate and returns immediately. It reports whether
// the recording was accepted. Rejected recordings are deleted.
func (g *Gate) Submit(req Request) bool {
	g.lock.Lock()
	defer g.lock.Unlock()

	if g.closed {
		log.Warnf("recognition gate closed, dropping submission | file: %s", req.Path)
		g.delete(req.Path)
		return false
	}

	if !g.busy.CompareAndSwap(false, true) {
		log.Warnf("recognition in progress, dropping submission | file: %s, participant: %s", req.Path, req.Participant)
		g.opts.Metrics.RecordRecognition("dropped", 0)
		g.delete(req.Path)
		return false
	}

	g.wg.Add(1)
	go g.run(req)
	return true
}

func (g *Gate) run(req Request) {
	defer g.wg.Done()
	defer g.busy.Store(false)
	defer g.finish(req)

	audio, err := os.ReadFile(req.Path)
	if err != nil {
		log.Errorf("cannot read recording | error: %v, file: %s", err, req.Path)
		g.opts.Metrics.RecordRecognition("unreadable", 0)
		return
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		text, err := g.recognize(audio)
		switch {
		case err == nil:
			log.Infof("recognized speech | participant: %s, text: %s", req.Participant, text)
			g.dispatch(req, text)
			return
		case errors.Is(err, ErrNoMatch):
			log.Debugf("no speech recognized | participant: %s, file: %s", req.Participant, req.Path)
			return
		case errors.Is(err, ErrQuotaExceeded) && attempt == 0:
			log.Warnf("recognition quota exceeded, retrying once | delay: %s, file: %s", g.opts.RetryDelay, req.Path)
			if !g.wait(g.opts.RetryDelay) {
				log.Infof("recognition gate closed before retry | file: %s", req.Path)
				return
			}
		default:
			log.Errorf("recognition failed | error: %v, attempt: %d, file: %s", err, attempt+1, req.Path)
			return
		}
	}
}

func (g *Gate) recognize(audio []byte) (string, error) {
	ctx, cancel := context.WithTimeout(g.ctx, g.opts.Timeout)
	defer cancel()

	start := time.Now()
	text, err := g.svc.RecognizeOnce(ctx, audio)
	g.opts.Metrics.RecordRecognition(outcome(err), time.Since(start))
	return text, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "recognized"
	case errors.Is(err, ErrNoMatch):
		return "no_match"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	default:
		return "error"
	}
}

func (g *Gate) wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-g.ctx.Done():
		return false
	}
}

func (g *Gate) dispatch(req Request, text string) {
	if req.Dispatcher != nil {
		req.Dispatcher.OnUtteranceRecognized(text)
	}

	u := Utterance{
		Guild:       req.Guild,
		Participant: req.Participant,
		Text:        text,
		File:        filepath.Base(req.Path),
		Time:        time.Now(),
	}
	for _, l := range g.opts.Listeners {
		l.OnUtterance(u)
	}
}

// finish runs once per accepted submission, whatever the outcome.
func (g *Gate) finish(req Request) {
	if g.opts.Archiver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), g.opts.Timeout)
		key := path.Join(req.Run, filepath.Base(req.Path))
		if err := g.opts.Archiver.Archive(ctx, req.Path, key); err != nil {
			log.Errorf("cannot archive recording | error: %v, file: %s", err, req.Path)
		}
		cancel()
	}
	g.delete(req.Path)
}

func (g *Gate) delete(file string) {
	if err := g.remove(file); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Errorf("cannot delete recording | error: %v, file: %s", err, file)
		return
	}
	log.Debugf("deleted recording | file: %s", file)
}

// Wait blocks until the in-flight recognition, if any, has finished.
func (g *Gate) Wait() {
	g.wg.Wait()
}

// Close cancels a pending retry and waits for the in-flight recognition to finish. Later
// submissions are dropped.
func (g *Gate) Close() {
	g.lock.Lock()
	g.closed = true
	g.lock.Unlock()

	g.cancel()
	g.wg.Wait()
}
