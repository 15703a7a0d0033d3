package recorder

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cloudgroundcontrol/soundboard-bot/pkg/participant"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/transcoder"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/transport"
	"github.com/labstack/gommon/log"
	"github.com/pion/webrtc/v3/pkg/media"
)

var ErrOutputMissing = errors.New("recording output missing")

const (
	DefaultGrace        = 3 * time.Second
	DefaultHandoffDelay = time.Second
)

type Config struct {
	Dir        string
	Transcoder transcoder.Command
	NewDecoder func() (Decoder, error)

	// Grace bounds how long teardown waits for the transcoder before killing it.
	Grace time.Duration

	// HandoffDelay is waited after teardown before the output is handed on.
	HandoffDelay time.Duration

	// RawArchive also keeps the received Opus packets next to the output as .ogg.
	RawArchive bool
}

func (c Config) withDefaults() Config {
	if c.Grace <= 0 {
		c.Grace = DefaultGrace
	}
	if c.NewDecoder == nil {
		c.NewDecoder = NewOpusDecoder
	}
	return c
}

type Hooks struct {
	// OnClosed is called once, when teardown starts.
	OnClosed func(c *Channel)

	// OnRecording receives the finished capture after the handoff delay.
	OnRecording func(data participant.Data)

	// OnFailure is called instead of OnRecording when the output cannot be found.
	OnFailure func(data participant.Data, err error)

	// OnArchive receives the raw .ogg file once it is complete.
	OnArchive func(path string)
}

// Channel captures one participant: Opus packets are decoded to PCM and streamed into a
// transcoder whose output is written to a file.
type Channel struct {
	cfg   Config
	hooks Hooks

	lock  sync.Mutex
	state participant.State
	data  participant.Data

	stream  transport.Stream
	decoder Decoder
	proc    *transcoder.Process
	sink    Sink

	archive     media.Writer
	archivePath string

	pumpDone chan struct{}
	done     chan struct{}
}

// New starts a capture. The stream is owned by the channel from here on, and is closed even if
// the capture cannot start.
func New(cfg Config, identity string, username string, stream transport.Stream, hooks Hooks) (*Channel, error) {
	cfg = cfg.withDefaults()
	start := time.Now()

	filename, err := participant.RecordingFilename(cfg.Dir, username, start)
	if err != nil {
		stream.Close()
		return nil, err
	}

	decoder, err := cfg.NewDecoder()
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	sink, err := NewFileSink(filename)
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("creating output: %w", err)
	}

	proc, err := transcoder.Start(cfg.Transcoder, sink)
	if err != nil {
		stream.Close()
		sink.Close()
		os.Remove(filename)
		return nil, err
	}

	c := &Channel{
		cfg:   cfg,
		hooks: hooks,
		state: participant.StateRecording,
		data: participant.Data{
			Identity: identity,
			Username: username,
			Start:    start,
			Output:   filename,
		},
		stream:   stream,
		decoder:  decoder,
		proc:     proc,
		sink:     sink,
		pumpDone: make(chan struct{}),
		done:     make(chan struct{}),
	}

	if cfg.RawArchive {
		c.openArchive()
	}

	go c.pump()
	go c.watch()

	log.Infof("started capture | participant: %s, output: %s, pid: %d", identity, filename, proc.Pid())
	return c, nil
}

func (c *Channel) openArchive() {
	path := strings.TrimSuffix(c.data.Output, ".wav") + ".ogg"
	sink, err := NewFileSink(path)
	if err != nil {
		log.Errorf("cannot create raw archive | error: %v, participant: %s", err, c.data.Identity)
		return
	}
	w, err := createArchiveWriter(sink)
	if err != nil {
		log.Errorf("cannot create raw archive | error: %v, participant: %s", err, c.data.Identity)
		sink.Close()
		os.Remove(path)
		return
	}
	c.archive = w
	c.archivePath = path
}

func (c *Channel) Identity() string {
	return c.data.Identity
}

func (c *Channel) Data() participant.Data {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.data
}

// Killed reports whether the transcoder had to be killed during teardown.
func (c *Channel) Killed() bool {
	return c.proc.Killed()
}

// Done is closed when the transcoder has exited and the output file is closed.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// pump moves packets into the transcoder in arrival order. A write blocks while the transcoder
// input is full, which stops packets being taken from the stream until it drains.
func (c *Channel) pump() {
	defer close(c.pumpDone)

	for packet := range c.stream.Packets() {
		if c.archive != nil {
			if err := c.archive.WriteRTP(packet); err != nil {
				log.Debugf("cannot archive packet | error: %v, participant: %s", err, c.data.Identity)
			}
		}

		pcm, err := c.decoder.Decode(packet.Payload)
		if err != nil {
			log.Debugf("cannot decode frame | error: %v, participant: %s, seq: %d", err, c.data.Identity, packet.SequenceNumber)
			continue
		}

		if _, err := c.proc.Write(pcm); err != nil {
			if !errors.Is(err, transcoder.ErrInputClosed) {
				log.Errorf("cannot write to transcoder | error: %v, participant: %s", err, c.data.Identity)
			}
			break
		}
	}

	// The stream ended by itself or the transcoder stopped accepting input
	c.Destroy()
}

func (c *Channel) watch() {
	<-c.proc.Done()
	c.Destroy()
}

// Destroy starts teardown. It returns false when teardown had already started.
func (c *Channel) Destroy() bool {
	c.lock.Lock()
	if c.state == participant.StateDone {
		c.lock.Unlock()
		log.Debugf("capture already destroyed | participant: %s", c.data.Identity)
		return false
	}
	c.state = participant.StateDone
	c.data.End = time.Now()
	c.lock.Unlock()

	c.stream.Close()
	if c.hooks.OnClosed != nil {
		c.hooks.OnClosed(c)
	}

	go c.finalize()
	return true
}

// Stop destroys the channel and waits until the transcoder is gone.
func (c *Channel) Stop() {
	c.Destroy()
	<-c.done
}

func (c *Channel) finalize() {
	defer close(c.done)

	// Let queued packets drain, but within the same grace period as the transcoder
	deadline := time.Now().Add(c.cfg.Grace)
	timer := time.NewTimer(c.cfg.Grace)
	select {
	case <-c.pumpDone:
	case <-timer.C:
	}
	timer.Stop()

	if err := c.proc.StopBy(deadline); err != nil && !c.proc.Killed() {
		log.Warnf("transcoder exited with error | error: %v, participant: %s", err, c.data.Identity)
	}
	<-c.pumpDone

	if err := c.sink.Close(); err != nil && !errors.Is(err, ErrSinkClosed) {
		log.Errorf("cannot close output | error: %v, participant: %s", err, c.data.Identity)
	}
	c.closeArchive()

	data := c.Data()
	if _, err := os.Stat(data.Output); err != nil {
		log.Errorf("cannot find output | error: %v, participant: %s, output: %s", err, data.Identity, data.Output)
		if c.hooks.OnFailure != nil {
			c.hooks.OnFailure(data, fmt.Errorf("%w: %v", ErrOutputMissing, err))
		}
		return
	}

	log.Debugf("finished capture | participant: %s, output: %s, duration: %s", data.Identity, data.Output, data.End.Sub(data.Start))
	if c.hooks.OnRecording != nil {
		time.AfterFunc(c.cfg.HandoffDelay, func() {
			c.hooks.OnRecording(data)
		})
	}
}

func (c *Channel) closeArchive() {
	if c.archive == nil {
		return
	}
	if err := c.archive.Close(); err != nil && !errors.Is(err, ErrSinkClosed) {
		log.Errorf("cannot close raw archive | error: %v, participant: %s", err, c.data.Identity)
		return
	}
	if c.hooks.OnArchive != nil {
		c.hooks.OnArchive(c.archivePath)
	}
}
