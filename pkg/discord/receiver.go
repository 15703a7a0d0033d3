package discord

import (
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/metrics"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/transport"
	"github.com/labstack/gommon/log"
	"github.com/pion/rtp"
)

const (
	DefaultSilence = 100 * time.Millisecond

	// Packets buffered per subscriber. Once full, new packets are dropped and counted.
	streamBuffer = 256
)

// Receiver splits the packets of one voice connection by speaker. Discord only reports when a
// user starts speaking, so speech is considered over once no packets arrived for the silence
// timeout.
type Receiver struct {
	silence  time.Duration
	username func(userID string) (string, bool)
	metrics  *metrics.Metrics

	lock     sync.Mutex
	users    map[uint32]string // Key: SSRC
	lastSeen map[string]time.Time
	handlers map[int]func(transport.SpeakingEvent)
	nextID   int
	streams  map[string][]*stream
	closed   bool

	done      chan struct{}
	closeOnce sync.Once
}

func newReceiver(silence time.Duration, username func(string) (string, bool)) *Receiver {
	if silence <= 0 {
		silence = DefaultSilence
	}
	return &Receiver{
		silence:  silence,
		username: username,
		users:    make(map[uint32]string),
		lastSeen: make(map[string]time.Time),
		handlers: make(map[int]func(transport.SpeakingEvent)),
		streams:  make(map[string][]*stream),
		done:     make(chan struct{}),
	}
}

func (r *Receiver) run(packets <-chan *discordgo.Packet) {
	interval := r.silence / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case p, ok := <-packets:
			if !ok {
				r.Close()
				return
			}
			r.handlePacket(p, time.Now())
		case now := <-ticker.C:
			r.sweep(now)
		case <-r.done:
			return
		}
	}
}

func (r *Receiver) handleSpeakingUpdate(_ *discordgo.VoiceConnection, u *discordgo.VoiceSpeakingUpdate) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.users[uint32(u.SSRC)] = u.UserID
}

func (r *Receiver) handlePacket(p *discordgo.Packet, now time.Time) {
	r.lock.Lock()
	if r.closed {
		r.lock.Unlock()
		return
	}
	user, ok := r.users[p.SSRC]
	if !ok {
		r.lock.Unlock()
		log.Debugf("dropping packet from unknown speaker | ssrc: %d", p.SSRC)
		return
	}
	_, speaking := r.lastSeen[user]
	r.lastSeen[user] = now
	handlers := r.handlerList()
	r.lock.Unlock()

	// Subscribers opened by the start event receive the packet that caused it
	if !speaking {
		for _, h := range handlers {
			h(transport.SpeakingEvent{Participant: user, Speaking: true})
		}
	}

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			SequenceNumber: p.Sequence,
			Timestamp:      p.Timestamp,
			SSRC:           p.SSRC,
		},
		Payload: p.Opus,
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	for _, s := range r.streams[user] {
		s.last = now
		select {
		case s.packets <- pkt:
		default:
			s.dropped++
			r.metrics.RecordDroppedPacket()
			log.Debugf("subscriber too slow, dropping packet | participant: %s, sequence: %d", user, p.Sequence)
		}
	}
}

// sweep ends speech and streams that have been silent long enough.
func (r *Receiver) sweep(now time.Time) {
	r.lock.Lock()
	var ended []string
	for user, last := range r.lastSeen {
		if now.Sub(last) >= r.silence {
			delete(r.lastSeen, user)
			ended = append(ended, user)
		}
	}
	handlers := r.handlerList()
	r.lock.Unlock()

	for _, user := range ended {
		for _, h := range handlers {
			h(transport.SpeakingEvent{Participant: user, Speaking: false})
		}
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	for user, list := range r.streams {
		for _, s := range list {
			if s.end.AfterSilence > 0 && now.Sub(s.last) >= s.end.AfterSilence {
				r.removeLocked(user, s)
			}
		}
	}
}

func (r *Receiver) handlerList() []func(transport.SpeakingEvent) {
	out := make([]func(transport.SpeakingEvent), 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h)
	}
	return out
}

func (r *Receiver) OnSpeaking(fn func(transport.SpeakingEvent)) func() {
	r.lock.Lock()
	defer r.lock.Unlock()

	id := r.nextID
	r.nextID++
	r.handlers[id] = fn
	return func() {
		r.lock.Lock()
		defer r.lock.Unlock()
		delete(r.handlers, id)
	}
}

func (r *Receiver) Subscribe(participant string, end transport.EndBehavior) transport.Stream {
	r.lock.Lock()
	defer r.lock.Unlock()

	s := &stream{
		r:           r,
		participant: participant,
		end:         end,
		last:        time.Now(),
		packets:     make(chan *rtp.Packet, streamBuffer),
	}
	if r.closed {
		s.closed = true
		close(s.packets)
		return s
	}
	r.streams[participant] = append(r.streams[participant], s)
	return s
}

func (r *Receiver) Username(participant string) (string, bool) {
	if r.username == nil {
		return "", false
	}
	return r.username(participant)
}

// Close ends every stream and stops the receive loop.
func (r *Receiver) Close() {
	r.closeOnce.Do(func() {
		close(r.done)

		r.lock.Lock()
		defer r.lock.Unlock()
		r.closed = true
		for user, list := range r.streams {
			for _, s := range list {
				r.removeLocked(user, s)
			}
		}
	})
}

func (r *Receiver) removeLocked(user string, s *stream) {
	if s.closed {
		return
	}
	s.closed = true
	close(s.packets)
	if s.dropped > 0 {
		log.Warnf("stream dropped packets | participant: %s, dropped: %d", user, s.dropped)
	}

	list := r.streams[user]
	for i, other := range list {
		if other == s {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.streams, user)
	} else {
		r.streams[user] = list
	}
}

// stream fields other than packets are guarded by the receiver's lock.
type stream struct {
	r           *Receiver
	participant string
	end         transport.EndBehavior
	last        time.Time
	closed      bool
	dropped     int
	packets     chan *rtp.Packet
}

func (s *stream) Packets() <-chan *rtp.Packet {
	return s.packets
}

func (s *stream) Close() {
	s.r.lock.Lock()
	defer s.r.lock.Unlock()
	s.r.removeLocked(s.participant, s)
}
