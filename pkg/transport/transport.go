// Package transport describes the voice connection the bot captures from and plays into.
// The Discord implementation lives in pkg/discord.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/pion/rtp"
)

// ErrConnect wraps every failure to establish a voice connection.
var ErrConnect = errors.New("cannot connect to voice channel")

// Target identifies a voice channel within a guild.
type Target struct {
	GuildID   string
	ChannelID string
}

func (t Target) Empty() bool {
	return t.ChannelID == ""
}

type Dialer interface {
	Connect(ctx context.Context, target Target) (Connection, error)
}

// Connection is a live voice connection. It is owned by exactly one voice session.
type Connection interface {
	OpusSender
	ChannelID() string
	Receiver() Receiver
	Destroy() error
}

// OpusSender accepts 20ms Opus frames for playback.
type OpusSender interface {
	Speaking(on bool) error
	SendOpus(ctx context.Context, frame []byte) error
}

type SpeakingEvent struct {
	Participant string
	Speaking    bool
}

// EndBehavior controls when a subscribed stream ends by itself.
// A zero AfterSilence means the stream only ends when closed.
type EndBehavior struct {
	AfterSilence time.Duration
}

type Receiver interface {
	// OnSpeaking registers fn for speaking start and end events. The returned
	// function removes the handler and is safe to call more than once.
	OnSpeaking(fn func(SpeakingEvent)) (cancel func())

	// Subscribe opens a stream of Opus packets for one participant.
	Subscribe(participant string, end EndBehavior) Stream

	// Username resolves a display name for a participant, if known.
	Username(participant string) (string, bool)
}

// Stream delivers packets in arrival order. Packets is closed when the stream ends.
type Stream interface {
	Packets() <-chan *rtp.Packet
	Close()
}
