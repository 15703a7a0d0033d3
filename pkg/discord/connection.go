package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/metrics"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/transport"
	"github.com/labstack/gommon/log"
)

// Dialer joins voice channels through a gateway session.
type Dialer struct {
	session *discordgo.Session
	silence time.Duration
	metrics *metrics.Metrics

	// Disconnects we caused and have not yet seen reported by the gateway. Key: guild ID
	lock     sync.Mutex
	expected map[string]int
}

func NewDialer(session *discordgo.Session, silence time.Duration, m *metrics.Metrics) *Dialer {
	return &Dialer{
		session:  session,
		silence:  silence,
		metrics:  m,
		expected: make(map[string]int),
	}
}

func (d *Dialer) Connect(ctx context.Context, target transport.Target) (transport.Connection, error) {
	type result struct {
		vc  *discordgo.VoiceConnection
		err error
	}
	ch := make(chan result, 1)
	go func() {
		// Not deafened, otherwise Discord sends no audio
		vc, err := d.session.ChannelVoiceJoin(target.GuildID, target.ChannelID, false, false)
		ch <- result{vc, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			if res.vc != nil {
				d.disconnect(target.GuildID, res.vc)
			}
			return nil, fmt.Errorf("%w: %v", transport.ErrConnect, res.err)
		}
		return d.newConnection(target, res.vc), nil
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.vc != nil {
				d.disconnect(target.GuildID, res.vc)
			}
		}()
		return nil, fmt.Errorf("%w: %v", transport.ErrConnect, ctx.Err())
	}
}

func (d *Dialer) newConnection(target transport.Target, vc *discordgo.VoiceConnection) *Connection {
	// Reports for earlier connections arrive before a join completes
	d.lock.Lock()
	delete(d.expected, target.GuildID)
	d.lock.Unlock()

	receiver := newReceiver(d.silence, func(userID string) (string, bool) {
		return d.username(target.GuildID, userID)
	})
	receiver.metrics = d.metrics
	vc.AddHandler(receiver.handleSpeakingUpdate)
	go receiver.run(vc.OpusRecv)

	return &Connection{
		dialer:   d,
		target:   target,
		vc:       vc,
		receiver: receiver,
	}
}

func (d *Dialer) username(guildID string, userID string) (string, bool) {
	if m, err := d.session.State.Member(guildID, userID); err == nil && m.User != nil {
		return m.User.Username, true
	}
	u, err := d.session.User(userID)
	if err != nil {
		log.Debugf("cannot look up user | error: %v, user: %s", err, userID)
		return "", false
	}
	return u.Username, true
}

func (d *Dialer) disconnect(guildID string, vc *discordgo.VoiceConnection) error {
	d.lock.Lock()
	d.expected[guildID]++
	d.lock.Unlock()
	return vc.Disconnect()
}

// consumeExpected reports whether a disconnect in guildID was caused by us.
func (d *Dialer) consumeExpected(guildID string) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.expected[guildID] == 0 {
		return false
	}
	d.expected[guildID]--
	if d.expected[guildID] == 0 {
		delete(d.expected, guildID)
	}
	return true
}

type Connection struct {
	dialer   *Dialer
	target   transport.Target
	vc       *discordgo.VoiceConnection
	receiver *Receiver
	once     sync.Once
}

func (c *Connection) ChannelID() string {
	return c.target.ChannelID
}

func (c *Connection) Receiver() transport.Receiver {
	return c.receiver
}

func (c *Connection) Speaking(on bool) error {
	return c.vc.Speaking(on)
}

func (c *Connection) SendOpus(ctx context.Context, frame []byte) error {
	select {
	case c.vc.OpusSend <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) Destroy() error {
	var err error
	c.once.Do(func() {
		c.receiver.Close()
		err = c.dialer.disconnect(c.target.GuildID, c.vc)
	})
	return err
}
