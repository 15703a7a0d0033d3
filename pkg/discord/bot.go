// Package discord connects voice sessions to Discord: slash commands, voice connections and
// the text channel commands are issued from.
package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/metrics"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/transport"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/voice"
	"github.com/labstack/gommon/log"
)

var ErrEmptyToken = errors.New("empty discord bot token")

const (
	commandTimeout = 2 * time.Minute

	// Discord returns at most this many messages per request
	purgeLimit = 100

	replyGuildOnly = "Commands only work in a server."
)

type Sessions interface {
	Session(guildID string) *voice.Session
	Lookup(guildID string) (*voice.Session, bool)
}

type BotConfig struct {
	Token string

	// GuildID registers commands in one guild, which applies at once. Empty registers them
	// globally.
	GuildID string

	// Silence after which a speaker is considered done
	Silence time.Duration

	Metrics *metrics.Metrics
}

type Bot struct {
	cfg      BotConfig
	session  *discordgo.Session
	dialer   *Dialer
	sessions Sessions
	removers []func()
}

func NewBot(cfg BotConfig) (*Bot, error) {
	if cfg.Token == "" {
		return nil, ErrEmptyToken
	}

	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates | discordgo.IntentsGuildMessages

	return &Bot{
		cfg:     cfg,
		session: s,
		dialer:  NewDialer(s, cfg.Silence, cfg.Metrics),
	}, nil
}

func (b *Bot) Dialer() *Dialer {
	return b.dialer
}

// Open connects to the gateway and replaces the registered slash commands with ours.
func (b *Bot) Open(sessions Sessions) error {
	b.sessions = sessions
	b.removers = append(b.removers,
		b.session.AddHandler(b.onInteraction),
		b.session.AddHandler(b.onVoiceStateUpdate),
	)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("opening discord gateway: %w", err)
	}

	user := b.session.State.User
	if user == nil {
		return errors.New("discord gateway did not report the bot user")
	}
	if _, err := b.session.ApplicationCommandBulkOverwrite(user.ID, b.cfg.GuildID, commandDefinitions()); err != nil {
		return fmt.Errorf("registering slash commands: %w", err)
	}

	log.Infof("discord bot ready | user: %s, guild: %s, commands: %d", user.Username, b.cfg.GuildID, len(commands))
	return nil
}

func (b *Bot) Close() error {
	for _, remove := range b.removers {
		remove()
	}
	b.removers = nil
	return b.session.Close()
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	cmd, ok := findCommand(data.Name)
	if !ok {
		log.Warnf("unknown command | name: %s", data.Name)
		return
	}

	if i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Content: replyGuildOnly},
		})
		if err != nil {
			log.Errorf("cannot respond to interaction | error: %v, command: %s", err, data.Name)
		}
		return
	}

	// Acknowledge before Discord's deadline
	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	if cmd.ack != "" {
		resp = &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Content: cmd.ack},
		}
	}
	if err := s.InteractionRespond(i.Interaction, resp); err != nil {
		log.Errorf("cannot acknowledge interaction | error: %v, command: %s", err, data.Name)
		return
	}

	text := &textChannel{session: s, channelID: i.ChannelID}
	req := voice.Request{
		Target: b.voiceTarget(i.GuildID, i.Member.User.ID),
		Text:   text,
		Query:  queryOption(data),
	}
	log.Debugf("running command | command: %s, guild: %s, user: %s, channel: %s", data.Name, i.GuildID, i.Member.User.ID, req.Target.ChannelID)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	reply := cmd.run(b.sessions.Session(i.GuildID), ctx, req)

	// The acknowledgement may have been deleted by the command
	if cmd.ack != "" {
		text.Notify(reply)
		return
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &reply}); err != nil {
		log.Errorf("cannot edit interaction response | error: %v, command: %s", err, data.Name)
	}
}

func (b *Bot) voiceTarget(guildID string, userID string) transport.Target {
	target := transport.Target{GuildID: guildID}
	vs, err := b.session.State.VoiceState(guildID, userID)
	if err != nil {
		log.Debugf("user not in a voice channel | guild: %s, user: %s", guildID, userID)
		return target
	}
	target.ChannelID = vs.ChannelID
	return target
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if !isSelfDisconnect(s.State.User, v) {
		return
	}
	if b.dialer.consumeExpected(v.GuildID) {
		log.Debugf("voice disconnect confirmed | guild: %s", v.GuildID)
		return
	}

	sess, ok := b.sessions.Lookup(v.GuildID)
	if !ok {
		return
	}
	sess.HandleDisconnect()
}

func isSelfDisconnect(self *discordgo.User, v *discordgo.VoiceStateUpdate) bool {
	return self != nil && v.VoiceState != nil && v.UserID == self.ID && v.ChannelID == ""
}

// textChannel is the text channel an interaction came from.
type textChannel struct {
	session   *discordgo.Session
	channelID string
}

func (t *textChannel) Notify(text string) {
	if _, err := t.session.ChannelMessageSend(t.channelID, text); err != nil {
		log.Errorf("cannot send message | error: %v, channel: %s", err, t.channelID)
	}
}

// PurgeOwnMessages deletes the bot's messages among the latest in the channel.
func (t *textChannel) PurgeOwnMessages(ctx context.Context) error {
	msgs, err := t.session.ChannelMessages(t.channelID, purgeLimit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("listing messages in %s: %w", t.channelID, err)
	}
	if t.session.State.User == nil {
		return nil
	}

	for _, id := range ownMessages(msgs, t.session.State.User.ID) {
		if err := t.session.ChannelMessageDelete(t.channelID, id, discordgo.WithContext(ctx)); err != nil {
			log.Warnf("cannot delete message | error: %v, channel: %s, message: %s", err, t.channelID, id)
		}
	}
	return nil
}

func ownMessages(msgs []*discordgo.Message, selfID string) []string {
	var ids []string
	for _, m := range msgs {
		if m.Author != nil && m.Author.ID == selfID {
			ids = append(ids, m.ID)
		}
	}
	return ids
}
