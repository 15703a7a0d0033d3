package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/voice"
)

type commandFunc func(s *voice.Session, ctx context.Context, req voice.Request) string

type command struct {
	def *discordgo.ApplicationCommand
	run commandFunc

	// Shown while the command runs instead of a loading indicator
	ack string
}

var commands = []command{
	{
		def: &discordgo.ApplicationCommand{Name: "join", Description: "Join your voice channel"},
		run: (*voice.Session).Join,
	},
	{
		def: &discordgo.ApplicationCommand{Name: "leave", Description: "Leave the voice channel and delete my messages"},
		run: (*voice.Session).Leave,
		ack: voice.ReplyLeaving,
	},
	{
		def: &discordgo.ApplicationCommand{Name: "record", Description: "Start listening to everyone in the voice channel"},
		run: (*voice.Session).StartRecording,
	},
	{
		def: &discordgo.ApplicationCommand{Name: "stop_recording", Description: "Stop listening"},
		run: (*voice.Session).StopRecording,
	},
	{
		def: &discordgo.ApplicationCommand{
			Name:        "play",
			Description: "Play a song",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "song_url",
					Description: "A link or search terms",
					Required:    true,
				},
			},
		},
		run: (*voice.Session).StartPlayback,
	},
	{
		def: &discordgo.ApplicationCommand{Name: "skip", Description: "Skip the current track"},
		run: (*voice.Session).Skip,
	},
	{
		def: &discordgo.ApplicationCommand{Name: "stop", Description: "Stop the music and clear the queue"},
		run: (*voice.Session).StopPlayback,
	},
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.def.Name == name {
			return c, true
		}
	}
	return command{}, false
}

func commandDefinitions() []*discordgo.ApplicationCommand {
	defs := make([]*discordgo.ApplicationCommand, 0, len(commands))
	for _, c := range commands {
		defs = append(defs, c.def)
	}
	return defs
}

// queryOption returns the song_url option, or an empty string.
func queryOption(data discordgo.ApplicationCommandInteractionData) string {
	for _, opt := range data.Options {
		if opt.Name == "song_url" && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}
