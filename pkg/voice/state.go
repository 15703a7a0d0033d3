package voice

import "errors"

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
	StateRecording    State = "recording"
	StatePlaying      State = "playing"
	StateLeaving      State = "leaving"
)

// ErrStateConflict is returned when a command is not allowed in the current state.
var ErrStateConflict = errors.New("command conflicts with session state")

// Replies shown to users.
const (
	ReplyJoined             = "Joined the voice channel."
	ReplyAlreadyConnected   = "Already connected to this voice channel!"
	ReplyJoinFirst          = "You need to join a voice channel first!"
	ReplyConnectFailed      = "There was an error connecting to the voice channel."
	ReplyAlreadyRecording   = "Already recording!"
	ReplyRecordWhilePlaying = "Cannot record while music is playing."
	ReplyRecordNeedsChannel = "I need to be in a voice channel to start recording!"
	ReplyRecordingStarted   = "Started recording."
	ReplyJoinedAndRecording = "Joined the voice channel and started recording."
	ReplyRecordingStopped   = "Stopped recording."
	ReplyNotRecording       = "Not recording."
	ReplyPlayNeedsChannel   = "You need to be in a voice channel to play music!"
	ReplyEnqueued           = "**%s** enqueued!"
	ReplyPlayFailed         = "Something went wrong while trying to play that."
	ReplyTrackFailed        = "Could not play **%s**."
	ReplyNothingPlaying     = "There is no track currently playing."
	ReplySkipped            = "I have skipped to the next track"
	ReplyStopped            = "I have stopped the music"
	ReplyNotConnected       = "I am not in a voice channel!"
	ReplyLeaving            = "Leaving the voice channel..."
	ReplyLeft               = "Left the voice channel, and deleted messages."
)
