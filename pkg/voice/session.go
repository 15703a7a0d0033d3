package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloudgroundcontrol/soundboard-bot/pkg/metrics"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/participant"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/playback"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/recognition"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/recording"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/transport"
	"github.com/labstack/gommon/log"
)

const (
	DefaultCueTimeout     = 10 * time.Second
	DefaultConnectTimeout = 15 * time.Second
)

// TextSurface is the text channel a command came from.
type TextSurface interface {
	Notify(text string)
	PurgeOwnMessages(ctx context.Context) error
}

// Request carries what a command knows about the user who issued it.
type Request struct {
	// Target is the requester's current voice channel. Its ChannelID is empty when they are
	// not in one.
	Target transport.Target
	Text   TextSurface
	Query  string
}

type Submitter interface {
	Submit(req recognition.Request) bool
}

// Reactions picks a clip for recognized speech.
type Reactions interface {
	Match(text string) (string, bool)
}

type Options struct {
	GuildID   string
	Dialer    transport.Dialer
	Gate      Submitter
	Recording recording.Options
	Player    playback.Player
	Resolver  playback.Resolver
	Reactions Reactions

	JoinCue        string
	LeaveCue       string
	CueTimeout     time.Duration
	ConnectTimeout time.Duration

	Metrics *metrics.Metrics
}

// Session is the voice state of one guild. Commands run one at a time; transport callbacks and
// status reads run alongside them.
type Session struct {
	opts Options

	// Held for the whole of every command
	cmd sync.Mutex

	lock      sync.Mutex
	state     State
	conn      transport.Connection
	cueCancel context.CancelFunc
	// Where playback problems are reported
	playText TextSurface

	registry *recording.Registry
	queue    *playback.Queue
}

func NewSession(opts Options) *Session {
	if opts.CueTimeout <= 0 {
		opts.CueTimeout = DefaultCueTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}

	s := &Session{
		opts:  opts,
		state: StateDisconnected,
	}

	recOpts := opts.Recording
	recOpts.OnRecording = s.handoff
	recOpts.Metrics = opts.Metrics
	s.registry = recording.NewRegistry(recOpts)

	s.queue = playback.NewQueue(opts.Player, playback.QueueHooks{
		OnIdle:  s.playbackIdle,
		OnError: s.playbackFailed,
	})
	return s
}

func (s *Session) GuildID() string {
	return s.opts.GuildID
}

func (s *Session) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

func (s *Session) connection() transport.Connection {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.conn
}

func (s *Session) setState(state State) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.state != state {
		log.Debugf("session state changed | guild: %s, from: %s, to: %s", s.opts.GuildID, s.state, state)
	}
	s.state = state
}

// Join connects to the requester's voice channel.
func (s *Session) Join(ctx context.Context, req Request) string {
	s.cmd.Lock()
	defer s.cmd.Unlock()
	s.opts.Metrics.RecordCommand("join")

	if req.Target.Empty() {
		return ReplyJoinFirst
	}
	if conn := s.connection(); conn != nil && conn.ChannelID() == req.Target.ChannelID {
		return ReplyAlreadyConnected
	}

	conn, err := s.connect(ctx, req.Target)
	if err != nil {
		return ReplyConnectFailed
	}
	s.playJoinCue(conn)
	return ReplyJoined
}

// connect replaces any existing connection with one to target. Callers hold cmd.
func (s *Session) connect(ctx context.Context, target transport.Target) (transport.Connection, error) {
	if s.connection() != nil {
		s.teardown()
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	conn, err := s.opts.Dialer.Connect(ctx, target)
	if err != nil {
		log.Errorf("cannot connect to voice channel | error: %v, guild: %s, channel: %s", err, target.GuildID, target.ChannelID)
		s.setState(StateDisconnected)
		return nil, err
	}

	s.lock.Lock()
	s.conn = conn
	s.lock.Unlock()
	s.setState(StateConnected)

	log.Infof("joined voice channel | guild: %s, channel: %s", target.GuildID, target.ChannelID)
	return conn, nil
}

// StartRecording captures everyone speaking in the session's voice channel, joining the
// requester's channel first when needed.
func (s *Session) StartRecording(ctx context.Context, req Request) string {
	s.cmd.Lock()
	defer s.cmd.Unlock()
	s.opts.Metrics.RecordCommand("record")

	switch s.State() {
	case StateRecording:
		return ReplyAlreadyRecording
	case StatePlaying:
		log.Debugf("rejected recording | error: %v, guild: %s", ErrStateConflict, s.opts.GuildID)
		return ReplyRecordWhilePlaying
	}

	joined := false
	conn := s.connection()
	if conn == nil {
		if req.Target.Empty() {
			return ReplyRecordNeedsChannel
		}
		var err error
		if conn, err = s.connect(ctx, req.Target); err != nil {
			return ReplyConnectFailed
		}
		joined = true
	}

	var notify recording.Notifier
	if req.Text != nil {
		notify = req.Text
	}
	if _, err := s.registry.StartAll(conn.Receiver(), notify); err != nil {
		log.Errorf("cannot start recording | error: %v, guild: %s", err, s.opts.GuildID)
		return ReplyAlreadyRecording
	}
	s.setState(StateRecording)

	if joined {
		return ReplyJoinedAndRecording
	}
	return ReplyRecordingStarted
}

// StopRecording returns once every capture has been torn down.
func (s *Session) StopRecording(ctx context.Context, req Request) string {
	s.cmd.Lock()
	defer s.cmd.Unlock()
	s.opts.Metrics.RecordCommand("stop_recording")

	if s.State() != StateRecording {
		return ReplyNotRecording
	}
	s.registry.StopAll()
	s.setState(StateConnected)
	return ReplyRecordingStopped
}

// StartPlayback queues the requested track, stopping any recording first.
func (s *Session) StartPlayback(ctx context.Context, req Request) string {
	s.cmd.Lock()
	defer s.cmd.Unlock()
	s.opts.Metrics.RecordCommand("play")

	if req.Target.Empty() {
		return ReplyPlayNeedsChannel
	}

	if s.State() == StateRecording {
		s.registry.StopAll()
		s.setState(StateConnected)
	}

	conn := s.connection()
	if conn == nil || conn.ChannelID() != req.Target.ChannelID {
		var err error
		if conn, err = s.connect(ctx, req.Target); err != nil {
			return ReplyConnectFailed
		}
	}

	track, err := s.opts.Resolver.Resolve(ctx, req.Query)
	if err != nil {
		log.Errorf("cannot resolve track | error: %v, guild: %s, query: %s", err, s.opts.GuildID, req.Query)
		return ReplyPlayFailed
	}

	s.lock.Lock()
	s.playText = req.Text
	s.lock.Unlock()

	s.queue.Enqueue(conn, track)
	s.setState(StatePlaying)
	return fmt.Sprintf(ReplyEnqueued, track.Title)
}

// StopPlayback clears the queue and stops the current track.
func (s *Session) StopPlayback(ctx context.Context, req Request) string {
	s.cmd.Lock()
	defer s.cmd.Unlock()
	s.opts.Metrics.RecordCommand("stop")

	if !s.queue.Stop() {
		return ReplyNothingPlaying
	}
	if s.State() == StatePlaying {
		s.setState(StateConnected)
	}
	return ReplyStopped
}

func (s *Session) Skip(ctx context.Context, req Request) string {
	s.cmd.Lock()
	defer s.cmd.Unlock()
	s.opts.Metrics.RecordCommand("skip")

	if !s.queue.Skip() {
		return ReplyNothingPlaying
	}
	return ReplySkipped
}

func (s *Session) playbackIdle() {
	s.lock.Lock()
	defer s.lock.Unlock()

	// A track may have been queued again since the queue went idle
	if s.state == StatePlaying && !s.queue.Playing() {
		s.state = StateConnected
		log.Debugf("playback finished | guild: %s", s.opts.GuildID)
	}
}

func (s *Session) playbackFailed(t playback.Track, err error) {
	s.lock.Lock()
	text := s.playText
	s.lock.Unlock()

	if text != nil {
		text.Notify(fmt.Sprintf(ReplyTrackFailed, t.Title))
	}
}

// Leave stops everything, says goodbye and disconnects.
func (s *Session) Leave(ctx context.Context, req Request) string {
	s.cmd.Lock()
	defer s.cmd.Unlock()
	s.opts.Metrics.RecordCommand("leave")

	conn := s.connection()
	if conn == nil {
		return ReplyNotConnected
	}

	s.setState(StateLeaving)
	s.registry.StopAll()
	s.queue.Stop()
	s.cancelCue()

	if s.opts.LeaveCue != "" {
		cueCtx, cancel := context.WithTimeout(ctx, s.opts.CueTimeout)
		if err := s.opts.Player.Play(cueCtx, conn, s.opts.LeaveCue); err != nil {
			log.Warnf("cannot play leave cue | error: %v, guild: %s", err, s.opts.GuildID)
		}
		cancel()
	}

	s.release(conn)

	if req.Text != nil {
		if err := req.Text.PurgeOwnMessages(ctx); err != nil {
			log.Warnf("cannot delete messages | error: %v, guild: %s", err, s.opts.GuildID)
		}
	}
	log.Infof("left voice channel | guild: %s", s.opts.GuildID)
	return ReplyLeft
}

// HandleDisconnect tears the session down after the transport lost the connection.
func (s *Session) HandleDisconnect() {
	s.cmd.Lock()
	defer s.cmd.Unlock()

	if s.connection() == nil {
		return
	}
	log.Warnf("voice connection lost | guild: %s", s.opts.GuildID)
	s.teardown()
}

// Shutdown disconnects without the leave cue.
func (s *Session) Shutdown() {
	s.cmd.Lock()
	defer s.cmd.Unlock()
	s.teardown()
}

// teardown stops recording and playback and releases the connection. Callers hold cmd.
func (s *Session) teardown() {
	s.setState(StateLeaving)
	s.registry.StopAll()
	s.queue.Stop()
	s.cancelCue()

	if conn := s.connection(); conn != nil {
		s.release(conn)
	}
	s.setState(StateDisconnected)
}

func (s *Session) release(conn transport.Connection) {
	if err := conn.Destroy(); err != nil {
		log.Warnf("cannot destroy voice connection | error: %v, guild: %s", err, s.opts.GuildID)
	}
	s.lock.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.lock.Unlock()
	s.setState(StateDisconnected)
}

func (s *Session) playJoinCue(conn transport.Connection) {
	if s.opts.JoinCue == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.CueTimeout)

	s.lock.Lock()
	s.cueCancel = cancel
	s.lock.Unlock()

	go func() {
		defer cancel()
		if err := s.opts.Player.Play(ctx, conn, s.opts.JoinCue); err != nil {
			log.Warnf("cannot play join cue | error: %v, guild: %s", err, s.opts.GuildID)
		}
	}()
}

func (s *Session) cancelCue() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.cueCancel != nil {
		s.cueCancel()
		s.cueCancel = nil
	}
}

func (s *Session) handoff(runID string, data participant.Data) {
	s.opts.Gate.Submit(recognition.Request{
		Path:        data.Output,
		Guild:       s.opts.GuildID,
		Participant: data.Identity,
		Run:         runID,
		Dispatcher:  s,
	})
}

// OnUtteranceRecognized plays the matching reaction clip, if any, on the current connection.
func (s *Session) OnUtteranceRecognized(text string) {
	clip, ok := s.opts.Reactions.Match(text)
	if !ok {
		log.Debugf("no reaction for utterance | guild: %s, text: %s", s.opts.GuildID, text)
		return
	}

	conn := s.connection()
	if conn == nil {
		log.Infof("not connected, skipping reaction | guild: %s, clip: %s", s.opts.GuildID, clip)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.CueTimeout)
		defer cancel()
		if err := s.opts.Player.Play(ctx, conn, clip); err != nil {
			log.Warnf("cannot play reaction | error: %v, guild: %s, clip: %s", err, s.opts.GuildID, clip)
		}
	}()
}

type Status struct {
	Guild    string   `json:"guild"`
	State    State    `json:"state"`
	Channel  string   `json:"channel,omitempty"`
	Captures []string `json:"captures"`
	Track    string   `json:"track,omitempty"`
	Pending  int      `json:"pending"`
}

func (s *Session) Status() Status {
	st := Status{
		Guild:    s.opts.GuildID,
		State:    s.State(),
		Captures: s.registry.Active(),
		Pending:  len(s.queue.Pending()),
	}
	if conn := s.connection(); conn != nil {
		st.Channel = conn.ChannelID()
	}
	if t, ok := s.queue.Current(); ok {
		st.Track = t.Title
	}
	return st
}
