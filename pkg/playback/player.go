package playback

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cloudgroundcontrol/soundboard-bot/pkg/playback/internal/static"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/transcoder"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/transport"
	"github.com/labstack/gommon/log"
	"gopkg.in/hraban/opus.v2"
)

// Player plays one source into a voice connection and returns when it has finished.
type Player interface {
	Play(ctx context.Context, out transport.OpusSender, source string) error
}

// Opus frames are at most this large for 20ms of stereo audio.
const maxPacketSize = 4000

// Trailing silence stops the receiving side from interpolating the last frame.
const trailingSilenceFrames = 5

var ErrPlayerBusy = errors.New("player busy")

// FFmpegPlayer decodes sources with ffmpeg and encodes 20ms Opus frames. It plays one source at
// a time. Concurrent calls wait their turn until their context ends.
type FFmpegPlayer struct {
	ffmpeg string
	slot   chan struct{}
}

func NewFFmpegPlayer(ffmpeg string) *FFmpegPlayer {
	return &FFmpegPlayer{ffmpeg: ffmpeg, slot: make(chan struct{}, 1)}
}

func (p *FFmpegPlayer) acquire(ctx context.Context) error {
	select {
	case p.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrPlayerBusy, ctx.Err())
	}
}

func (p *FFmpegPlayer) release() {
	<-p.slot
}

func (p *FFmpegPlayer) Play(ctx context.Context, out transport.OpusSender, source string) error {
	if err := p.acquire(ctx); err != nil {
		return err
	}
	defer p.release()

	enc, err := opus.NewEncoder(transcoder.SampleRate, transcoder.Channels, opus.AppAudio)
	if err != nil {
		return fmt.Errorf("creating encoder: %w", err)
	}

	pr, pw := io.Pipe()
	proc, err := transcoder.Start(transcoder.FFmpegDecode(p.ffmpeg, source), pw)
	if err != nil {
		return err
	}
	proc.CloseInput()
	go func() {
		<-proc.Done()
		pw.Close()
	}()
	defer func() {
		// Unblock ffmpeg's output copy before waiting for it
		proc.Kill()
		pr.Close()
		<-proc.Done()
	}()

	if err := out.Speaking(true); err != nil {
		log.Debugf("cannot set speaking | error: %v", err)
	}
	defer out.Speaking(false)

	frames, err := p.stream(ctx, out, enc, pr)
	if err != nil {
		return err
	}

	if err := sendSilence(ctx, out); err != nil {
		return err
	}

	<-proc.Done()
	if err := proc.Err(); err != nil && frames == 0 {
		return fmt.Errorf("decoding %s: %w", source, err)
	}
	log.Debugf("finished playback | source: %s, frames: %d", source, frames)
	return nil
}

func (p *FFmpegPlayer) stream(ctx context.Context, out transport.OpusSender, enc *opus.Encoder, r io.Reader) (int, error) {
	buf := make([]byte, transcoder.FrameSize*transcoder.Channels*2)
	pcm := make([]int16, transcoder.FrameSize*transcoder.Channels)
	packet := make([]byte, maxPacketSize)

	frames := 0
	for {
		n, err := io.ReadFull(r, buf)
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return frames, err
		}

		// Pad the last partial frame with silence
		clear(buf[n:])
		pcmSamples(buf, pcm)

		size, encErr := enc.Encode(pcm, packet)
		if encErr != nil {
			return frames, fmt.Errorf("encoding frame: %w", encErr)
		}
		frame := make([]byte, size)
		copy(frame, packet[:size])

		if sendErr := out.SendOpus(ctx, frame); sendErr != nil {
			return frames, sendErr
		}
		frames++

		if errors.Is(err, io.ErrUnexpectedEOF) {
			return frames, nil
		}
	}
}

func pcmSamples(b []byte, out []int16) {
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
}

func sendSilence(ctx context.Context, out transport.OpusSender) error {
	provider := static.NewProvider(trailingSilenceFrames)
	for {
		sample, err := provider.NextSample()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err := out.SendOpus(ctx, sample.Data); err != nil {
			return err
		}
	}
}
