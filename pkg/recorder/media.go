package recorder

import (
	"encoding/binary"
	"io"

	"github.com/cloudgroundcontrol/soundboard-bot/pkg/transcoder"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
	"gopkg.in/hraban/opus.v2"
)

// Decoder turns one compressed frame into interleaved s16le PCM.
type Decoder interface {
	Decode(payload []byte) ([]byte, error)
}

// 120ms is the longest Opus frame.
const maxFrameSamples = 5760

type opusDecoder struct {
	dec *opus.Decoder
	pcm []int16
}

func NewOpusDecoder() (Decoder, error) {
	dec, err := opus.NewDecoder(transcoder.SampleRate, transcoder.Channels)
	if err != nil {
		return nil, err
	}
	return &opusDecoder{
		dec: dec,
		pcm: make([]int16, maxFrameSamples*transcoder.Channels),
	}, nil
}

func (d *opusDecoder) Decode(payload []byte) ([]byte, error) {
	n, err := d.dec.Decode(payload, d.pcm)
	if err != nil {
		return nil, err
	}
	return pcmBytes(d.pcm[:n*transcoder.Channels]), nil
}

func pcmBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// createArchiveWriter keeps the untouched Opus packets in an Ogg container.
func createArchiveWriter(out io.Writer) (media.Writer, error) {
	return oggwriter.NewWith(out, transcoder.SampleRate, transcoder.Channels)
}
