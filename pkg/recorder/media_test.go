package recorder

import (
	"bytes"
	"testing"

	"github.com/cloudgroundcontrol/soundboard-bot/pkg/transcoder"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
	"gopkg.in/hraban/opus.v2"
)

func TestPCMBytesIsLittleEndian(t *testing.T) {
	out := pcmBytes([]int16{1, -1, 256})
	require.Equal(t, []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x01}, out)
}

func TestDecodeOpusFrame(t *testing.T) {
	enc, err := opus.NewEncoder(transcoder.SampleRate, transcoder.Channels, opus.AppVoIP)
	require.NoError(t, err)

	silence := make([]int16, transcoder.FrameSize*transcoder.Channels)
	frame := make([]byte, 1000)
	n, err := enc.Encode(silence, frame)
	require.NoError(t, err)

	dec, err := NewOpusDecoder()
	require.NoError(t, err)

	pcm, err := dec.Decode(frame[:n])
	require.NoError(t, err)
	require.Len(t, pcm, transcoder.FrameSize*transcoder.Channels*2)
}

func TestArchiveWriterAcceptsPackets(t *testing.T) {
	var buf bytes.Buffer
	w, err := createArchiveWriter(&buf)
	require.NoError(t, err)

	err = w.WriteRTP(&rtp.Packet{
		Header:  rtp.Header{SequenceNumber: 1, Timestamp: 960},
		Payload: []byte{0xf8, 0xff, 0xfe},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Ogg pages start with the capture pattern
	require.True(t, bytes.HasPrefix(buf.Bytes(), []byte("OggS")))
}
