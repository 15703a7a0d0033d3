package static

import (
	"io"
	"time"

	"github.com/pion/webrtc/v3/pkg/media"
)

// SilenceFrame is the Opus encoding of 20ms of silence.
var SilenceFrame = []byte{0xf8, 0xff, 0xfe}

const FrameDuration = 20 * time.Millisecond

type Provider struct {
	remaining int
}

// NewProvider yields n silence frames and then io.EOF.
func NewProvider(n int) *Provider {
	return &Provider{remaining: n}
}

func (p *Provider) NextSample() (media.Sample, error) {
	if p.remaining <= 0 {
		return media.Sample{}, io.EOF
	}
	p.remaining--
	return media.Sample{
		Data:     SilenceFrame,
		Duration: FrameDuration,
	}, nil
}
