package participant

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	require.Equal(t, "a_b_c_d_e_f_g_h_i_j", SanitizeFilename(`a\b/c*d?e:f"g<h>i|j`))
	require.Equal(t, "plain name.wav", SanitizeFilename("plain name.wav"))
}

func TestRecordingFilename(t *testing.T) {
	start := time.UnixMilli(1700000000123)
	name, err := RecordingFilename("recordings", "duck/lord", start)
	require.NoError(t, err)
	require.Equal(t, filepath.Join("recordings", "recording_duck_lord_1700000000123.wav"), name)
}

func TestRecordingFilenameWithoutUsername(t *testing.T) {
	_, err := RecordingFilename("recordings", "", time.Now())
	require.ErrorIs(t, err, ErrEmptyUsername)
}
