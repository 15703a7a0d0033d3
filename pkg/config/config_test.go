package config

import (
	"testing"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/require"
)

func loader(env map[string]string) Loader {
	return Loader{Lookup: func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loader(nil).Load()
	require.NoError(t, err)

	require.Equal(t, "en-US", cfg.SpeechLanguage)
	require.Equal(t, "raw", cfg.SpeechProfanity)
	require.Equal(t, "recordings", cfg.RecordingsDir)
	require.Equal(t, "ffmpeg", cfg.FFmpegPath)
	require.Equal(t, "audio_files/newt.mp3", cfg.JoinCue)
	require.Equal(t, 3*time.Second, cfg.StopGrace)
	require.Equal(t, time.Second, cfg.HandoffDelay)
	require.Equal(t, 5*time.Second, cfg.RetryDelay)
	require.Equal(t, 100*time.Millisecond, cfg.SilenceTimeout)
	require.Equal(t, 10*time.Second, cfg.CueTimeout)
	require.Equal(t, "error", cfg.LogLevel)
	require.False(t, cfg.RawArchive)
	require.False(t, cfg.S3Enabled())

	require.ErrorIs(t, cfg.Validate(), ErrMissing)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := loader(map[string]string{
		"DISCORD_BOT_TOKEN": "token",
		"SPEECH_KEY":        "key",
		"SPEECH_REGION":     " westeurope ",
		"STOP_GRACE":        "500ms",
		"RAW_ARCHIVE":       "true",
		"S3_REGION":         "eu-west-1",
		"S3_BUCKET":         "bucket",
		"HTTP_PORT":         "8080",
	}).Load()
	require.NoError(t, err)

	require.Equal(t, "westeurope", cfg.SpeechRegion)
	require.Equal(t, 500*time.Millisecond, cfg.StopGrace)
	require.True(t, cfg.RawArchive)
	require.True(t, cfg.S3Enabled())
	require.Equal(t, "8080", cfg.HTTPPort)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := loader(map[string]string{"STOP_GRACE": "soon"}).Load()
	require.ErrorContains(t, err, "STOP_GRACE")

	_, err = loader(map[string]string{"HANDOFF_DELAY": "-1s"}).Load()
	require.ErrorContains(t, err, "HANDOFF_DELAY")

	_, err = loader(map[string]string{"RAW_ARCHIVE": "sometimes"}).Load()
	require.ErrorContains(t, err, "RAW_ARCHIVE")
}

func TestValidateHalfConfiguredS3(t *testing.T) {
	cfg := &Config{DiscordToken: "t", SpeechKey: "k", SpeechRegion: "r", S3Bucket: "bucket"}
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrMissing)
	require.ErrorContains(t, err, "S3_REGION")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, log.DEBUG, ParseLevel("DEBUG"))
	require.Equal(t, log.INFO, ParseLevel("info"))
	require.Equal(t, log.WARN, ParseLevel("warn"))
	require.Equal(t, log.ERROR, ParseLevel("error"))
	require.Equal(t, log.ERROR, ParseLevel("verbose"))
}

func TestValidateRawArchiveNeedsS3(t *testing.T) {
	cfg := &Config{DiscordToken: "t", SpeechKey: "k", SpeechRegion: "r", RawArchive: true}
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrMissing)
	require.ErrorContains(t, err, "RAW_ARCHIVE")

	cfg.S3Region = "eu-west-1"
	cfg.S3Bucket = "bucket"
	require.NoError(t, cfg.Validate())
}
