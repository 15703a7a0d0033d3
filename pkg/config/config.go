// Package config reads the bot's settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/log"
)

var ErrMissing = errors.New("required setting not set")

type Config struct {
	// Discord
	DiscordToken string
	GuildID      string

	// Speech recognition
	SpeechKey       string
	SpeechRegion    string
	SpeechLanguage  string
	SpeechProfanity string

	// Tools and files
	RecordingsDir  string
	FFmpegPath     string
	YTDLPPath      string
	SoundboardFile string
	JoinCue        string
	LeaveCue       string

	// Timing
	StopGrace      time.Duration
	HandoffDelay   time.Duration
	RetryDelay     time.Duration
	SilenceTimeout time.Duration
	CueTimeout     time.Duration

	// Ops
	HTTPPort   string
	LogLevel   string
	RawArchive bool

	// Archive upload, enabled when region and bucket are set
	S3Region    string
	S3Bucket    string
	S3Directory string

	WebhookURLs string
}

// S3Enabled reports whether finished recordings are uploaded.
func (c *Config) S3Enabled() bool {
	return c.S3Region != "" && c.S3Bucket != ""
}

// Loader reads settings through Lookup, which defaults to os.LookupEnv.
type Loader struct {
	Lookup func(key string) (string, bool)
}

// Load merges .env into the environment if present and reads the settings.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return Loader{}.Load()
}

func (l Loader) Load() (*Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}

	cfg := &Config{
		DiscordToken:    l.get("DISCORD_BOT_TOKEN", ""),
		GuildID:         l.get("DISCORD_GUILD_ID", ""),
		SpeechKey:       l.get("SPEECH_KEY", ""),
		SpeechRegion:    l.get("SPEECH_REGION", ""),
		SpeechLanguage:  l.get("SPEECH_LANGUAGE", "en-US"),
		SpeechProfanity: l.get("SPEECH_PROFANITY", "raw"),
		RecordingsDir:   l.get("RECORDINGS_DIR", "recordings"),
		FFmpegPath:      l.get("FFMPEG_PATH", "ffmpeg"),
		YTDLPPath:       l.get("YTDLP_PATH", "yt-dlp"),
		SoundboardFile:  l.get("SOUNDBOARD_FILE", "soundboard.toml"),
		JoinCue:         l.get("JOIN_CUE", "audio_files/newt.mp3"),
		LeaveCue:        l.get("LEAVE_CUE", "audio_files/goodbye.mp3"),
		HTTPPort:        l.get("HTTP_PORT", ""),
		LogLevel:        l.get("LOG_LEVEL", "error"),
		S3Region:        l.get("S3_REGION", ""),
		S3Bucket:        l.get("S3_BUCKET", ""),
		S3Directory:     l.get("S3_DIRECTORY", ""),
		WebhookURLs:     l.get("WEBHOOK_URLS", ""),
	}

	var err error
	durations := []struct {
		key   string
		def   time.Duration
		field *time.Duration
	}{
		{"STOP_GRACE", 3 * time.Second, &cfg.StopGrace},
		{"HANDOFF_DELAY", time.Second, &cfg.HandoffDelay},
		{"RETRY_DELAY", 5 * time.Second, &cfg.RetryDelay},
		{"SILENCE_TIMEOUT", 100 * time.Millisecond, &cfg.SilenceTimeout},
		{"CUE_TIMEOUT", 10 * time.Second, &cfg.CueTimeout},
	}
	for _, d := range durations {
		if *d.field, err = l.duration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if cfg.RawArchive, err = l.bool("RAW_ARCHIVE", false); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l Loader) get(key string, def string) string {
	if v, ok := l.Lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (l Loader) duration(key string, def time.Duration) (time.Duration, error) {
	v := l.get(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("parsing %s: negative duration %s", key, v)
	}
	return d, nil
}

func (l Loader) bool(key string, def bool) (bool, error) {
	v := l.get(key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", key, err)
	}
	return b, nil
}

// Validate reports every required setting that is missing.
func (c *Config) Validate() error {
	var missing []string
	if c.DiscordToken == "" {
		missing = append(missing, "DISCORD_BOT_TOKEN")
	}
	if c.SpeechKey == "" {
		missing = append(missing, "SPEECH_KEY")
	}
	if c.SpeechRegion == "" {
		missing = append(missing, "SPEECH_REGION")
	}
	if (c.S3Region == "") != (c.S3Bucket == "") {
		missing = append(missing, "S3_REGION and S3_BUCKET together")
	}
	if c.RawArchive && !c.S3Enabled() {
		missing = append(missing, "S3_REGION and S3_BUCKET for RAW_ARCHIVE")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	return nil
}

// ParseLevel maps a level name to a gommon level. Unknown names mean error.
func ParseLevel(level string) log.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return log.DEBUG
	case "info":
		return log.INFO
	case "warn":
		return log.WARN
	case "error":
		fallthrough
	default:
		return log.ERROR
	}
}
