package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cloudgroundcontrol/soundboard-bot/pkg/config"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/discord"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/http/rest"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/metrics"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/playback"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/recognition"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/recorder"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/recording"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/soundboard"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/transcoder"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/upload"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/voice"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/webhook"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"
)

const (
	// Azure's short-audio endpoint takes 16 kHz mono PCM
	speechSampleRate = 16000
	speechChannels   = 1

	shutdownTimeout = 30 * time.Second
)

func NewRunCmd(deps *Dependencies) *cobra.Command {
	var logLevel, httpPort string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *deps.Config
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if httpPort != "" {
				cfg.HTTPPort = httpPort
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, &cfg)
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (overrides LOG_LEVEL)")
	cmd.Flags().StringVar(&httpPort, "http-port", "", "port of the ops HTTP server (overrides HTTP_PORT)")
	return cmd
}

func setupLogging(level string) {
	log.SetLevel(config.ParseLevel(level))
	log.SetHeader("(${short_file}:${line}) ${time_rfc3339} ${level}: ")
}

// ensureDir creates dir, or fixes its permissions if it exists.
func ensureDir(dir string) error {
	// Value of 0755 is the usual one for directories a server writes to
	stat, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	if err != nil {
		return err
	}
	if !stat.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	if stat.Mode().Perm() != 0755 {
		return os.Chmod(dir, 0755)
	}
	return nil
}

func loadBoard(file string) (*soundboard.Board, error) {
	board, err := soundboard.Load(file)
	if errors.Is(err, os.ErrNotExist) {
		log.Warnf("soundboard file not found, only reacting to fifty | file: %s", file)
		return &soundboard.Board{}, nil
	}
	return board, err
}

func run(ctx context.Context, cfg *config.Config) error {
	setupLogging(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return err
	}

	// Check that ffmpeg is installed
	if _, err := exec.LookPath(cfg.FFmpegPath); err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	ytdlp := cfg.YTDLPPath
	if _, err := exec.LookPath(ytdlp); err != nil {
		log.Warnf("yt-dlp not found, music search disabled | path: %s", ytdlp)
		ytdlp = ""
	}

	if err := ensureDir(cfg.RecordingsDir); err != nil {
		return fmt.Errorf("recordings directory: %w", err)
	}

	board, err := loadBoard(cfg.SoundboardFile)
	if err != nil {
		return err
	}

	m := metrics.NewMetrics("soundboard")

	speech, err := recognition.NewAzureService(recognition.AzureConfig{
		Key:        cfg.SpeechKey,
		Region:     cfg.SpeechRegion,
		Language:   cfg.SpeechLanguage,
		Profanity:  cfg.SpeechProfanity,
		SampleRate: speechSampleRate,
	})
	if err != nil {
		return err
	}

	// Create S3 uploader only if the environment variables are not empty
	var archiver recognition.Archiver
	var uploader upload.Uploader
	if cfg.S3Enabled() {
		uploader, err = upload.NewS3Uploader(ctx, upload.S3Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			Directory: cfg.S3Directory,
		})
		if err != nil {
			return err
		}
		archiver = upload.FileArchiver{Uploader: uploader}
	}

	hooks := webhook.NewNotifier(webhook.ParseURLs(cfg.WebhookURLs))
	gate := recognition.NewGate(speech, recognition.Options{
		RetryDelay: cfg.RetryDelay,
		Archiver:   archiver,
		Listeners:  []recognition.Listener{hooks},
		Metrics:    m,
	})

	bot, err := discord.NewBot(discord.BotConfig{
		Token:   cfg.DiscordToken,
		GuildID: cfg.GuildID,
		Silence: cfg.SilenceTimeout,
		Metrics: m,
	})
	if err != nil {
		return err
	}

	player := playback.NewFFmpegPlayer(cfg.FFmpegPath)
	resolver := playback.DefaultResolver{YTDLP: ytdlp}
	recordingOpts := recording.Options{
		Channel: recorder.Config{
			Dir:          cfg.RecordingsDir,
			Transcoder:   transcoder.FFmpegWAV(cfg.FFmpegPath, speechSampleRate, speechChannels),
			Grace:        cfg.StopGrace,
			HandoffDelay: cfg.HandoffDelay,
			RawArchive:   cfg.RawArchive,
		},
		Silence:   cfg.SilenceTimeout,
		OnArchive: archiveRaw(archiver),
	}

	manager := voice.NewManager(func(guildID string) *voice.Session {
		return voice.NewSession(voice.Options{
			GuildID:    guildID,
			Dialer:     bot.Dialer(),
			Gate:       gate,
			Recording:  recordingOpts,
			Player:     player,
			Resolver:   resolver,
			Reactions:  board,
			JoinCue:    cfg.JoinCue,
			LeaveCue:   cfg.LeaveCue,
			CueTimeout: cfg.CueTimeout,
			Metrics:    m,
		})
	})

	if err := bot.Open(manager); err != nil {
		return err
	}

	// Start ops server
	var server *echo.Echo
	if cfg.HTTPPort != "" {
		e := rest.NewServer(rest.ServerConfig{Sessions: manager, Metrics: m.Handler()})
		server = e
		go func() {
			if err := e.Start(":" + cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("ops server stopped | error: %v", err)
			}
		}()
	}

	log.Infof("bot running | version: %s", Version)
	<-ctx.Done()
	log.Infof("shutting down")

	// Leave every channel, then let pending recognitions finish or cancel
	manager.Shutdown()
	gate.Close()
	hooks.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorf("cannot stop ops server | error: %v", err)
		}
	}
	return bot.Close()
}

// archiveRaw uploads finished raw archives and removes the local copy. Validate only allows
// RAW_ARCHIVE together with S3, so archiver is nil only when raw archiving is off.
func archiveRaw(archiver recognition.Archiver) func(runID string, file string) {
	if archiver == nil {
		return nil
	}
	return func(runID string, file string) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			key := path.Join(runID, filepath.Base(file))
			if err := archiver.Archive(ctx, file, key); err != nil {
				log.Errorf("cannot archive raw recording | error: %v, file: %s", err, file)
				return
			}
			if err := os.Remove(file); err != nil {
				log.Warnf("cannot delete raw recording | error: %v, file: %s", err, file)
			}
		}()
	}
}
