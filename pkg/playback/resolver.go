package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/labstack/gommon/log"
)

var (
	ErrEmptyQuery    = errors.New("empty query")
	ErrTrackNotFound = errors.New("track not found")
)

// Resolver turns what a user typed into something the player can open.
type Resolver interface {
	Resolve(ctx context.Context, query string) (Track, error)
}

// DefaultResolver plays local files and URLs directly, and searches with yt-dlp otherwise.
// An empty YTDLP disables searching.
type DefaultResolver struct {
	YTDLP string
}

func (r DefaultResolver) Resolve(ctx context.Context, query string) (Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Track{}, ErrEmptyQuery
	}

	if _, err := os.Stat(query); err == nil {
		return Track{Title: filepath.Base(query), Source: query}, nil
	}

	isURL := false
	if u, err := url.Parse(query); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		isURL = true
	}

	if r.YTDLP == "" {
		if isURL {
			return Track{Title: query, Source: query}, nil
		}
		return Track{}, ErrTrackNotFound
	}

	target := query
	if !isURL {
		target = "ytsearch1:" + query
	}
	t, err := r.ytdlp(ctx, target)
	if err != nil {
		// Plain media URLs still play without yt-dlp's help
		if isURL {
			log.Debugf("yt-dlp could not resolve url, playing directly | error: %v, url: %s", err, query)
			return Track{Title: query, Source: query}, nil
		}
		return Track{}, err
	}
	return t, nil
}

func (r DefaultResolver) ytdlp(ctx context.Context, target string) (Track, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.YTDLP,
		"--no-playlist",
		"--format", "bestaudio",
		"--get-title",
		"--get-url",
		target,
	)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return Track{}, fmt.Errorf("resolving %q: %w\n%s", target, err, strings.TrimSpace(stderr.String()))
	}
	return parseYTDLP(out)
}

// parseYTDLP reads the title and media URL lines yt-dlp prints.
func parseYTDLP(out []byte) (Track, error) {
	var lines []string
	for _, l := range strings.Split(string(out), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < 2 {
		return Track{}, ErrTrackNotFound
	}
	return Track{Title: lines[0], Source: lines[1]}, nil
}
