package participant

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

var ErrEmptyUsername = errors.New("empty username")

var filenameReplacer = strings.NewReplacer(
	`\`, "_", "/", "_", "*", "_", "?", "_", ":", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_",
)

// SanitizeFilename replaces characters that are not allowed in file names on common filesystems.
func SanitizeFilename(name string) string {
	return filenameReplacer.Replace(name)
}

// RecordingFilename names a capture after the speaker and the moment it started.
func RecordingFilename(dir string, username string, start time.Time) (string, error) {
	if username == "" {
		return "", ErrEmptyUsername
	}
	name := fmt.Sprintf("recording_%s_%d.wav", SanitizeFilename(username), start.UnixMilli())
	return filepath.Join(dir, name), nil
}
