package upload

import (
	"context"
	"io"
	"os"
)

type Uploader interface {
	// Key is a unique identifier for the file.
	Upload(ctx context.Context, key string, body io.Reader) error
}

// FileArchiver copies local recordings to an Uploader. It leaves the local file in place.
type FileArchiver struct {
	Uploader Uploader
}

func (a FileArchiver) Archive(ctx context.Context, path string, key string) error {
	// Open file
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return a.Uploader.Upload(ctx, key, file)
}
