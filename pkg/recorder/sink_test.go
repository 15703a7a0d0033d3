package recorder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateFileSink(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "testing.wav")
	sink, err := NewFileSink(filename)
	require.NoError(t, err)
	require.NotNil(t, sink)
	require.Equal(t, filename, sink.Name())

	err = sink.Close()
	require.NoError(t, err)
}

func TestWriteFileSink(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "testing.wav")
	sink, _ := NewFileSink(filename)

	n, err := sink.Write([]byte("Hello"))
	require.NoError(t, err)
	require.Equal(t, len("Hello"), n)
	require.NoError(t, sink.Close())

	content, err := os.ReadFile(filename)
	require.NoError(t, err)
	require.Equal(t, "Hello", string(content))
}

func TestWriteFileSinkWhenClosed(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "testing.wav")
	sink, _ := NewFileSink(filename)

	// Close file immediately
	err := sink.Close()
	require.NoError(t, err)

	// Try writing to the file
	n, err := sink.Write([]byte("Hello"))
	require.ErrorIs(t, err, ErrSinkClosed)
	require.Equal(t, 0, n)
}

func TestCloseFileSinkMoreThanOnce(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "testing.wav")
	sink, _ := NewFileSink(filename)

	// Close file first time
	err := sink.Close()
	require.NoError(t, err)

	// Close file again
	err = sink.Close()
	require.ErrorIs(t, err, ErrSinkClosed)
}

func TestCreateFileSinkInMissingDirectory(t *testing.T) {
	_, err := NewFileSink(filepath.Join(t.TempDir(), "missing", "testing.wav"))
	require.Error(t, err)
}
