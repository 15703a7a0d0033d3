package soundboard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const boardFile = `
fifty = "audio_files/fifty.wav"

[[clip]]
keyword = "Quack"
file = "audio_files/quack.mp3"

[[clip]]
keyword = "hello there"
file = "audio_files/kenobi.mp3"

[[clip]]
keyword = "hello"
file = "audio_files/hello.mp3"
`

func loadBoard(t *testing.T, content string) *Board {
	path := filepath.Join(t.TempDir(), "soundboard.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	b, err := Load(path)
	require.NoError(t, err)
	return b
}

func TestCleanText(t *testing.T) {
	require.Equal(t, "hello there", CleanText("Hello, there!"))
	require.Equal(t, "its ", CleanText("It's 50"))
}

func TestMatchFifty(t *testing.T) {
	b := loadBoard(t, boardFile)

	for _, text := range []string{"Fifty.", "50", "I said 50 quacks", "fifty hello"} {
		clip, ok := b.Match(text)
		require.True(t, ok, text)
		require.Equal(t, "audio_files/fifty.wav", clip, text)
	}
}

func TestMatchFirstKeywordInFileOrder(t *testing.T) {
	b := loadBoard(t, boardFile)

	clip, ok := b.Match("Hello there, general.")
	require.True(t, ok)
	require.Equal(t, "audio_files/kenobi.mp3", clip)

	clip, ok = b.Match("Well, hello.")
	require.True(t, ok)
	require.Equal(t, "audio_files/hello.mp3", clip)

	clip, ok = b.Match("QUACK!")
	require.True(t, ok)
	require.Equal(t, "audio_files/quack.mp3", clip)
}

func TestMatchNothing(t *testing.T) {
	b := loadBoard(t, boardFile)
	_, ok := b.Match("Nothing to see here.")
	require.False(t, ok)

	var empty *Board
	_, ok = empty.Match("fifty")
	require.False(t, ok)
}

func TestLoadRejectsEmptyKeyword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soundboard.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[clip]]\nkeyword = \"!!\"\nfile = \"x.mp3\"\n"), 0644))
	_, err := Load(path)
	require.ErrorIs(t, err, ErrEmptyKeyword)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
