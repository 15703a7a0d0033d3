// Package soundboard picks a reaction clip for a recognized utterance.
package soundboard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

var ErrEmptyKeyword = errors.New("soundboard clip has empty keyword")

type Clip struct {
	Keyword string `toml:"keyword"`
	File    string `toml:"file"`
}

// Board is a keyword to clip table. Clips are matched in file order.
type Board struct {
	Fifty string `toml:"fifty"`
	Clips []Clip `toml:"clip"`
}

func Load(path string) (*Board, error) {
	var b Board
	if _, err := toml.DecodeFile(path, &b); err != nil {
		return nil, fmt.Errorf("reading soundboard %s: %w", path, err)
	}
	for i, c := range b.Clips {
		keyword := CleanText(c.Keyword)
		if strings.TrimSpace(keyword) == "" {
			return nil, fmt.Errorf("%w: clip %d", ErrEmptyKeyword, i+1)
		}
		b.Clips[i].Keyword = keyword
	}
	return &b, nil
}

// CleanText lowercases text and keeps only ASCII letters and spaces.
func CleanText(text string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || r == ' ' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Match returns the clip to play for text, if any.
func (b *Board) Match(text string) (string, bool) {
	if b == nil || text == "" {
		return "", false
	}

	// Fifty wins over every keyword, spelled or as digits
	lower := strings.ToLower(text)
	if b.Fifty != "" && (strings.Contains(lower, "fifty") || strings.Contains(lower, "50")) {
		return b.Fifty, true
	}

	cleaned := CleanText(text)
	for _, c := range b.Clips {
		if strings.Contains(cleaned, c.Keyword) {
			return c.File, true
		}
	}
	return "", false
}
