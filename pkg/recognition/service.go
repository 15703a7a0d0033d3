package recognition

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoMatch       = errors.New("no speech recognized")
	ErrQuotaExceeded = errors.New("recognition quota exceeded")
)

// Service turns one finished recording into text.
type Service interface {
	RecognizeOnce(ctx context.Context, audio []byte) (string, error)
}

// Dispatcher reacts to recognized speech.
type Dispatcher interface {
	OnUtteranceRecognized(text string)
}

type DispatcherFunc func(text string)

func (f DispatcherFunc) OnUtteranceRecognized(text string) {
	f(text)
}

// Request is one recording handed to the gate.
type Request struct {
	Path        string
	Guild       string
	Participant string
	Run         string
	Dispatcher  Dispatcher
}

type Utterance struct {
	Guild       string    `json:"guild"`
	Participant string    `json:"participant"`
	Text        string    `json:"text"`
	File        string    `json:"file"`
	Time        time.Time `json:"time"`
}

// Listener is told about every recognized utterance, after the dispatcher.
type Listener interface {
	OnUtterance(u Utterance)
}

// Archiver keeps a copy of a recording before the gate deletes it.
type Archiver interface {
	Archive(ctx context.Context, path string, key string) error
}
