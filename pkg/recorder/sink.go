package recorder

import (
	"errors"
	"os"
	"sync"
)

var ErrSinkClosed = errors.New("sink closed")

type Sink interface {
	Name() string
	Write([]byte) (int, error)
	Close() error
}

type fileSink struct {
	lock   sync.Mutex
	file   *os.File
	closed bool
}

func NewFileSink(filename string) (Sink, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &fileSink{file: file}, nil
}

func (s *fileSink) Name() string {
	return s.file.Name()
}

func (s *fileSink) Write(p []byte) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return 0, ErrSinkClosed
	}
	return s.file.Write(p)
}

func (s *fileSink) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	s.closed = true
	return s.file.Close()
}
