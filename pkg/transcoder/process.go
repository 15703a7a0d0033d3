package transcoder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/gommon/log"
)

// Discord voice PCM format.
const (
	SampleRate = 48000
	Channels   = 2
	FrameSize  = 960
)

var (
	ErrSpawn       = errors.New("cannot spawn transcoder")
	ErrInputClosed = errors.New("transcoder input closed")
)

type Command struct {
	Path string
	Args []string
}

// FFmpegWAV reads s16le 48kHz stereo PCM on stdin and writes a PCM WAV container on stdout.
// The output is downmixed to the rate and channel count the recognition service accepts.
func FFmpegWAV(path string, outRate, outChannels int) Command {
	return Command{
		Path: path,
		Args: []string{
			"-loglevel", "error",
			"-f", "s16le",
			"-ar", strconv.Itoa(SampleRate),
			"-ac", strconv.Itoa(Channels),
			"-i", "pipe:0",
			"-ar", strconv.Itoa(outRate),
			"-ac", strconv.Itoa(outChannels),
			"-acodec", "pcm_s16le",
			"-f", "wav",
			"pipe:1",
		},
	}
}

// FFmpegDecode reads any source ffmpeg understands and writes s16le 48kHz stereo PCM on stdout.
func FFmpegDecode(path string, source string) Command {
	return Command{
		Path: path,
		Args: []string{
			"-loglevel", "error",
			"-i", source,
			"-f", "s16le",
			"-ar", strconv.Itoa(SampleRate),
			"-ac", strconv.Itoa(Channels),
			"pipe:1",
		},
	}
}

// Process is one transcoder run. Its input is written through Write and must be closed with
// CloseInput before the process is expected to exit on its own.
type Process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	inputClosed atomic.Bool
	killed      atomic.Bool
	closeOnce   sync.Once
	closeErr    error

	done chan struct{}
	err  error
}

// Start spawns the command with its stdout attached to out.
func Start(c Command, out io.Writer) (*Process, error) {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Stdout = out
	cmd.Stderr = &stderrWriter{name: c.Path}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	p := &Process{
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan struct{}),
	}
	go p.wait()
	log.Debugf("spawned transcoder | pid: %d, path: %s", cmd.Process.Pid, c.Path)
	return p, nil
}

func (p *Process) wait() {
	p.err = p.cmd.Wait()
	close(p.done)
}

func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Write blocks while the pipe to the process is full.
func (p *Process) Write(b []byte) (int, error) {
	if p.inputClosed.Load() {
		return 0, ErrInputClosed
	}
	n, err := p.stdin.Write(b)
	if err != nil && (p.inputClosed.Load() || errors.Is(err, os.ErrClosed)) {
		return n, ErrInputClosed
	}
	return n, err
}

// CloseInput signals end of input. Calling it again returns the first result.
func (p *Process) CloseInput() error {
	p.closeOnce.Do(func() {
		p.inputClosed.Store(true)
		p.closeErr = p.stdin.Close()
	})
	return p.closeErr
}

// Done is closed once the process has exited and its output has been flushed to the writer.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err is the exit outcome. It is only meaningful after Done is closed.
func (p *Process) Err() error {
	<-p.done
	return p.err
}

func (p *Process) Killed() bool {
	return p.killed.Load()
}

func (p *Process) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	p.killed.Store(true)
	return p.cmd.Process.Kill()
}

// Stop closes the input and waits up to grace for the process to exit, then kills it.
func (p *Process) Stop(grace time.Duration) error {
	return p.StopBy(time.Now().Add(grace))
}

// StopBy is Stop with an absolute deadline, so several waits can share one grace period.
func (p *Process) StopBy(deadline time.Time) error {
	if err := p.CloseInput(); err != nil {
		log.Debugf("cannot close transcoder input | pid: %d, error: %v", p.Pid(), err)
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case <-p.done:
		return p.err
	case <-timer.C:
	}

	log.Warnf("transcoder did not exit in time, killing | pid: %d", p.Pid())
	if err := p.Kill(); err != nil {
		log.Errorf("cannot kill transcoder | pid: %d, error: %v", p.Pid(), err)
	}
	<-p.done
	return p.err
}

type stderrWriter struct {
	name string
}

func (w *stderrWriter) Write(b []byte) (int, error) {
	if msg := strings.TrimSpace(string(b)); msg != "" {
		log.Warnf("transcoder stderr | path: %s, output: %s", w.name, msg)
	}
	return len(b), nil
}
