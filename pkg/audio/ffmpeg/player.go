// Package ffmpeg plays network audio streams through an ffmpeg subprocess.
//
// ffmpeg does the protocol handling and decoding; this package only reads its
// raw 48 kHz stereo s16le output, cuts it into 20 ms frames and forwards them
// to an [audio.Connection] output stream.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/davidcole1340/rovabot/pkg/audio"
)

// ErrNoAudio is returned by [Player.Play] when ffmpeg exits before producing
// a single frame of audio.
var ErrNoAudio = errors.New("ffmpeg: stream produced no audio")

// CommandFunc builds the subprocess. It matches [exec.CommandContext].
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Player starts ffmpeg-backed playbacks. A Player holds no per-stream state
// and is safe for concurrent use.
type Player struct {
	path    string
	volume  float64
	command CommandFunc
}

// Option configures a [Player].
type Option func(*Player)

// WithPath sets the ffmpeg binary. Default: "ffmpeg" from $PATH.
func WithPath(path string) Option {
	return func(p *Player) {
		if path != "" {
			p.path = path
		}
	}
}

// WithVolume sets the linear gain applied by ffmpeg's volume filter.
// Default: 1.0.
func WithVolume(v float64) Option {
	return func(p *Player) {
		if v > 0 {
			p.volume = v
		}
	}
}

// WithCommand replaces the process factory. Tests use it to run a helper
// process instead of ffmpeg.
func WithCommand(fn CommandFunc) Option {
	return func(p *Player) { p.command = fn }
}

// New returns a Player.
func New(opts ...Option) *Player {
	p := &Player{
		path:    "ffmpeg",
		volume:  1.0,
		command: exec.CommandContext,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Args returns the ffmpeg command line used for url.
func (p *Player) Args(url string) []string {
	return []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "2",
		"-i", url,
		"-vn",
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-af", "volume=" + strconv.FormatFloat(p.volume, 'f', 2, 64),
		"-loglevel", "error",
		"pipe:1",
	}
}

// Play starts streaming url into out. ctx bounds start-up only: Play returns
// once the first frame has been read, and the returned [Playback] then runs
// until it is stopped or the stream ends. If ctx expires first, the process
// is killed and ctx.Err() is returned.
func (p *Player) Play(ctx context.Context, url string, out chan<- audio.AudioFrame) (*Playback, error) {
	pctx, cancel := context.WithCancel(context.Background())
	cmd := p.command(pctx, p.path, p.Args(url)...)
	cmd.WaitDelay = 2 * time.Second

	stderr := &tailBuffer{max: 2048}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg: start %s: %w", p.path, err)
	}

	pb := &Playback{
		ctx:     pctx,
		cancel:  cancel,
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go pb.pump(cmd, stdout, stderr, out)

	select {
	case <-pb.started:
		slog.Debug("ffmpeg: playback started", "url", url, "pid", cmd.Process.Pid)
		return pb, nil
	case <-pb.done:
		select {
		case <-pb.started:
			// Short stream that already ended; the caller still gets its frames.
			return pb, nil
		default:
		}
		if err := pb.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoAudio, err)
		}
		return nil, ErrNoAudio
	case <-ctx.Done():
		pb.Stop()
		return nil, fmt.Errorf("ffmpeg: waiting for first frame: %w", ctx.Err())
	}
}

// Playback is one running ffmpeg process.
type Playback struct {
	ctx      context.Context
	cancel   context.CancelFunc
	started  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	stopped  bool

	mu  sync.Mutex
	err error
}

// Stop kills the process and waits for the reader to exit. It is safe to call
// more than once.
func (pb *Playback) Stop() {
	pb.stopOnce.Do(func() {
		pb.mu.Lock()
		pb.stopped = true
		pb.mu.Unlock()
		pb.cancel()
	})
	<-pb.done
}

// Done is closed when the playback has ended, for any reason.
func (pb *Playback) Done() <-chan struct{} {
	return pb.done
}

// Err reports why the stream ended on its own. It is nil while the playback
// is running and after a [Playback.Stop].
func (pb *Playback) Err() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.err
}

// pump reads whole frames from ffmpeg and forwards them to out until the
// process exits or the playback is stopped.
func (pb *Playback) pump(cmd *exec.Cmd, stdout io.Reader, stderr *tailBuffer, out chan<- audio.AudioFrame) {
	defer close(pb.done)
	defer pb.cancel()

	first := true
	var readErr error
	for {
		buf := make([]byte, audio.FrameBytes)
		if _, err := io.ReadFull(stdout, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				readErr = err
			}
			break
		}
		if first {
			close(pb.started)
			first = false
		}
		select {
		case out <- audio.AudioFrame{Data: buf, SampleRate: audio.SampleRate, Channels: audio.Channels}:
		case <-pb.ctx.Done():
		}
	}

	waitErr := cmd.Wait()

	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.stopped {
		return
	}
	switch {
	case waitErr != nil:
		if msg := stderr.String(); msg != "" {
			pb.err = fmt.Errorf("ffmpeg: %w: %s", waitErr, msg)
		} else {
			pb.err = fmt.Errorf("ffmpeg: %w", waitErr)
		}
	case readErr != nil:
		pb.err = fmt.Errorf("ffmpeg: read output: %w", readErr)
	default:
		pb.err = io.EOF
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
