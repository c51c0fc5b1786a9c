package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"testing"
	"time"

	"github.com/davidcole1340/rovabot/pkg/audio"
)

// TestHelperProcess is not a real test. It stands in for ffmpeg when a test
// runs the player with helperCommand. The mode is the first argument after
// "--":
//
//	frames N   write N frames of silence, then exit 0
//	stream     write frames until killed
//	fail       write to stderr and exit 1
//	silent     write nothing until killed
func TestHelperProcess(t *testing.T) {
	if os.Getenv("ROVABOT_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		os.Exit(2)
	}
	frame := make([]byte, audio.FrameBytes)
	switch args[1] {
	case "frames":
		n, _ := strconv.Atoi(args[2])
		for range n {
			_, _ = os.Stdout.Write(frame)
		}
		os.Exit(0)
	case "stream":
		for {
			if _, err := os.Stdout.Write(frame); err != nil {
				os.Exit(0)
			}
			time.Sleep(5 * time.Millisecond)
		}
	case "fail":
		fmt.Fprintln(os.Stderr, "Server returned 404 Not Found")
		os.Exit(1)
	case "silent":
		time.Sleep(time.Minute)
		os.Exit(0)
	}
	os.Exit(2)
}

// helperCommand returns a CommandFunc that runs TestHelperProcess in mode
// and records the arguments ffmpeg would have received.
func helperCommand(mode ...string) (CommandFunc, *[]string) {
	var got []string
	return func(ctx context.Context, _ string, args ...string) *exec.Cmd {
		got = args
		cs := append([]string{"-test.run=TestHelperProcess", "--"}, mode...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "ROVABOT_WANT_HELPER_PROCESS=1")
		return cmd
	}, &got
}

func TestPlayer_Args(t *testing.T) {
	t.Parallel()

	p := New(WithVolume(0.5))
	args := p.Args("https://stream.example/breeze")

	i := slices.Index(args, "-i")
	if i < 0 || args[i+1] != "https://stream.example/breeze" {
		t.Fatalf("args %v missing -i URL", args)
	}
	if r := slices.Index(args, "-reconnect"); r < 0 || r > i {
		t.Error("-reconnect must be an input option before -i")
	}
	for _, want := range []string{"s16le", "48000", "volume=0.50", "pipe:1"} {
		if !slices.Contains(args, want) {
			t.Errorf("args %v missing %q", args, want)
		}
	}
}

func TestPlayer_PlayForwardsFrames(t *testing.T) {
	t.Parallel()

	cmd, gotArgs := helperCommand("frames", "3")
	p := New(WithCommand(cmd))
	out := make(chan audio.AudioFrame, 8)

	pb, err := p.Play(context.Background(), "https://stream.example/a", out)
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if !slices.Contains(*gotArgs, "https://stream.example/a") {
		t.Errorf("command args %v missing the stream URL", *gotArgs)
	}

	select {
	case <-pb.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("playback did not end after the helper exited")
	}
	if !errors.Is(pb.Err(), io.EOF) {
		t.Errorf("Err = %v, want io.EOF for a clean end of stream", pb.Err())
	}

	close(out)
	n := 0
	for f := range out {
		n++
		if len(f.Data) != audio.FrameBytes || f.SampleRate != audio.SampleRate || f.Channels != audio.Channels {
			t.Errorf("frame %d = %d bytes %d Hz %d ch", n, len(f.Data), f.SampleRate, f.Channels)
		}
	}
	if n != 3 {
		t.Errorf("got %d frames, want 3", n)
	}
}

func TestPlayer_StopKillsProcess(t *testing.T) {
	t.Parallel()

	cmd, _ := helperCommand("stream")
	p := New(WithCommand(cmd))
	// Unbuffered and never read: the pump blocks on send and must still
	// give up on Stop.
	out := make(chan audio.AudioFrame)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pb, err := p.Play(ctx, "u", out)
	if err != nil {
		t.Fatalf("Play: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		pb.Stop()
		pb.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	if pb.Err() != nil {
		t.Errorf("Err after Stop = %v, want nil", pb.Err())
	}
}

func TestPlayer_ExitBeforeAudio(t *testing.T) {
	t.Parallel()

	cmd, _ := helperCommand("fail")
	p := New(WithCommand(cmd))

	_, err := p.Play(context.Background(), "u", make(chan audio.AudioFrame, 1))
	if !errors.Is(err, ErrNoAudio) {
		t.Fatalf("err = %v, want ErrNoAudio", err)
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Errorf("err = %v, want wrapped *exec.ExitError", err)
	}
}

func TestPlayer_StartTimeout(t *testing.T) {
	t.Parallel()

	cmd, _ := helperCommand("silent")
	p := New(WithCommand(cmd))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Play(ctx, "u", make(chan audio.AudioFrame, 1))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Play did not give up at the start deadline")
	}
}

func TestPlayer_MissingBinary(t *testing.T) {
	t.Parallel()

	p := New(WithPath("/nonexistent/ffmpeg-binary"))
	if _, err := p.Play(context.Background(), "u", make(chan audio.AudioFrame, 1)); err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestTailBuffer(t *testing.T) {
	t.Parallel()

	b := &tailBuffer{max: 5}
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defg"))
	if got := b.String(); got != "cdefg" {
		t.Errorf("tail = %q, want cdefg", got)
	}
}
