package voice

import (
	"context"

	"github.com/davidcole1340/rovabot/pkg/audio"
	"github.com/davidcole1340/rovabot/pkg/audio/ffmpeg"
)

// Player starts a stream and feeds its frames into out. ctx bounds start-up
// only.
type Player interface {
	Play(ctx context.Context, url string, out chan<- audio.AudioFrame) (Playback, error)
}

// Playback is a running stream.
type Playback interface {
	// Stop ends the stream and returns once it has stopped writing frames.
	// Calling it again is a no-op.
	Stop()

	// Done is closed when the stream has ended for any reason.
	Done() <-chan struct{}
}

// FFmpegPlayer adapts an [ffmpeg.Player] to [Player].
func FFmpegPlayer(p *ffmpeg.Player) Player {
	return ffmpegPlayer{p}
}

type ffmpegPlayer struct{ p *ffmpeg.Player }

func (f ffmpegPlayer) Play(ctx context.Context, url string, out chan<- audio.AudioFrame) (Playback, error) {
	pb, err := f.p.Play(ctx, url, out)
	if err != nil {
		return nil, err
	}
	return pb, nil
}
