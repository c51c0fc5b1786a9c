package audio

import "time"

// Output format expected by [Connection.OutputStream].
const (
	SampleRate = 48000
	Channels   = 2

	// FrameDuration is the length of one Opus frame.
	FrameDuration = 20 * time.Millisecond

	// FrameSamples is the number of samples per channel in one frame.
	FrameSamples = SampleRate * int(FrameDuration/time.Millisecond) / 1000 // 960

	// FrameBytes is the PCM size of one frame: 960 samples × 2 channels × 2 bytes.
	FrameBytes = FrameSamples * Channels * 2 // 3840
)

// AudioFrame is one chunk of PCM audio on its way to a voice channel.
type AudioFrame struct {
	// Data holds interleaved signed 16-bit little-endian samples.
	Data []byte

	// SampleRate in Hz. Always [SampleRate] for frames sent to Discord.
	SampleRate int

	// Channels is 2 for stereo.
	Channels int
}
