package discord

import (
	"fmt"

	"github.com/davidcole1340/rovabot/pkg/audio"
	"layeh.com/gopus"
)

// opusEncoder wraps a gopus Opus encoder for the output stream.
type opusEncoder struct {
	enc *gopus.Encoder
}

// newOpusEncoder creates an encoder for 48 kHz stereo music.
func newOpusEncoder() (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(audio.SampleRate, audio.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("discord: create opus encoder: %w", err)
	}
	return &opusEncoder{enc: enc}, nil
}

// encode encodes one frame of interleaved little-endian int16 PCM into an
// Opus packet.
func (e *opusEncoder) encode(pcmBytes []byte) ([]byte, error) {
	pcm := bytesToInt16s(pcmBytes)
	opus, err := e.enc.Encode(pcm, audio.FrameSamples, len(pcmBytes))
	if err != nil {
		return nil, fmt.Errorf("discord: opus encode: %w", err)
	}
	return opus, nil
}

// bytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
