// Package wavfile serializes synthesized PCM16 payloads into a WAV
// container. It writes chunk payloads in sequence order with a configurable
// silence gap between them so separately synthesized segments do not run
// into each other.
package wavfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	bitDepth = 16
	channels = 1
)

// DefaultGap is the silence inserted between segments at speed 1.0.
const DefaultGap = 500 * time.Millisecond

// GapForSpeed scales a silence gap to the session's speaking speed: faster
// speech gets proportionally shorter pauses.
func GapForSpeed(gap time.Duration, speed float64) time.Duration {
	if speed <= 0 {
		return gap
	}

	return time.Duration(float64(gap) / speed)
}

// Encode writes payloads as one 16-bit mono WAV. Empty payloads (permanently
// failed segments) are skipped. gap of zero disables inter-segment silence.
func Encode(w io.WriteSeeker, payloads [][]byte, sampleRate int, gap time.Duration) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	enc := wav.NewEncoder(w, sampleRate, bitDepth, channels, 1)

	var silence *audio.IntBuffer
	if gap > 0 {
		silence = &audio.IntBuffer{
			Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
			Data:   make([]int, int(gap.Seconds()*float64(sampleRate))),
		}
	}

	wrote := false
	for i, payload := range payloads {
		if len(payload) == 0 {
			continue
		}

		buf, err := pcmToIntBuffer(payload, sampleRate)
		if err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}

		if wrote && silence != nil {
			if err := enc.Write(silence); err != nil {
				return fmt.Errorf("failed to write silence gap: %w", err)
			}
		}

		if err := enc.Write(buf); err != nil {
			return fmt.Errorf("failed to write segment %d: %w", i, err)
		}

		wrote = true
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to close wav encoder: %w", err)
	}

	return nil
}

func pcmToIntBuffer(pcm []byte, sampleRate int) (*audio.IntBuffer, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not 16-bit aligned")
	}

	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	return &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   samples,
	}, nil
}
