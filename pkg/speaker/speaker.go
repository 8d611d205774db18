// Package speaker plays PCM16 mono audio on the default output device.
package speaker

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

const DefaultFramesPerBuffer = 1024

// Speaker is a playback sink backed by portaudio. It is not safe for
// concurrent use; the playback buffer drives it from a single goroutine.
type Speaker struct {
	logger *slog.Logger
	frames int
	frame  []int16
	stream *portaudio.Stream
	closed bool
}

// New initializes the audio host. Close the speaker even when playback never
// started, otherwise the host stays initialized.
func New(framesPerBuffer int, logger *slog.Logger) (*Speaker, error) {
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize audio host: %w", err)
	}

	return &Speaker{
		logger: logger,
		frames: framesPerBuffer,
		frame:  make([]int16, framesPerBuffer),
	}, nil
}

func (s *Speaker) Start(sampleRate int) error {
	if s.stream != nil {
		return errors.New("speaker already started")
	}

	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), s.frames, s.frame)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()

		return fmt.Errorf("failed to start output stream: %w", err)
	}

	s.stream = stream

	return nil
}

// Write plays one payload, blocking until the device consumed it. The last
// frame is zero padded to the device buffer size.
func (s *Speaker) Write(pcm []byte) error {
	if s.stream == nil {
		return errors.New("speaker not started")
	}

	frameBytes := s.frames * 2

	for offset := 0; offset < len(pcm); offset += frameBytes {
		end := offset + frameBytes
		if end > len(pcm) {
			end = len(pcm)
		}

		s.fillFrame(pcm[offset:end])

		if err := s.stream.Write(); err != nil {
			if errors.Is(err, portaudio.OutputUnderflowed) {
				s.logger.Debug("output device underflowed", "err", err)

				continue
			}

			return fmt.Errorf("failed to write to output stream: %w", err)
		}
	}

	return nil
}

func (s *Speaker) fillFrame(pcm []byte) {
	samples := len(pcm) / 2

	for i := 0; i < samples; i++ {
		s.frame[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}

	for i := samples; i < s.frames; i++ {
		s.frame[i] = 0
	}
}

// Pause stops the stream after the queued frames finish playing.
func (s *Speaker) Pause() error {
	if s.stream == nil {
		return nil
	}

	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop output stream: %w", err)
	}

	return nil
}

func (s *Speaker) Resume() error {
	if s.stream == nil {
		return nil
	}

	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to restart output stream: %w", err)
	}

	return nil
}

// Close releases the stream and the audio host. Safe to call twice.
func (s *Speaker) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			_ = portaudio.Terminate()

			return fmt.Errorf("failed to close output stream: %w", err)
		}
		s.stream = nil
	}

	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate audio host: %w", err)
	}

	return nil
}
