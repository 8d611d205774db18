// Package playback buffers received audio chunks and feeds them to a
// playback sink, hiding the variable per-segment synthesis latency behind a
// priming threshold and absorbing underruns by pausing instead of aborting.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/witwicki/streaming-xtts/pkg/protocol"
)

// Sink is a continuous audio output accepting PCM16 mono at a fixed sample
// rate. Write is expected to block at roughly the playback rate.
type Sink interface {
	Start(sampleRate int) error
	Write(pcm []byte) error
	Pause() error
	Resume() error
	Close() error
}

// Discard is a Sink that swallows audio instantly. Used for download-only
// runs where ordering still has to be enforced but nothing is played.
type Discard struct{}

func (Discard) Start(int) error    { return nil }
func (Discard) Write([]byte) error { return nil }
func (Discard) Pause() error       { return nil }
func (Discard) Resume() error      { return nil }
func (Discard) Close() error       { return nil }

// GapError reports a chunk that arrived ahead of the next expected sequence
// number, which the protocol forbids.
type GapError struct {
	Expected uint32
	Got      uint32
}

func (e *GapError) Error() string {
	return fmt.Sprintf("sequence gap: expected chunk %d, got %d", e.Expected, e.Got)
}

type Config struct {
	// Prime is the minimum buffered audio duration before playback starts.
	Prime time.Duration
	// Keep retains accepted payloads for a later WAV export.
	Keep bool
}

const DefaultPrime = time.Second

type Buffer struct {
	sink   Sink
	prime  time.Duration
	keep   bool
	logger *slog.Logger

	lock       sync.Mutex
	queue      []*protocol.AudioChunk
	buffered   time.Duration
	nextSeq    uint32
	sampleRate uint32
	primed     bool
	finished   bool
	abortErr   error
	duplicates int
	skipped    int
	underruns  int
	kept       [][]byte

	notify chan struct{}
}

func New(sink Sink, cfg Config, logger *slog.Logger) *Buffer {
	prime := cfg.Prime
	if prime <= 0 {
		prime = DefaultPrime
	}

	return &Buffer{
		sink:   sink,
		prime:  prime,
		keep:   cfg.Keep,
		logger: logger,

		notify: make(chan struct{}, 1),
	}
}

// OnChunk validates and enqueues one received chunk. Duplicates are
// discarded silently; a sequence gap returns a *GapError and the session
// should be aborted. OnChunk never blocks on playback.
func (b *Buffer) OnChunk(chunk *protocol.AudioChunk) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if chunk.Sequence < b.nextSeq {
		b.duplicates++
		b.logger.Debug("discarding duplicate chunk", "sequence", chunk.Sequence)

		return nil
	}

	if chunk.Sequence > b.nextSeq {
		return &GapError{Expected: b.nextSeq, Got: chunk.Sequence}
	}

	if b.finished {
		return fmt.Errorf("chunk %d received after final chunk", chunk.Sequence)
	}

	if len(chunk.Payload) > 0 && chunk.Encoding != protocol.EncodingPCM16 {
		return fmt.Errorf("unsupported encoding %q", chunk.Encoding)
	}

	b.nextSeq++

	if chunk.Error != "" {
		b.skipped++
		b.logger.Warn("segment was skipped by the server", "sequence", chunk.Sequence, "err", chunk.Error)
	}

	if len(chunk.Payload) > 0 {
		if b.sampleRate == 0 {
			b.sampleRate = chunk.SampleRate
		} else if chunk.SampleRate != b.sampleRate {
			b.logger.Warn("sample rate changed mid-stream", "was", b.sampleRate, "now", chunk.SampleRate)
		}

		b.queue = append(b.queue, chunk)
		b.buffered += chunk.Duration()

		if b.keep {
			b.kept = append(b.kept, chunk.Payload)
		}
	}

	if chunk.IsFinal {
		b.finished = true
	}

	if !b.primed && (b.buffered >= b.prime || b.finished) {
		b.primed = true
	}

	b.signal()

	return nil
}

// Finish marks the stream complete without a final chunk, which is how an
// empty utterance ends.
func (b *Buffer) Finish() {
	b.lock.Lock()
	b.finished = true
	b.primed = true
	b.lock.Unlock()

	b.signal()
}

// Abort stops playback with err, which Run returns.
func (b *Buffer) Abort(err error) {
	b.lock.Lock()
	if b.abortErr == nil {
		b.abortErr = err
	}
	b.lock.Unlock()

	b.signal()
}

func (b *Buffer) signal() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Run drains the buffer into the sink until the stream completes, the
// session aborts, or ctx is canceled. The sink is started only once primed
// and paused on underrun; it resumes when the next chunk arrives.
func (b *Buffer) Run(ctx context.Context) error {
	started := false
	paused := false

	defer func() {
		if started {
			if err := b.sink.Close(); err != nil {
				b.logger.Error("failed to close sink", "err", err)
			}
		}
	}()

	for {
		b.lock.Lock()
		abortErr := b.abortErr
		primed := b.primed
		finished := b.finished

		var chunk *protocol.AudioChunk
		if abortErr == nil && primed && len(b.queue) > 0 {
			chunk = b.queue[0]
			b.queue = b.queue[1:]
		}
		b.lock.Unlock()

		if abortErr != nil {
			return abortErr
		}

		if chunk == nil {
			if primed && finished {
				return nil
			}

			if started && !paused {
				b.lock.Lock()
				b.underruns++
				b.lock.Unlock()

				b.logger.Warn("playback underrun, pausing sink")

				if err := b.sink.Pause(); err != nil {
					return fmt.Errorf("failed to pause sink: %w", err)
				}
				paused = true
			}

			select {
			case <-b.notify:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if !started {
			if err := b.sink.Start(int(chunk.SampleRate)); err != nil {
				return fmt.Errorf("failed to start sink: %w", err)
			}
			started = true

			b.logger.Info("playback started", "buffered", b.Buffered())
		} else if paused {
			if err := b.sink.Resume(); err != nil {
				return fmt.Errorf("failed to resume sink: %w", err)
			}
			paused = false
		}

		if err := b.sink.Write(chunk.Payload); err != nil {
			return fmt.Errorf("failed to write to sink: %w", err)
		}

		b.lock.Lock()
		b.buffered -= chunk.Duration()
		b.lock.Unlock()
	}
}

// Buffered is the playback time currently queued.
func (b *Buffer) Buffered() time.Duration {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.buffered
}

// Skipped counts segments the server marked as permanently failed.
func (b *Buffer) Skipped() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.skipped
}

func (b *Buffer) Duplicates() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.duplicates
}

func (b *Buffer) Underruns() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.underruns
}

// Kept returns the accepted payloads in sequence order. Only populated when
// Config.Keep was set.
func (b *Buffer) Kept() [][]byte {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.kept
}

// SampleRate of the first audio chunk, zero before any audio arrived.
func (b *Buffer) SampleRate() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	return int(b.sampleRate)
}
