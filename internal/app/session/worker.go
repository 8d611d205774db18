package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/witwicki/streaming-xtts/pkg/engine"
	"github.com/witwicki/streaming-xtts/pkg/protocol"
	"github.com/witwicki/streaming-xtts/pkg/segmenter"
)

// Synthesizer is the engine surface the worker needs. Implemented by
// *engine.Client.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, conf protocol.SessionConfig) (*engine.Audio, error)
}

// worker turns one segment at a time into an audio chunk. Calls are strictly
// sequential within a session; only the engine pool is shared across
// sessions.
type worker struct {
	synth Synthesizer
	pool  *EnginePool
	cfg   *Config
}

func newWorker(synth Synthesizer, pool *EnginePool, cfg *Config) *worker {
	return &worker{
		synth: synth,
		pool:  pool,
		cfg:   cfg,
	}
}

// synthesize never fails the utterance: a permanent engine failure or retry
// exhaustion yields an empty chunk with an error marker and the stream
// continues with the next segment.
func (w *worker) synthesize(ctx context.Context, logger *slog.Logger, seg segmenter.Segment, conf protocol.SessionConfig) *protocol.AudioChunk {
	audio, err := w.attempt(ctx, logger, seg.Text, conf)
	if err != nil {
		metrics.SegmentsSkipped.Inc()
		logger.Error("segment failed permanently", "sequence", seg.Sequence, "err", err)

		return &protocol.AudioChunk{
			Sequence: seg.Sequence,
			Encoding: protocol.EncodingPCM16,
			Error:    "speech synthesis failed",
		}
	}

	metrics.SegmentsSynthesized.Inc()

	return &protocol.AudioChunk{
		Sequence:   seg.Sequence,
		SampleRate: uint32(audio.SampleRate),
		Encoding:   protocol.EncodingPCM16,
		Payload:    audio.PCM,
	}
}

// attempt holds one engine slot across all retries of the segment, so a
// flapping engine cannot be hammered by more sessions than its capacity.
func (w *worker) attempt(ctx context.Context, logger *slog.Logger, text string, conf protocol.SessionConfig) (*engine.Audio, error) {
	admitCtx, cancel := context.WithTimeout(ctx, w.cfg.admissionTimeout())
	defer cancel()

	if err := w.pool.Acquire(admitCtx); err != nil {
		return nil, fmt.Errorf("engine admission: %w", err)
	}
	defer w.pool.Release()

	operation := func() (*engine.Audio, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, w.cfg.segmentTimeout())
		defer cancel()

		audio, err := w.synth.Synthesize(attemptCtx, text, conf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}

			if engine.IsTransient(err) {
				return nil, err
			}

			return nil, backoff.Permanent(err)
		}

		return audio, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = w.cfg.retryInterval()

	audio, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(w.cfg.maxTries())),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.SynthesisRetries.Inc()
			logger.Warn("retrying segment synthesis", "err", err, "backoff", next)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize segment: %w", err)
	}

	return audio, nil
}
