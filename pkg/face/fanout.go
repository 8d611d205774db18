// Package face mirrors playback audio to a facial-animation service as
// coarse energy envelopes, so a rendered face can move its mouth roughly in
// time with speech. Delivery is best-effort and never blocks playback.
package face

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/witwicki/streaming-xtts/pkg/protocol"
	"github.com/witwicki/streaming-xtts/pkg/tools"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

var _ HTTPClient = http.DefaultClient

type Config struct {
	URL string `yaml:"url"`
	// QueueSize bounds pending animation events. Events past it are dropped.
	QueueSize int `yaml:"queue_size"`
	// RequestTimeout applies to the startup probe and to every event POST.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

const (
	// FrameMs is the envelope resolution: one level per this much audio.
	FrameMs = 50

	DefaultQueueSize      = 16
	DefaultRequestTimeout = 2 * time.Second
)

type animateRequest struct {
	SequenceNumber uint32    `json:"sequence_number"`
	StartOffsetMs  int64     `json:"start_offset_ms"`
	FrameMs        int       `json:"frame_ms"`
	Levels         []float64 `json:"levels"`
}

type event struct {
	seq     uint32
	offset  time.Duration
	payload []byte
	rate    int
}

type Fanout struct {
	url        string
	timeout    time.Duration
	httpClient HTTPClient
	logger     *slog.Logger

	enabled bool
	queue   chan event
	offset  time.Duration

	sent    atomic.Int64
	dropped atomic.Int64
}

// New probes the face service once. When the probe fails the fanout
// nullifies itself: every later call is a no-op and playback proceeds
// without lip sync.
func New(ctx context.Context, cfg *Config, httpClient HTTPClient, logger *slog.Logger) *Fanout {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	f := &Fanout{
		url:        cfg.URL,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logger,

		queue: make(chan event, queueSize),
	}

	if cfg.URL == "" {
		return f
	}

	if err := f.probe(ctx); err != nil {
		logger.Warn("face service unreachable, lip sync disabled", "url", cfg.URL, "err", err)

		return f
	}

	f.enabled = true

	return f
}

func (f *Fanout) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to probe face service: %w", err)
	}
	defer tools.DrainAndClose(resp.Body)

	return nil
}

func (f *Fanout) Enabled() bool {
	return f.enabled
}

// OnChunk queues one animation event. It never blocks: when the queue is
// full the event is dropped and counted. Not safe for concurrent use, the
// session receive loop is its single caller.
func (f *Fanout) OnChunk(chunk *protocol.AudioChunk) {
	if !f.enabled || len(chunk.Payload) == 0 {
		return
	}

	ev := event{
		seq:     chunk.Sequence,
		offset:  f.offset,
		payload: chunk.Payload,
		rate:    int(chunk.SampleRate),
	}

	f.offset += chunk.Duration()

	select {
	case f.queue <- ev:
	default:
		f.dropped.Add(1)
		f.logger.Debug("animation queue full, dropping event", "sequence", ev.seq)
	}
}

// Run delivers queued events until ctx is canceled. Delivery failures are
// logged and otherwise ignored.
func (f *Fanout) Run(ctx context.Context) error {
	if !f.enabled {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-f.queue:
			if err := f.post(ctx, ev); err != nil {
				f.logger.Warn("failed to deliver animation event", "sequence", ev.seq, "err", err)

				continue
			}

			f.sent.Add(1)
		}
	}
}

func (f *Fanout) post(ctx context.Context, ev event) error {
	body, err := json.Marshal(&animateRequest{
		SequenceNumber: ev.seq,
		StartOffsetMs:  ev.offset.Milliseconds(),
		FrameMs:        FrameMs,
		Levels:         envelope(ev.payload, ev.rate),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal animation event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url+"/api/v1/animate", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create animation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send animation request: %w", err)
	}
	defer tools.DrainAndClose(resp.Body)

	if resp.StatusCode > 299 {
		return fmt.Errorf("face service returned status: %d", resp.StatusCode)
	}

	return nil
}

func (f *Fanout) Sent() int64 {
	return f.sent.Load()
}

func (f *Fanout) Dropped() int64 {
	return f.dropped.Load()
}

// envelope reduces PCM16 mono audio to one RMS level per frame, normalized
// to [0, 1]. A trailing partial frame still produces a level.
func envelope(pcm []byte, sampleRate int) []float64 {
	samplesPerFrame := sampleRate * FrameMs / 1000
	if samplesPerFrame <= 0 {
		return nil
	}

	total := len(pcm) / 2
	if total == 0 {
		return nil
	}

	levels := make([]float64, 0, total/samplesPerFrame+1)

	var sum float64
	n := 0

	for i := 0; i < total; i++ {
		sample := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += sample * sample
		n++

		if n == samplesPerFrame {
			levels = append(levels, math.Sqrt(sum/float64(n))/math.MaxInt16)
			sum, n = 0, 0
		}
	}

	if n > 0 {
		levels = append(levels, math.Sqrt(sum/float64(n))/math.MaxInt16)
	}

	return levels
}
