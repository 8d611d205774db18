package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/witwicki/streaming-xtts/pkg/protocol"
	"github.com/witwicki/streaming-xtts/pkg/segmenter"
	"github.com/witwicki/streaming-xtts/pkg/ws"
)

// ErrAllSegmentsFailed is returned by one-shot synthesis when not a single
// segment produced audio.
var ErrAllSegmentsFailed = errors.New("all segments failed to synthesize")

type Manager struct {
	cfg      *Config
	synth    Synthesizer
	pool     *EnginePool
	archiver Archiver
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewManager wires the shared session dependencies. archiver may be nil,
// which disables server-side WAV export.
func NewManager(cfg *Config, synth Synthesizer, pool *EnginePool, archiver Archiver, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		synth:    synth,
		pool:     pool,
		archiver: archiver,
		logger:   logger,
	}
}

// HandleConn takes ownership of conn and blocks until the session ends. The
// connection is closed on return.
func (m *Manager) HandleConn(ctx context.Context, conn *websocket.Conn) {
	m.wg.Add(1)
	defer m.wg.Done()

	client, done := ws.NewClient(conn)

	id := uuid.NewString()

	sess := &Session{
		id:       id,
		cfg:      m.cfg,
		worker:   newWorker(m.synth, m.pool, m.cfg),
		client:   client,
		done:     done,
		archiver: m.archiver,
		logger:   m.logger.With("session_id", id),
	}

	sess.run(ctx)
}

// Wait blocks until every active session finished. Used on shutdown after
// the listener stopped accepting.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Pool exposes the engine pool for health reporting.
func (m *Manager) Pool() *EnginePool {
	return m.pool
}

// Utterance is the result of a one-shot synthesis without a stream.
type Utterance struct {
	Payloads   [][]byte
	SampleRate int
	Speed      float64
	Segments   int
	Skipped    int
}

// SynthesizeUtterance runs the full segmentation and synthesis pipeline
// without a streaming connection and returns the ordered payloads. Skipped
// segments leave no payload; when every segment fails the whole call fails.
func (m *Manager) SynthesizeUtterance(ctx context.Context, text string, conf protocol.SessionConfig) (*Utterance, error) {
	resolved, mode, err := m.cfg.Speech.Resolve(conf)
	if err != nil {
		return nil, err
	}

	segCfg := m.cfg.Segmenter
	segCfg.Mode = mode
	segments := segmenter.Split(text, segCfg)

	logger := m.logger.With("utterance_id", uuid.NewString())
	logger.Info("one-shot synthesis", "chars", len(text), "segments", len(segments))

	w := newWorker(m.synth, m.pool, m.cfg)

	utt := &Utterance{
		Speed:    resolved.Speed,
		Segments: len(segments),
	}

	for _, seg := range segments {
		chunk := w.synthesize(ctx, logger, seg, resolved)

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("synthesis canceled: %w", err)
		}

		if chunk.Error != "" {
			utt.Skipped++

			continue
		}

		utt.Payloads = append(utt.Payloads, chunk.Payload)
		if utt.SampleRate == 0 {
			utt.SampleRate = int(chunk.SampleRate)
		}
	}

	if len(segments) > 0 && len(utt.Payloads) == 0 {
		return nil, ErrAllSegmentsFailed
	}

	return utt, nil
}
