// Package session implements the server side of the streaming protocol: one
// handshake, strictly ordered per-segment synthesis, exactly one terminal
// message.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/witwicki/streaming-xtts/pkg/protocol"
	"github.com/witwicki/streaming-xtts/pkg/segmenter"
	"github.com/witwicki/streaming-xtts/pkg/slg"
	"github.com/witwicki/streaming-xtts/pkg/ws"
)

type State int32

const (
	StateHandshake State = iota
	StateStreaming
	StateDraining
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateHandshake:
		return "handshake"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Archiver persists a finished utterance. The session calls it after the
// terminal message, never on the streaming path.
type Archiver interface {
	Archive(ctx context.Context, payloads [][]byte, sampleRate int, speed float64) error
}

type Session struct {
	id       string
	cfg      *Config
	worker   *worker
	client   *ws.Client
	done     chan struct{}
	archiver Archiver
	logger   *slog.Logger

	state        atomic.Int32
	terminalSent bool
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
	s.logger.Debug("session state changed", "state", state.String())
}

func (s *Session) run(ctx context.Context) {
	start := time.Now()

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A dead peer cancels in-flight synthesis and frees the engine slot.
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	defer func() {
		s.setState(StateClosed)

		if err := s.client.Close(); err != nil {
			s.logger.Debug("failed to close connection", "err", err)
		}

		metrics.SessionSeconds.Observe(time.Since(start).Seconds())
	}()

	hs, err := s.awaitHandshake(ctx)
	if err != nil {
		switch {
		case errors.Is(err, ws.ErrClosed):
			s.abort(protocol.CodeConnectionLost, err)
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			s.abort(protocol.CodeProtocolViolation, errors.New("handshake timed out"))
		case ctx.Err() != nil:
			s.abort(protocol.CodeConnectionLost, err)
		default:
			s.abort(protocol.CodeProtocolViolation, err)
		}

		return
	}

	conf, mode, err := s.cfg.Speech.Resolve(hs.Config)
	if err != nil {
		s.abort(protocol.CodeConfigError, err)

		return
	}

	segCfg := s.cfg.Segmenter
	segCfg.Mode = mode
	segments := segmenter.Split(hs.Text, segCfg)

	s.logger.Info("session streaming",
		"speaker", conf.Speaker,
		"language", conf.Language,
		"split", conf.Split,
		"chars", len(hs.Text),
		"segments", len(segments),
	)

	s.setState(StateStreaming)

	// Nothing further is expected from the client, but the read pump has to
	// keep running to notice the peer going away.
	go s.client.DrainRead(ctx)

	var payloads [][]byte
	sampleRate := 0
	skipped := 0

	for i, seg := range segments {
		chunk := s.worker.synthesize(ctx, s.logger, seg, conf)

		if ctx.Err() != nil {
			if s.connAlive() {
				s.abort(protocol.CodeInternalError, errors.New("server shutting down"))
			} else {
				s.abort(protocol.CodeConnectionLost, ctx.Err())
			}

			return
		}

		chunk.IsFinal = i == len(segments)-1

		if err := s.send(protocol.TypeChunk, chunk); err != nil {
			s.abort(protocol.CodeConnectionLost, err)

			return
		}

		if chunk.Error != "" {
			skipped++
		} else {
			payloads = append(payloads, chunk.Payload)
			if sampleRate == 0 {
				sampleRate = int(chunk.SampleRate)
			}
		}
	}

	closed := &protocol.SessionClosed{
		Segments: uint32(len(segments)),
		Skipped:  uint32(skipped),
	}
	if err := s.sendTerminal(protocol.TypeClosed, closed); err != nil {
		s.abort(protocol.CodeConnectionLost, err)

		return
	}

	metrics.SessionsClosed.WithLabelValues("completed").Inc()
	s.logger.Info("session completed", "segments", len(segments), "skipped", skipped)

	s.setState(StateDraining)
	s.drain(ctx)

	s.archive(context.WithoutCancel(ctx), payloads, sampleRate, conf.Speed)
}

func (s *Session) awaitHandshake(ctx context.Context) (*protocol.Handshake, error) {
	hsCtx, cancel := context.WithTimeout(ctx, s.cfg.handshakeTimeout())
	defer cancel()

	msg, err := s.client.Read(hsCtx)
	if err != nil {
		return nil, err
	}

	env, err := protocol.Unmarshal(msg.Message)
	if err != nil {
		return nil, err
	}

	hs, err := protocol.DecodeHandshake(env)
	if err != nil {
		return nil, err
	}

	return hs, nil
}

func (s *Session) send(msgType protocol.MessageType, payload any) error {
	raw, err := protocol.Marshal(msgType, payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", msgType, err)
	}

	if err := s.client.Send(&ws.Message{MsgType: websocket.TextMessage, Message: raw}); err != nil {
		return fmt.Errorf("failed to send %s message: %w", msgType, err)
	}

	return nil
}

// sendTerminal writes the session's single terminal message. Later calls are
// no-ops, which keeps the exactly-one guarantee even on abort-within-abort
// paths.
func (s *Session) sendTerminal(msgType protocol.MessageType, payload any) error {
	if s.terminalSent {
		return nil
	}
	s.terminalSent = true

	return s.send(msgType, payload)
}

func (s *Session) abort(code protocol.ErrorCode, err error) {
	s.setState(StateError)
	metrics.SessionsClosed.WithLabelValues(string(code)).Inc()

	s.logger.Error("session aborted", "code", code, "err", err)

	terminal := &protocol.SessionError{
		Code:    code,
		Message: err.Error(),
	}
	if sendErr := s.sendTerminal(protocol.TypeError, terminal); sendErr != nil {
		s.logger.Debug("failed to deliver terminal error", "err", sendErr)
	}
}

func (s *Session) connAlive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// drain gives the client a bounded window to read the tail of the stream and
// close on its own before the server tears the connection down.
func (s *Session) drain(ctx context.Context) {
	timer := time.NewTimer(s.cfg.drainTimeout())
	defer timer.Stop()

	select {
	case <-s.done:
	case <-timer.C:
		s.logger.Debug("drain window elapsed, closing")
	case <-ctx.Done():
	}
}

func (s *Session) archive(ctx context.Context, payloads [][]byte, sampleRate int, speed float64) {
	if s.archiver == nil || len(payloads) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(slg.WithSlog(ctx, s.logger), time.Minute)
	defer cancel()

	if err := s.archiver.Archive(ctx, payloads, sampleRate, speed); err != nil {
		s.logger.Error("failed to archive utterance", "err", err)
	}
}
